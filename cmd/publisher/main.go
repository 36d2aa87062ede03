// Command publisher queues sample notifications for manual and load testing.
//
//	publisher                      one sample to every queue, 3s apart
//	publisher sms                  one sample to order.confirmation.sms
//	publisher -load-test 50 -type email
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/broker"
	"github.com/cakeshop/order-notifications/internal/config"
	"github.com/cakeshop/order-notifications/internal/domain"
	"github.com/cakeshop/order-notifications/internal/publisher"
)

func main() {
	loadTest := flag.Int("load-test", 0, "Publish N copies of one message type and exit")
	kind := flag.String("type", "order", "Message type for -load-test (order, email, sms, delivery, generic)")
	interval := flag.Duration("interval", 3*time.Second, "Pause between messages when publishing to every queue")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [all|order|email|sms|delivery|generic]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := flag.Arg(0)
	if mode == "" {
		mode = "all"
	}

	if err := run(ctx, cfg, logger, mode, *kind, *loadTest, *interval); err != nil {
		logger.Error("publish failed", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, mode, kind string, count int, interval time.Duration) error {
	client, err := broker.Open(cfg.RabbitMQURL, broker.Options{ConnectionName: "order-notifications-publisher"}, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	pub := publisher.New(client, cfg.BulkPublishDelay, logger, publisher.Hooks{})

	if count > 0 {
		ch, err := domain.ChannelForKind(kind)
		if err != nil {
			return err
		}
		msg, err := domain.SampleMessage(ch, time.Now().UTC())
		if err != nil {
			return err
		}

		start := time.Now()
		published, err := pub.PublishBulk(ctx, msg, count)
		logger.Info("load test finished",
			zap.String("queue", ch.Queue()),
			zap.Int("requested", count),
			zap.Int("published", published),
			zap.Duration("elapsed", time.Since(start)),
		)
		return err
	}

	var channels []domain.Channel
	if mode == "all" {
		channels = domain.Channels()
	} else {
		ch, err := domain.ChannelForKind(mode)
		if err != nil {
			return err
		}
		channels = []domain.Channel{ch}
	}

	var errs []error
	for i, ch := range channels {
		if i > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			}
		}
		msg, err := domain.SampleMessage(ch, time.Now().UTC())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := pub.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("sample published",
			zap.String("queue", ch.Queue()),
			zap.String("reference", domain.Reference(msg)),
		)
	}
	return errors.Join(errs...)
}
