package db_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cakeshop/order-notifications/internal/db"
	"github.com/cakeshop/order-notifications/migrations"
)

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/orders?sslmode=disable", "pgx5://u:p@db:5432/orders?sslmode=disable"},
		{"postgresql://u:p@db/orders", "pgx5://u:p@db/orders"},
		{"pgx5://u:p@db/orders", "pgx5://u:p@db/orders"},
		{"u:p@db/orders", "pgx5://u:p@db/orders"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, db.MigrationURL(tc.in), tc.in)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"000001_create_notification_outcomes.up.sql",
		"000001_create_notification_outcomes.down.sql",
	}, names)

	up, err := fs.ReadFile(migrations.FS, "000001_create_notification_outcomes.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "notification_outcomes")
}
