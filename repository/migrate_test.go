package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
	})
	ctx := context.Background()

	applied, err := Migrate(ctx, bunDB)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20240301000001_user_profiles",
		"20240301000002_admin_logs",
		"20240301000003_user_status_history",
	}, applied)

	t.Run("second run is a no-op", func(t *testing.T) {
		again, err := Migrate(ctx, bunDB)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("schema accepts a profile", func(t *testing.T) {
		store := NewProfileStore(bunDB)
		seedProfile(t, store, "u-1", "ann@example.com", "Ann", auth.RoleUser, auth.StatusPending)
		record, err := store.GetProfile(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "pending", record.Status)
	})

	t.Run("schema rejects an unknown role", func(t *testing.T) {
		_, err := bunDB.ExecContext(ctx,
			"INSERT INTO user_profiles (id, email, role, status) VALUES (?, ?, ?, ?)",
			"u-2", "bob@example.com", "owner", "active")
		assert.Error(t, err)
	})
}
