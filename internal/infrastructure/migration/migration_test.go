package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orris-inc/ticketwatch/internal/domain/relay"
	"github.com/orris-inc/ticketwatch/internal/infrastructure/persistence"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestUp(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Up(db, logger.NewLogger()))

	// The migrated schema must be usable by the state store.
	store := persistence.NewStateStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, relay.MappingNotified, 1, relay.SetMember))
	entries, err := store.Load(ctx, relay.MappingNotified)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: relay.SetMember}, entries)
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Up(db, logger.NewLogger()))
	assert.NoError(t, Up(db, logger.NewLogger()), "re-running on a current schema is a no-op")
}
