package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orris-inc/ticketwatch/internal/domain/relay"
)

func setupStore(t *testing.T) *StateStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&StateEntryModel{}, &WatermarkModel{}))
	return NewStateStore(db)
}

func TestStateStore_LoadMissingMappingIsEmpty(t *testing.T) {
	store := setupStore(t)

	entries, err := store.Load(context.Background(), relay.MappingNotified)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStateStore_SaveReplacesMapping(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, relay.MappingNotified, map[int]string{
		1: relay.SetMember,
		2: relay.SetMember,
	}))

	// A full save must drop entries not present in the new contents.
	require.NoError(t, store.Save(ctx, relay.MappingNotified, map[int]string{
		2: relay.SetMember,
		3: relay.SetMember,
	}))

	entries, err := store.Load(ctx, relay.MappingNotified)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{2: relay.SetMember, 3: relay.SetMember}, entries)
}

func TestStateStore_SaveEmptyClearsMapping(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, relay.MappingCompleted, map[int]string{1: relay.SetMember}))
	require.NoError(t, store.Save(ctx, relay.MappingCompleted, map[int]string{}))

	entries, err := store.Load(ctx, relay.MappingCompleted)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStateStore_MappingsAreIndependent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, relay.MappingNotified, 1, relay.SetMember))
	require.NoError(t, store.Upsert(ctx, relay.MappingCompleted, 1, relay.SetMember))
	require.NoError(t, store.Save(ctx, relay.MappingNotified, map[int]string{}))

	completed, err := store.Load(ctx, relay.MappingCompleted)
	require.NoError(t, err)
	assert.Contains(t, completed, 1, "clearing one mapping must not touch another")
}

func TestStateStore_UpsertOverwrites(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, relay.MappingFollowUpSchedule, 7, "2024-01-01T00:00:00Z"))
	require.NoError(t, store.Upsert(ctx, relay.MappingFollowUpSchedule, 7, "2024-02-01T00:00:00Z"))

	entries, err := store.Load(ctx, relay.MappingFollowUpSchedule)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{7: "2024-02-01T00:00:00Z"}, entries)
}

func TestStateStore_RemoveAbsentIsNoOp(t *testing.T) {
	store := setupStore(t)

	assert.NoError(t, store.Remove(context.Background(), relay.MappingNotified, 404))
}

func TestStateStore_RemoveMany(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, mapping := range relay.PerTicketMappings {
		require.NoError(t, store.Upsert(ctx, mapping, 1, "a"))
		require.NoError(t, store.Upsert(ctx, mapping, 2, "b"))
	}

	require.NoError(t, store.RemoveMany(ctx, []int{1}))

	for _, mapping := range relay.PerTicketMappings {
		entries, err := store.Load(ctx, mapping)
		require.NoError(t, err)
		assert.NotContains(t, entries, 1, "mapping %s must be purged", mapping)
		assert.Contains(t, entries, 2, "mapping %s must keep other tickets", mapping)
	}

	// Purging already-clean IDs changes nothing.
	require.NoError(t, store.RemoveMany(ctx, []int{1}))
	require.NoError(t, store.RemoveMany(ctx, nil))
}

func TestStateStore_WatermarkRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, found, err := store.LoadWatermark(ctx)
	require.NoError(t, err)
	assert.False(t, found, "fresh store has no watermark")

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveWatermark(ctx, first))

	got, found, err := store.LoadWatermark(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, got)

	// Saving again overwrites the single row.
	second := first.Add(time.Hour)
	require.NoError(t, store.SaveWatermark(ctx, second))

	got, found, err = store.LoadWatermark(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second, got)
}

func TestStateStore_WatermarkNormalizedToUTC(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	jst := time.FixedZone("JST", 9*3600)
	require.NoError(t, store.SaveWatermark(ctx, time.Date(2024, 1, 1, 9, 0, 0, 0, jst)))

	got, found, err := store.LoadWatermark(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestStateStore_CorruptWatermarkTreatedAsAbsent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.db.Create(&WatermarkModel{Name: watermarkName, Value: "garbage"}).Error)

	_, found, err := store.LoadWatermark(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}
