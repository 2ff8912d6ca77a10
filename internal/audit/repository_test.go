package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-teslemetry/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	e := &Entry{
		DeviceID:   "dev-1",
		Capability: device.CapBackupReserve,
		Value:      20,
		Source:     "api",
		Result:     ResultOK,
	}
	require.NoError(t, repo.Create(ctx, e))
	assert.Regexp(t, `^cmd-[0-9a-f]{8}$`, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	got := res.Entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, device.CapBackupReserve, got.Capability)
	assert.Equal(t, 20.0, got.Value)
	assert.Equal(t, "api", got.Source)
	assert.Empty(t, got.Error)
	assert.WithinDuration(t, e.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestCreate_NilValueAndError(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &Entry{
		DeviceID:   "dev-1",
		Capability: device.CapGridStatus,
		Source:     "mqtt",
		Result:     ResultFailed,
		Error:      "device: capability is not setable",
	}))

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Nil(t, res.Entries[0].Value)
	assert.Equal(t, "device: capability is not setable", res.Entries[0].Error)
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{DeviceID: "a", Capability: device.CapBackupReserve, Value: 10, Result: ResultOK, CreatedAt: base},
		{DeviceID: "a", Capability: device.CapStormWatch, Value: true, Result: ResultFailed, CreatedAt: base.Add(time.Second)},
		{DeviceID: "b", Capability: device.CapBackupReserve, Value: 30, Result: ResultOK, CreatedAt: base.Add(500 * time.Millisecond)},
	}
	for i := range entries {
		entries[i].Source = "api"
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, []string{entries[1].ID, entries[2].ID, entries[0].ID},
		[]string{all.Entries[0].ID, all.Entries[1].ID, all.Entries[2].ID})

	byDevice, err := repo.List(ctx, Filter{DeviceID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, byDevice.Total)

	failed, err := repo.List(ctx, Filter{Result: ResultFailed})
	require.NoError(t, err)
	require.Len(t, failed.Entries, 1)
	assert.Equal(t, true, failed.Entries[0].Value)

	byCap, err := repo.List(ctx, Filter{Capability: device.CapBackupReserve, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, byCap.Total)
	require.Len(t, byCap.Entries, 1)
	assert.Equal(t, entries[0].ID, byCap.Entries[0].ID)
}

func TestList_ClampsPaging(t *testing.T) {
	repo := setupRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.NotNil(t, res.Entries)

	res, err = repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, res.Limit)
}
