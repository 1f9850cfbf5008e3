package resource

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/windsurf-mcp/internal/storage"
)

func newTestAccountant(t *testing.T, limits Amount) (*Accountant, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := NewAccountant(db, Options{Limits: limits, DiskPath: dir, AllocationTTL: time.Minute}, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	return a, &clock
}

func TestAllocateGrantsWithinLimits(t *testing.T) {
	a, _ := newTestAccountant(t, Amount{CPUCores: 4, MemoryMB: 1024, DiskMB: 2048})
	ctx := context.Background()

	alloc, err := a.Allocate(ctx, Requirements{CPUCores: 1.5, MemoryMB: 512, Owner: "indexer"})
	require.NoError(t, err)
	assert.True(t, alloc.Granted)
	assert.Equal(t, StatusGranted, alloc.Status)
	assert.Equal(t, "indexer", alloc.Owner)
	assert.Equal(t, Amount{CPUCores: 2.5, MemoryMB: 512, DiskMB: 2048}, alloc.Remaining)

	snap, err := a.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, Amount{CPUCores: 1.5, MemoryMB: 512}, snap.Allocated)
	assert.Equal(t, Amount{CPUCores: 2.5, MemoryMB: 512, DiskMB: 2048}, snap.Available)
}

func TestAllocateDeniesOverLimit(t *testing.T) {
	a, _ := newTestAccountant(t, Amount{CPUCores: 2, MemoryMB: 1024, DiskMB: 100})
	ctx := context.Background()

	_, err := a.Allocate(ctx, Requirements{MemoryMB: 800})
	require.NoError(t, err)

	alloc, err := a.Allocate(ctx, Requirements{MemoryMB: 300, DiskMB: 200})
	require.NoError(t, err)
	assert.False(t, alloc.Granted)
	assert.Equal(t, StatusDenied, alloc.Status)
	assert.Equal(t, anonymousOwner, alloc.Owner)
	assert.Contains(t, alloc.Reason, "memory_mb (requested 300, available 224)")
	assert.Contains(t, alloc.Reason, "disk_mb")

	// denied requests do not consume capacity
	snap, err := a.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(800), snap.Allocated.MemoryMB)
}

func TestAllocationsExpire(t *testing.T) {
	a, clock := newTestAccountant(t, Amount{CPUCores: 1, MemoryMB: 100, DiskMB: 100})
	ctx := context.Background()

	first, err := a.Allocate(ctx, Requirements{CPUCores: 1})
	require.NoError(t, err)
	require.True(t, first.Granted)

	second, err := a.Allocate(ctx, Requirements{CPUCores: 1})
	require.NoError(t, err)
	assert.False(t, second.Granted)

	*clock = clock.Add(2 * time.Minute)
	third, err := a.Allocate(ctx, Requirements{CPUCores: 1})
	require.NoError(t, err)
	assert.True(t, third.Granted)
}

func TestAllocateRejectsNegative(t *testing.T) {
	a, _ := newTestAccountant(t, Amount{CPUCores: 1})
	_, err := a.Allocate(context.Background(), Requirements{MemoryMB: -1})
	assert.Error(t, err)
}

func TestCheckReportsRuntime(t *testing.T) {
	a, _ := newTestAccountant(t, Amount{})
	snap, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.Positive(t, snap.CPUCount)
	assert.Positive(t, snap.Goroutines)
	assert.Positive(t, snap.Memory.SysBytes)
	// zero CPU limit falls back to the host CPU count
	assert.Equal(t, float64(snap.CPUCount), snap.Limits.CPUCores)
}

func TestExpireMarksStaleGrants(t *testing.T) {
	a, clock := newTestAccountant(t, Amount{CPUCores: 2, MemoryMB: 100, DiskMB: 100})
	ctx := context.Background()

	_, err := a.Allocate(ctx, Requirements{CPUCores: 1})
	require.NoError(t, err)
	_, err = a.Allocate(ctx, Requirements{CPUCores: 5})
	require.NoError(t, err)

	n, err := a.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	*clock = clock.Add(time.Minute)
	n, err = a.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var status string
	require.NoError(t, a.db.QueryRowContext(ctx,
		`SELECT status FROM resource_allocations WHERE cpu_cores = 1`).Scan(&status))
	assert.Equal(t, StatusExpired, status)

	n, err = a.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
