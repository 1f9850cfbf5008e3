// Package resource reports host resources and reserves capacity against
// configured limits.
package resource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/windsurf-mcp/internal/storage"
)

const (
	StatusGranted = "granted"
	StatusDenied  = "denied"
	StatusExpired = "expired"

	DefaultAllocationTTL = time.Hour
	anonymousOwner       = "anonymous"

	// timeLayout is fixed-width so stored timestamps compare as strings.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Amount is a quantity of reservable capacity.
type Amount struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB int64   `json:"memory_mb"`
	DiskMB   int64   `json:"disk_mb"`
}

func (a Amount) sub(b Amount) Amount {
	return Amount{
		CPUCores: max(a.CPUCores-b.CPUCores, 0),
		MemoryMB: max(a.MemoryMB-b.MemoryMB, 0),
		DiskMB:   max(a.DiskMB-b.DiskMB, 0),
	}
}

// Requirements is one allocation request.
type Requirements struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB int64   `json:"memory_mb"`
	DiskMB   int64   `json:"disk_mb"`
	Owner    string  `json:"owner"`
}

func (r Requirements) amount() Amount {
	return Amount{CPUCores: r.CPUCores, MemoryMB: r.MemoryMB, DiskMB: r.DiskMB}
}

// MemoryStats is the Go runtime's view of process memory.
type MemoryStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	NumGC          uint32 `json:"num_gc"`
}

// Snapshot is the result of a resource check.
type Snapshot struct {
	CPUCount   int                `json:"cpu_count"`
	Goroutines int                `json:"goroutines"`
	Memory     MemoryStats        `json:"memory"`
	Disk       *storage.DiskStats `json:"disk,omitempty"`
	Limits     Amount             `json:"limits"`
	Allocated  Amount             `json:"allocated"`
	Available  Amount             `json:"available"`
	CheckedAt  time.Time          `json:"checked_at"`
}

// Allocation is the recorded outcome of one request.
type Allocation struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Status    string    `json:"status"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	Requested Amount    `json:"requested"`
	Remaining Amount    `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options configures an Accountant.
type Options struct {
	Limits        Amount
	DiskPath      string
	AllocationTTL time.Duration
}

// Accountant tracks reservations in SQLite. Allocate is serialized so two
// requests cannot both claim the last unit of capacity.
type Accountant struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewAccountant(db *sql.DB, opts Options, logger *slog.Logger) *Accountant {
	if opts.AllocationTTL <= 0 {
		opts.AllocationTTL = DefaultAllocationTTL
	}
	if opts.Limits.CPUCores <= 0 {
		opts.Limits.CPUCores = float64(runtime.NumCPU())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{db: db, opts: opts, logger: logger, now: time.Now}
}

// Check reports runtime, disk and reservation figures.
func (a *Accountant) Check(ctx context.Context) (*Snapshot, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	allocated, err := a.allocated(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			AllocBytes:     ms.Alloc,
			SysBytes:       ms.Sys,
			HeapInuseBytes: ms.HeapInuse,
			NumGC:          ms.NumGC,
		},
		Limits:    a.opts.Limits,
		Allocated: allocated,
		Available: a.opts.Limits.sub(allocated),
		CheckedAt: a.now().UTC(),
	}

	if a.opts.DiskPath != "" {
		disk, err := storage.DiskUsage(a.opts.DiskPath)
		if err != nil {
			a.logger.Warn("disk usage unavailable", "path", a.opts.DiskPath, "error", err)
		} else {
			snap.Disk = &disk
		}
	}
	return snap, nil
}

// Allocate reserves req if it fits in what remains under the limits. Denied
// requests are recorded too and come back with Granted=false.
func (a *Accountant) Allocate(ctx context.Context, req Requirements) (*Allocation, error) {
	if req.CPUCores < 0 || req.MemoryMB < 0 || req.DiskMB < 0 {
		return nil, fmt.Errorf("invalid requirements: values must not be negative")
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = anonymousOwner
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	allocated, err := a.allocated(ctx)
	if err != nil {
		return nil, err
	}
	available := a.opts.Limits.sub(allocated)
	requested := req.amount()

	now := a.now().UTC()
	alloc := &Allocation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Requested: requested,
		CreatedAt: now,
		ExpiresAt: now.Add(a.opts.AllocationTTL),
	}

	if reason := shortfall(requested, available); reason != "" {
		alloc.Status = StatusDenied
		alloc.Reason = reason
		alloc.Remaining = available
	} else {
		alloc.Status = StatusGranted
		alloc.Granted = true
		alloc.Remaining = available.sub(requested)
	}

	_, err = a.db.ExecContext(ctx, `
INSERT INTO resource_allocations(id, owner, cpu_cores, memory_mb, disk_mb, status, reason, created_at, expires_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, alloc.ID, alloc.Owner, requested.CPUCores, requested.MemoryMB, requested.DiskMB,
		alloc.Status, alloc.Reason, alloc.CreatedAt.Format(timeLayout), alloc.ExpiresAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("record allocation: %w", err)
	}

	a.logger.Info("resource allocation",
		"allocation_id", alloc.ID,
		"owner", owner,
		"status", alloc.Status,
		"reason", alloc.Reason,
	)
	return alloc, nil
}

// Expire marks granted reservations past their expiry as expired and returns
// how many rows changed. Capacity math already ignores them; this keeps the
// stored status honest for queries.
func (a *Accountant) Expire(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `
UPDATE resource_allocations SET status = ?
WHERE status = ? AND expires_at <= ?;
`, StatusExpired, StatusGranted, a.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("expire allocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire allocations: %w", err)
	}
	if n > 0 {
		a.logger.Info("allocations expired", "count", n)
	}
	return n, nil
}

// allocated sums live (granted, unexpired) reservations.
func (a *Accountant) allocated(ctx context.Context) (Amount, error) {
	var total Amount
	err := a.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(cpu_cores), 0), COALESCE(SUM(memory_mb), 0), COALESCE(SUM(disk_mb), 0)
FROM resource_allocations
WHERE status = ? AND expires_at > ?;
`, StatusGranted, a.now().UTC().Format(timeLayout)).Scan(&total.CPUCores, &total.MemoryMB, &total.DiskMB)
	if err != nil {
		return Amount{}, fmt.Errorf("sum allocations: %w", err)
	}
	return total, nil
}

func shortfall(requested, available Amount) string {
	var short []string
	if requested.CPUCores > available.CPUCores {
		short = append(short, fmt.Sprintf("cpu_cores (requested %g, available %g)", requested.CPUCores, available.CPUCores))
	}
	if requested.MemoryMB > available.MemoryMB {
		short = append(short, fmt.Sprintf("memory_mb (requested %d, available %d)", requested.MemoryMB, available.MemoryMB))
	}
	if requested.DiskMB > available.DiskMB {
		short = append(short, fmt.Sprintf("disk_mb (requested %d, available %d)", requested.DiskMB, available.DiskMB))
	}
	if len(short) == 0 {
		return ""
	}
	return "insufficient " + strings.Join(short, ", ")
}
