// Package scheduler runs periodic maintenance tasks on a fixed tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// Task is one periodic job. A task runs on the first tick and then again on
// the first tick at least Every (plus up to Jitter) after its previous run.
type Task struct {
	Name   string
	Every  time.Duration
	Jitter time.Duration
	Run    func(ctx context.Context) error
}

// Scheduler drives registered tasks from a single tick loop.
type Scheduler struct {
	tick   time.Duration
	tasks  []Task
	next   map[string]time.Time
	events *events.Hub
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler ticking every tick. Task names must be unique and
// every task needs a positive interval and a Run func. hub may be nil.
func New(tick time.Duration, hub *events.Hub, logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", tick)
	}
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		switch {
		case t.Name == "":
			return nil, fmt.Errorf("task[%d]: name is empty", i)
		case seen[t.Name]:
			return nil, fmt.Errorf("task %q registered twice", t.Name)
		case t.Every <= 0:
			return nil, fmt.Errorf("task %q: interval must be positive", t.Name)
		case t.Run == nil:
			return nil, fmt.Errorf("task %q: run func is nil", t.Name)
		}
		seen[t.Name] = true
	}

	sorted := append([]Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &Scheduler{
		tick:   tick,
		tasks:  sorted,
		next:   make(map[string]time.Time, len(sorted)),
		events: hub,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	s.logger.Info("Starting scheduler", "tick", s.tick.String(), "tasks", len(s.tasks))
	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop ends the tick loop and waits for an in-flight tick to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runDue runs every task whose next run time has arrived, in name order.
// A failing task is logged and retried on its normal schedule.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		if next, ok := s.next[t.Name]; ok && now.Before(next) {
			continue
		}
		s.next[t.Name] = now.Add(calculateJitteredInterval(t.Every, t.Jitter))

		start := time.Now()
		err := t.Run(ctx)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			s.logger.Error("Maintenance task failed", "task", t.Name, "error", err)
			s.events.Publish(events.MaintenanceFailed, map[string]any{
				"task":  t.Name,
				"error": err.Error(),
			})
			continue
		}
		s.logger.Debug("Maintenance task completed", "task", t.Name, "duration_ms", elapsed)
		s.events.Publish(events.MaintenanceCompleted, map[string]any{
			"task":        t.Name,
			"duration_ms": elapsed,
		})
	}
}

// ExpireAllocations is the task that retires stale resource reservations.
func ExpireAllocations(exp AllocationExpirer, every time.Duration) Task {
	return Task{
		Name:   "expire_allocations",
		Every:  every,
		Jitter: every / 10,
		Run: func(ctx context.Context) error {
			_, err := exp.Expire(ctx)
			return err
		},
	}
}

// calculateJitteredInterval adds a random jitter in [0, jitter) to base.
func calculateJitteredInterval(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
