package scheduler

import "context"

//go:generate mockgen -destination=mocks/mock_expirer.go -package=mocks github.com/mattjoyce/windsurf-mcp/internal/scheduler AllocationExpirer

// AllocationExpirer retires reservations whose TTL has passed.
type AllocationExpirer interface {
	Expire(ctx context.Context) (int64, error)
}
