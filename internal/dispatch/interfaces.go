package dispatch

import (
	"context"

	"github.com/mattjoyce/windsurf-mcp/internal/memory"
	"github.com/mattjoyce/windsurf-mcp/internal/resource"
)

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks github.com/mattjoyce/windsurf-mcp/internal/dispatch FileReader,MemoryStore,QueryEngine,ContextStore,ResourceAccountant,IdentityStore

// FileReader reads files on behalf of execute_cli.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// MemoryStore persists tagged memories.
type MemoryStore interface {
	Inject(ctx context.Context, contextName string, data any, tags []string) (*memory.Memory, error)
	// Retrieve returns all memories when tag is empty.
	Retrieve(ctx context.Context, tag string) ([]memory.Memory, error)
}

// QueryEngine executes structured queries.
type QueryEngine interface {
	Execute(ctx context.Context, query map[string]any) (any, error)
}

// ContextStore loads and saves named context documents.
type ContextStore interface {
	Load(ctx context.Context, name string) (any, error)
	Save(ctx context.Context, data any, name string) error
}

// ResourceAccountant reports and reserves system resources.
type ResourceAccountant interface {
	Check(ctx context.Context) (*resource.Snapshot, error)
	Allocate(ctx context.Context, req resource.Requirements) (*resource.Allocation, error)
}

// IdentityStore registers and verifies users.
type IdentityStore interface {
	Register(ctx context.Context, username, password string, roles []string) (bool, error)
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// Collaborators is the immutable set of subsystems the handlers delegate to.
// It is built once by the caller and handed to NewHandlers.
type Collaborators struct {
	Files     FileReader
	Memory    MemoryStore
	Query     QueryEngine
	Contexts  ContextStore
	Resources ResourceAccountant
	Identity  IdentityStore
}
