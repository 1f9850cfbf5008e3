package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
)

// Handler turns params into an Envelope. A returned error is flattened into an
// error Envelope by the handler's boundary.
type Handler func(ctx context.Context, params Params) (Envelope, error)

// Entry binds one operation name to its handler.
type Entry struct {
	Operation Operation
	Handler   Handler
}

// boundHandler is a Handler already wrapped in its fault boundary.
type boundHandler func(ctx context.Context, params Params) Envelope

// Registry is the immutable operation table. It is safe for concurrent reads.
type Registry struct {
	handlers map[Operation]boundHandler
}

// NewRegistry builds a registry from entries. Empty names, nil handlers and
// duplicate names are wiring mistakes and fail construction.
func NewRegistry(entries ...Entry) (*Registry, error) {
	handlers := make(map[Operation]boundHandler, len(entries))
	for i, e := range entries {
		if e.Operation == "" {
			return nil, fmt.Errorf("entry[%d]: operation name is empty", i)
		}
		if e.Handler == nil {
			return nil, fmt.Errorf("entry[%d] %q: handler is nil", i, e.Operation)
		}
		if _, exists := handlers[e.Operation]; exists {
			return nil, fmt.Errorf("entry[%d]: operation %q registered twice", i, e.Operation)
		}
		handlers[e.Operation] = guard(e.Operation, e.Handler)
	}
	return &Registry{handlers: handlers}, nil
}

// MustRegistry is NewRegistry for startup wiring that cannot continue on error.
func MustRegistry(entries ...Entry) *Registry {
	r, err := NewRegistry(entries...)
	if err != nil {
		panic(fmt.Sprintf("dispatch: %v", err))
	}
	return r
}

// Lookup finds the handler for an exact, case-sensitive operation name.
func (r *Registry) Lookup(name string) (func(ctx context.Context, params Params) Envelope, bool) {
	h, ok := r.handlers[Operation(name)]
	if !ok {
		return nil, false
	}
	return h, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[Operation(name)]
	return ok
}

// Operations returns registered names sorted alphabetically.
func (r *Registry) Operations() []Operation {
	ops := make([]Operation, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Len returns the number of registered operations.
func (r *Registry) Len() int { return len(r.handlers) }

// guard wraps h so that every call yields an Envelope: returned errors and
// panics become error Envelopes tagged with op.
func guard(op Operation, h Handler) boundHandler {
	return func(ctx context.Context, params Params) (env Envelope) {
		defer func() {
			if rec := recover(); rec != nil {
				env = Failure(&Fault{
					Kind:      CollaboratorFault,
					Operation: op,
					Message:   fmt.Sprint(rec),
					Err:       &panicError{value: rec, stack: debug.Stack()},
				})
			}
		}()

		if params == nil {
			params = Params{}
		}
		out, err := h(ctx, params)
		if err != nil {
			env = Failure(err)
			if f := env.Fault(); f != nil && f.Operation == "" {
				f.Operation = op
			}
			return env
		}
		if out.Status != StatusSuccess && out.Status != StatusError {
			out.Status = StatusSuccess
		}
		return out
	}
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }
