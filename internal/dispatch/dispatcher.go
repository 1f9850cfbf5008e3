package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// Publisher receives one event per dispatched operation. *events.Hub
// satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher reports every outcome to p in addition to the log.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// Dispatcher resolves operation names against a Registry and always answers
// with an Envelope.
type Dispatcher struct {
	registry  *Registry
	logger    *slog.Logger
	publisher Publisher
}

// New creates a Dispatcher over an already-built registry.
func New(registry *Registry, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = MustRegistry()
	}
	d := &Dispatcher{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's operation table.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Operations lists the registered operation names, sorted.
func (d *Dispatcher) Operations() []Operation { return d.registry.Operations() }

// Execute runs operation with params. It never panics and never returns an
// error: unknown operations, invalid params and collaborator failures all
// come back as error Envelopes.
func (d *Dispatcher) Execute(ctx context.Context, operation string, params Params) (env Envelope) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			env = Failure(&Fault{Kind: CollaboratorFault, Operation: Operation(operation), Message: fmt.Sprint(rec)})
		}
		elapsed := time.Since(start)
		d.logOutcome(operation, env, elapsed)
		d.publishOutcome(operation, env, elapsed)
	}()

	handler, ok := d.registry.Lookup(operation)
	if !ok {
		return Failure(unknownOperation(operation))
	}
	return handler(ctx, params)
}

func (d *Dispatcher) logOutcome(operation string, env Envelope, elapsed time.Duration) {
	if env.OK() {
		d.logger.Debug("operation completed",
			"operation", operation,
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}

	attrs := []any{
		"operation", operation,
		"message", env.Message,
		"duration_ms", elapsed.Milliseconds(),
	}
	level := slog.LevelWarn
	if f := env.Fault(); f != nil {
		attrs = append(attrs, "fault", f.Kind.String())
		switch f.Kind {
		case RoutingFault, CollaboratorFault:
			level = slog.LevelError
		case RejectedFault:
			level = slog.LevelInfo
		}
		var pe *panicError
		if errors.As(f.Err, &pe) {
			attrs = append(attrs, "stack", string(pe.stack))
		}
	}
	d.logger.Log(context.Background(), level, "operation failed", attrs...)
}

func (d *Dispatcher) publishOutcome(operation string, env Envelope, elapsed time.Duration) {
	if d.publisher == nil {
		return
	}
	data := map[string]any{
		"operation":   operation,
		"status":      string(env.Status),
		"duration_ms": elapsed.Milliseconds(),
	}
	if env.OK() {
		d.publisher.Publish(events.OperationCompleted, data)
		return
	}
	data["message"] = env.Message
	if f := env.Fault(); f != nil {
		data["fault"] = f.Kind.String()
	}
	d.publisher.Publish(events.OperationFailed, data)
}
