package dispatch

import "fmt"

// FaultKind says where a failure was contained. It never reaches the wire.
type FaultKind uint8

const (
	// ValidationFault: required params missing or malformed; the collaborator
	// was not called.
	ValidationFault FaultKind = iota + 1
	// CollaboratorFault: the collaborator returned an error or panicked.
	CollaboratorFault
	// RoutingFault: the operation name is not registered.
	RoutingFault
	// RejectedFault: the collaborator answered a yes/no question with no.
	RejectedFault
)

func (k FaultKind) String() string {
	switch k {
	case ValidationFault:
		return "validation"
	case CollaboratorFault:
		return "collaborator"
	case RoutingFault:
		return "routing"
	case RejectedFault:
		return "rejected"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Fault is the internal error type for every failed dispatch.
type Fault struct {
	Kind      FaultKind
	Operation Operation
	Message   string
	Err       error
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return f.Kind.String() + " fault"
}

func (f *Fault) Unwrap() error { return f.Err }

func invalid(format string, args ...any) error {
	return &Fault{Kind: ValidationFault, Message: fmt.Sprintf(format, args...)}
}

func rejected(message string) error {
	return &Fault{Kind: RejectedFault, Message: message}
}

func unknownOperation(name string) *Fault {
	return &Fault{
		Kind:      RoutingFault,
		Operation: Operation(name),
		Message:   fmt.Sprintf("Unknown operation: %s", name),
	}
}
