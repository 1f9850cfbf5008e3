// Package dispatch routes named operations to typed handlers and wraps every
// outcome in a uniform Envelope.
//
// The operation table is built once at startup from a Collaborators value and
// is read-only afterwards, so a single Dispatcher is shared by all requests.
//
// Key features:
//   - Fixed operation set keyed by the Operation enum
//   - Per-operation parsing of the loose param bag into a typed request
//   - Per-handler fault boundary (returned errors and panics)
//   - Flat wire errors; fault kinds kept internally for logging
//
// Error handling:
//   - Unknown operation → routing fault, no handler invoked
//   - Missing/invalid required params → validation fault, collaborator not called
//   - Collaborator error or panic → collaborator fault carrying its text
//   - Collaborator answers false (register/authenticate) → rejected fault
//
// Every fault becomes {"status":"error","message":...}.
package dispatch
