package dispatch

import (
	"encoding/json"
	"errors"
	"maps"
)

// Status is the outcome literal carried by every Envelope.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope is the uniform response returned for every operation.
//
// On the wire it is a flat JSON object: "status", an optional "message", and
// any handler-specific fields alongside them.
type Envelope struct {
	Status  Status
	Message string
	Fields  map[string]any

	fault *Fault
}

// Success builds a success Envelope. message may be empty.
func Success(message string, fields map[string]any) Envelope {
	return Envelope{Status: StatusSuccess, Message: message, Fields: fields}
}

// Failure flattens err into an error Envelope. A *Fault keeps its kind for
// logging; any other error is treated as a collaborator fault.
func Failure(err error) Envelope {
	var f *Fault
	if !errors.As(err, &f) {
		f = &Fault{Kind: CollaboratorFault, Err: err}
	}
	return Envelope{Status: StatusError, Message: f.Error(), fault: f}
}

// Fault returns the internal fault behind an error Envelope, or nil.
func (e Envelope) Fault() *Fault { return e.fault }

// OK reports whether the Envelope carries a success status.
func (e Envelope) OK() bool { return e.Status == StatusSuccess }

// MarshalJSON writes status and message next to the handler fields. Handler
// fields never override status or message.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	maps.Copy(out, e.Fields)

	status := e.Status
	if status != StatusSuccess {
		status = StatusError
	}
	out["status"] = status

	delete(out, "message")
	switch {
	case e.Message != "":
		out["message"] = e.Message
	case status == StatusError:
		out["message"] = "unknown error"
	}
	return json.Marshal(out)
}
