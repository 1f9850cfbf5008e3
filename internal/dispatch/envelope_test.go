package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want map[string]any
	}{
		{
			name: "success with fields",
			env:  Success("", map[string]any{"result": []string{"a"}, "count": 1}),
			want: map[string]any{"status": "success", "result": []any{"a"}, "count": 1.0},
		},
		{
			name: "success with message",
			env:  Success("done", nil),
			want: map[string]any{"status": "success", "message": "done"},
		},
		{
			name: "fields cannot override status or message",
			env:  Success("", map[string]any{"status": "weird", "message": "sneaky"}),
			want: map[string]any{"status": "success"},
		},
		{
			name: "failure from plain error",
			env:  Failure(errors.New("disk full")),
			want: map[string]any{"status": "error", "message": "disk full"},
		},
		{
			name: "error without message",
			env:  Envelope{Status: StatusError},
			want: map[string]any{"status": "error", "message": "unknown error"},
		},
		{
			name: "zero envelope is an error",
			env:  Envelope{},
			want: map[string]any{"status": "error", "message": "unknown error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.env)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MarshalJSON mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFailureKeepsFaultKind(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", rejected("User registration failed"))

	env := Failure(wrapped)

	require.NotNil(t, env.Fault())
	assert.Equal(t, RejectedFault, env.Fault().Kind)
	assert.Equal(t, "User registration failed", env.Message)
	assert.False(t, env.OK())
}

func TestFailureWrapsForeignErrors(t *testing.T) {
	base := errors.New("connection refused")

	env := Failure(base)

	assert.Equal(t, CollaboratorFault, env.Fault().Kind)
	assert.ErrorIs(t, env.Fault(), base)
}

func TestFaultError(t *testing.T) {
	assert.Equal(t, "msg", (&Fault{Message: "msg", Err: errors.New("inner")}).Error())
	assert.Equal(t, "inner", (&Fault{Err: errors.New("inner")}).Error())
	assert.Equal(t, "routing fault", (&Fault{Kind: RoutingFault}).Error())
	assert.Equal(t, "fault(9)", FaultKind(9).String())
}
