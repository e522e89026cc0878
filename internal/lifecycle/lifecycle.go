// Package lifecycle orchestrates instance power-cycling around the inference
// workload: start, readiness wait, optional processing relay, and supervision
// of the per-instance idle-shutdown loop.
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors forming the lifecycle failure taxonomy.
var (
	// ErrStartFailed: the provider rejected power-on. Fatal, surfaced to the
	// caller, never retried automatically.
	ErrStartFailed = errors.New("instance start failed")

	// ErrNotReadyFailed: the readiness budget ran out. The instance is left
	// running; the idle loop is still engaged so the cost is bounded.
	ErrNotReadyFailed = errors.New("instance did not become ready")

	// ErrRelayFailed: the processing request was rejected or timed out. The
	// instance is untouched.
	ErrRelayFailed = errors.New("processing relay failed")

	// ErrStopFailed: the provider rejected power-off.
	ErrStopFailed = errors.New("instance stop failed")

	// ErrUnknownAction: the trigger carried an unrecognized action.
	ErrUnknownAction = errors.New("unknown action")
)

// Action identifies a trigger operation.
type Action string

// Trigger actions.
const (
	ActionStart           Action = "start"
	ActionStop            Action = "stop"
	ActionStartAndProcess Action = "start_and_process"
	ActionScaleUp         Action = "scale_up"
	ActionScaleDown       Action = "scale_down"
)

// Payload is the optional processing request carried by a trigger. Priority
// is an opaque hint forwarded to the inference service unmodified.
type Payload struct {
	Files    []string `json:"files"`
	Priority string   `json:"priority,omitempty"`
}

// Request is one trigger invocation. Consumed once, never persisted.
type Request struct {
	Action  Action   `json:"action"`
	Payload *Payload `json:"payload,omitempty"`
}

// Response is the trigger reply envelope.
type Response struct {
	Status  string          `json:"status"` // "ok" or "error"
	Address string          `json:"address,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Error carries the failure taxonomy with enough context (instance, action,
// timestamp) for post-hoc correlation against the journal.
type Error struct {
	InstanceID string
	Action     Action
	At         time.Time
	Err        error

	sentinel error
}

func newError(sentinel error, instanceID string, action Action, err error) *Error {
	return &Error{
		InstanceID: instanceID,
		Action:     action,
		At:         time.Now(),
		Err:        err,
		sentinel:   sentinel,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: instance %s, action %s at %s: %v",
		e.sentinel, e.InstanceID, e.Action, e.At.Format(time.RFC3339), e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.sentinel, e.Err}
}
