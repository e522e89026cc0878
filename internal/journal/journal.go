// Package journal persists lifecycle events (starts, stops, relays and their
// failures) to a JSON file so operators can correlate instance activity with
// billing and trigger history after the fact.
package journal

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for journal operations.
var (
	ErrLockTimeout = errors.New("timed out acquiring journal lock")
)

// maxEvents bounds the journal file; the oldest events are dropped first.
const maxEvents = 1000

// Outcome classifies how an action ended.
type Outcome string

// Outcome constants.
const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Event records one lifecycle action against an instance.
type Event struct {
	At         time.Time `json:"at"`
	InstanceID string    `json:"instance_id"`
	Action     string    `json:"action"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
}

// Filter narrows List results.
type Filter struct {
	InstanceID string  // empty = all
	Action     string  // empty = all
	Outcome    Outcome // empty = all
}

// Recorder appends lifecycle events.
type Recorder interface {
	Append(ctx context.Context, event Event) error
}

// Discard is a Recorder that drops all events, for callers that do not need
// persistence (tests, dry runs).
type Discard struct{}

// Append implements Recorder.
func (Discard) Append(ctx context.Context, event Event) error { return nil }
