// Package compute provides a thin handle over a cloud compute instance:
// power-state queries and idempotent start/stop transitions.
package compute

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for instance operations.
var (
	ErrNotFound           = errors.New("instance not found")
	ErrTransitionRejected = errors.New("power state transition rejected")
	ErrNoAddress          = errors.New("instance has no network address")
)

// TransitionError describes a start or stop request the provider refused,
// typically because the instance is in a terminal state.
type TransitionError struct {
	InstanceID string
	Requested  string // "start" or "stop"
	State      PowerState
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("instance %s: %s rejected in state %s: %v", e.InstanceID, e.Requested, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return ErrTransitionRejected
}

// PowerState represents the instance power state as reported by the provider.
type PowerState string

// Power state constants.
const (
	StateStopped  PowerState = "stopped"
	StatePending  PowerState = "pending"
	StateRunning  PowerState = "running"
	StateStopping PowerState = "stopping"
	StateUnknown  PowerState = "unknown"
)

// Environment tags an instance as belonging to the test or production fleet.
type Environment string

// Environment constants.
const (
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// DeviceClass describes the accelerator hardware of an instance.
type DeviceClass string

// Device class constants.
const (
	DeviceCPU DeviceClass = "cpu"
	DeviceGPU DeviceClass = "gpu"
)

// Instance is a snapshot of one compute node. The provider owns the
// identifier; the controller only cycles its power state.
type Instance struct {
	ID          string
	State       PowerState
	Address     string // set only when State is running
	Environment Environment
	DeviceClass DeviceClass
}

// Handle provides power-state operations for a single instance.
type Handle interface {
	// Describe returns the current power state and, when running, the
	// instance's network address. This read is the source of truth; callers
	// must not cache it across evaluation ticks.
	Describe(ctx context.Context) (*Instance, error)

	// Start requests a stopped->pending->running transition.
	// No-op if the instance is already running or pending.
	// Returns a TransitionError if the provider rejects the request.
	Start(ctx context.Context) error

	// Stop requests a running->stopping->stopped transition.
	// No-op if the instance is already stopped or stopping.
	// Returns a TransitionError if the provider rejects the request.
	Stop(ctx context.Context) error
}
