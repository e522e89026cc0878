package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/journal"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/metrics"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// instanceHandle is the internal interface for power-state operations.
type instanceHandle interface {
	Describe(ctx context.Context) (*compute.Instance, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// readinessProber is the internal interface for blocking readiness waits.
type readinessProber interface {
	Wait(ctx context.Context, addr string) error
}

// processRelay is the internal interface for forwarding processing payloads.
type processRelay interface {
	Process(ctx context.Context, addr string, p Payload) (json.RawMessage, error)
}

// Loop is the background idle-shutdown task supervised by the controller.
type Loop interface {
	Run(ctx context.Context) error
}

// LoopFactory builds an idle loop for the workload at the given address.
// The controller owns when a loop is spawned; the factory owns how it
// samples, so the signal sources stay pluggable.
type LoopFactory func(addr string) Loop

// Config holds controller-level settings.
type Config struct {
	InstanceID string

	// StateWaitTimeout bounds the wait for the instance to reach running
	// with an address after a start request.
	StateWaitTimeout time.Duration

	// StatePollInterval is the cadence of power-state re-reads during that
	// wait.
	StatePollInterval time.Duration
}

// loopHandle tracks one running idle loop.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (lh *loopHandle) finished() bool {
	select {
	case <-lh.done:
		return true
	default:
		return false
	}
}

// Controller is the trigger entry point. It handles one trigger at a time to
// completion; overlapping starts collapse on the handle's idempotency.
type Controller struct {
	handle  instanceHandle
	prober  readinessProber
	relay   processRelay
	journal journal.Recorder
	newLoop LoopFactory
	cfg     Config

	mu    sync.Mutex
	loops map[string]*loopHandle
}

// NewController creates a lifecycle controller.
func NewController(handle instanceHandle, prober readinessProber, relay processRelay, rec journal.Recorder, newLoop LoopFactory, cfg Config) *Controller {
	if rec == nil {
		rec = journal.Discard{}
	}
	if cfg.StateWaitTimeout == 0 {
		cfg.StateWaitTimeout = 5 * time.Minute
	}
	if cfg.StatePollInterval == 0 {
		cfg.StatePollInterval = 10 * time.Second
	}
	return &Controller{
		handle:  handle,
		prober:  prober,
		relay:   relay,
		journal: rec,
		newLoop: newLoop,
		cfg:     cfg,
		loops:   make(map[string]*loopHandle),
	}
}

// Handle dispatches a trigger request and maps failures onto the response
// envelope. It never panics the caller with an error; the envelope carries
// the outcome.
func (c *Controller) Handle(ctx context.Context, req Request) Response {
	log := slogger.L(ctx)
	log.Info("trigger received", "action", req.Action, "instance", c.cfg.InstanceID)

	resp := c.dispatch(ctx, req)

	outcome := metrics.OutcomeOK
	if resp.Status != "ok" {
		outcome = metrics.OutcomeError
	}
	metrics.TriggersTotal.WithLabelValues(string(req.Action), outcome).Inc()

	return resp
}

func (c *Controller) dispatch(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionStart:
		addr, err := c.Start(ctx)
		if err != nil {
			return errorResponse(addr, err)
		}
		return Response{Status: "ok", Address: addr}

	case ActionStop:
		if err := c.Stop(ctx); err != nil {
			return errorResponse("", err)
		}
		return Response{Status: "ok"}

	case ActionStartAndProcess:
		var payload Payload
		if req.Payload != nil {
			payload = *req.Payload
		}
		addr, result, err := c.StartAndProcess(ctx, payload)
		if err != nil {
			return errorResponse(addr, err)
		}
		return Response{Status: "ok", Address: addr, Result: result}

	case ActionScaleUp, ActionScaleDown:
		// Accepted for forward compatibility with fleet scaling.
		return Response{Status: "ok", Detail: fmt.Sprintf("%s not yet implemented", req.Action)}

	default:
		return errorResponse("", fmt.Errorf("%w: %q", ErrUnknownAction, req.Action))
	}
}

// Start powers the instance on, waits for the workload to become ready, and
// leaves an idle-shutdown loop monitoring it. It returns the instance
// address. On a readiness failure the instance is deliberately left running
// with the idle loop engaged; tearing down a slow starter is the loop's call.
func (c *Controller) Start(ctx context.Context) (string, error) {
	if err := c.handle.Start(ctx); err != nil {
		c.record(ctx, ActionStart, journal.OutcomeFailed, err.Error())
		return "", newError(ErrStartFailed, c.cfg.InstanceID, ActionStart, err)
	}

	addr, err := c.waitForAddress(ctx)
	if err != nil {
		c.record(ctx, ActionStart, journal.OutcomeFailed, err.Error())
		return "", newError(ErrNotReadyFailed, c.cfg.InstanceID, ActionStart, err)
	}

	if err := c.prober.Wait(ctx, addr); err != nil {
		// Instance stays up; the idle loop bounds the cost.
		c.ensureLoop(ctx, addr)
		c.record(ctx, ActionStart, journal.OutcomeFailed, err.Error())
		return addr, newError(ErrNotReadyFailed, c.cfg.InstanceID, ActionStart, err)
	}

	c.ensureLoop(ctx, addr)
	c.record(ctx, ActionStart, journal.OutcomeOK, "ready at "+addr)
	return addr, nil
}

// Stop powers the instance off. It does not require that this controller
// started the instance, and it does not touch the idle loop: the loop sees
// the stopped state on its next tick and exits on its own.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.handle.Stop(ctx); err != nil {
		c.record(ctx, ActionStop, journal.OutcomeFailed, err.Error())
		return newError(ErrStopFailed, c.cfg.InstanceID, ActionStop, err)
	}

	c.record(ctx, ActionStop, journal.OutcomeOK, "")
	return nil
}

// StartAndProcess performs Start and then relays the processing payload to
// the ready workload, passing its response through verbatim. A relay failure
// never stops the instance; only the idle loop may do that.
func (c *Controller) StartAndProcess(ctx context.Context, payload Payload) (string, json.RawMessage, error) {
	addr, err := c.Start(ctx)
	if err != nil {
		return addr, nil, err
	}

	result, err := c.relay.Process(ctx, addr, payload)
	if err != nil {
		c.record(ctx, ActionStartAndProcess, journal.OutcomeFailed, err.Error())
		return addr, nil, newError(ErrRelayFailed, c.cfg.InstanceID, ActionStartAndProcess, err)
	}

	c.record(ctx, ActionStartAndProcess, journal.OutcomeOK, fmt.Sprintf("%d files relayed", len(payload.Files)))
	return addr, result, nil
}

// waitForAddress polls the provider until the instance reports running with
// a network address. Every transition is confirmed by a fresh state read.
func (c *Controller) waitForAddress(ctx context.Context) (string, error) {
	deadline := time.Now().Add(c.cfg.StateWaitTimeout)

	for {
		inst, err := c.handle.Describe(ctx)
		if err != nil {
			slogger.L(ctx).Warn("power state read failed during start wait", "error", err)
		} else if inst.State == compute.StateRunning && inst.Address != "" {
			return inst.Address, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("instance %s not running with an address within %s", c.cfg.InstanceID, c.cfg.StateWaitTimeout)
		}

		timer := time.NewTimer(c.cfg.StatePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// ensureLoop spawns the idle-shutdown loop for this instance unless one is
// already monitoring. Two concurrent evaluators could race to stop the same
// instance, so at most one loop may be live per instance id.
func (c *Controller) ensureLoop(ctx context.Context, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lh, ok := c.loops[c.cfg.InstanceID]; ok && !lh.finished() {
		slogger.L(ctx).Debug("idle loop already monitoring", "instance", c.cfg.InstanceID)
		return
	}

	// The loop outlives the trigger that spawned it; detach from the
	// request's cancellation but keep its logger.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	lh := &loopHandle{cancel: cancel, done: make(chan struct{})}
	c.loops[c.cfg.InstanceID] = lh

	loop := c.newLoop(addr)
	go func() {
		defer close(lh.done)
		defer cancel()
		if err := loop.Run(loopCtx); err != nil && err != context.Canceled {
			slogger.L(loopCtx).Error("idle loop ended with error", "instance", c.cfg.InstanceID, "error", err)
		}
	}()
}

// Shutdown cancels any running idle loop and waits for it to exit. Used on
// process termination; the instance itself is left as-is.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	handles := make([]*loopHandle, 0, len(c.loops))
	for _, lh := range c.loops {
		lh.cancel()
		handles = append(handles, lh)
	}
	c.mu.Unlock()

	for _, lh := range handles {
		select {
		case <-lh.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Status reports the instance's current power state from the provider.
func (c *Controller) Status(ctx context.Context) (*compute.Instance, error) {
	return c.handle.Describe(ctx)
}

// WaitIdle blocks until every running idle loop has exited on its own, either
// by stopping the instance or by observing an external stop. Unlike Shutdown
// it does not cancel anything.
func (c *Controller) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	handles := make([]*loopHandle, 0, len(c.loops))
	for _, lh := range c.loops {
		handles = append(handles, lh)
	}
	c.mu.Unlock()

	for _, lh := range handles {
		select {
		case <-lh.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// LoopActive reports whether an idle loop is currently monitoring the
// instance.
func (c *Controller) LoopActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	lh, ok := c.loops[c.cfg.InstanceID]
	return ok && !lh.finished()
}

func (c *Controller) record(ctx context.Context, action Action, outcome journal.Outcome, detail string) {
	_ = c.journal.Append(ctx, journal.Event{ //nolint:errcheck // journaling is best-effort
		At:         time.Now(),
		InstanceID: c.cfg.InstanceID,
		Action:     string(action),
		Outcome:    outcome,
		Detail:     detail,
	})
}

func errorResponse(addr string, err error) Response {
	return Response{Status: "error", Address: addr, Detail: err.Error()}
}
