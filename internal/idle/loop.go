// Package idle implements the idle-shutdown loop: a per-instance background
// task that samples activity signals over a trailing window and powers the
// instance off once the whole window shows no activity.
package idle

import (
	"context"
	"time"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/activity"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/journal"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/metrics"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// Decision is the outcome of one window evaluation.
type Decision string

// Decision constants.
const (
	DecisionBusy Decision = "busy"
	DecisionIdle Decision = "idle"
)

// instanceHandle is the internal interface for power-state operations.
type instanceHandle interface {
	Describe(ctx context.Context) (*compute.Instance, error)
	Stop(ctx context.Context) error
}

// sampler is the internal interface for taking activity samples.
type sampler interface {
	Sample(ctx context.Context) activity.Sample
}

// Config holds idle-shutdown thresholds. Both values come from deployment
// configuration; the loop carries no environment policy of its own.
type Config struct {
	Threshold time.Duration // trailing duration that must be fully idle
	Interval  time.Duration // sampling cadence
}

// Loop watches one running instance and stops it when the trailing window
// has covered the full idle threshold with no activity on any signal.
type Loop struct {
	cfg     Config
	handle  instanceHandle
	monitor sampler
	journal journal.Recorder

	window   []activity.Sample
	capacity int
}

// NewLoop creates an idle-shutdown loop for one instance.
func NewLoop(handle instanceHandle, monitor sampler, rec journal.Recorder, cfg Config) *Loop {
	capacity := 1
	if cfg.Interval > 0 && cfg.Threshold > cfg.Interval {
		capacity = int(cfg.Threshold / cfg.Interval)
	}
	if rec == nil {
		rec = journal.Discard{}
	}
	return &Loop{
		cfg:      cfg,
		handle:   handle,
		monitor:  monitor,
		journal:  rec,
		capacity: capacity,
	}
}

// Run executes the loop until the instance stops (by this loop or any other
// path) or ctx is cancelled. It returns nil on a clean exit.
func (l *Loop) Run(ctx context.Context) error {
	metrics.IdleLoopsActive.Inc()
	defer metrics.IdleLoopsActive.Dec()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	slogger.L(ctx).Info("idle monitoring started",
		"threshold", l.cfg.Threshold, "interval", l.cfg.Interval, "window_capacity", l.capacity)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if done := l.Tick(ctx); done {
				return nil
			}
		}
	}
}

// Tick performs one evaluation: re-read power state, sample activity, evict
// stale samples, and stop the instance if the full window is idle. It returns
// true when the loop should exit (instance no longer running).
func (l *Loop) Tick(ctx context.Context) bool {
	log := slogger.L(ctx)

	// The provider read is the source of truth; never act on cached state.
	inst, err := l.handle.Describe(ctx)
	if err != nil {
		log.Warn("power state read failed, staying in monitoring", "error", err)
		return false
	}

	if inst.State != compute.StateRunning {
		// Stopped by a manual trigger or another path. Exit without a
		// redundant stop call.
		log.Info("instance no longer running, idle monitoring ends", "instance", inst.ID, "state", inst.State)
		return true
	}

	sample := l.monitor.Sample(ctx)
	l.window = append(l.window, sample)
	l.evict(sample.TakenAt)

	decision := l.evaluate()
	metrics.IdleEvaluationsTotal.WithLabelValues(string(decision)).Inc()
	log.Debug("idle window evaluated",
		"instance", inst.ID, "decision", decision, "samples", len(l.window), "capacity", l.capacity)

	if decision != DecisionIdle {
		return false
	}

	log.Info("idle threshold reached, stopping instance", "instance", inst.ID, "threshold", l.cfg.Threshold)
	if err := l.handle.Stop(ctx); err != nil {
		// A missed stop costs money, not correctness. Stay in monitoring
		// and retry on the next tick.
		metrics.InstanceStopsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		log.Error("stop rejected, will retry next tick", "instance", inst.ID, "error", err)
		l.recordStop(ctx, inst.ID, journal.OutcomeFailed, err.Error())
		return false
	}

	metrics.InstanceStopsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	l.recordStop(ctx, inst.ID, journal.OutcomeOK, "idle threshold reached")

	// Re-read after the transition so the exit is based on provider state.
	if after, err := l.handle.Describe(ctx); err == nil {
		log.Info("instance stop issued", "instance", inst.ID, "state", after.State)
	}

	return true
}

// evict drops samples that fell out of the trailing threshold window.
func (l *Loop) evict(now time.Time) {
	cutoff := now.Add(-l.cfg.Threshold)
	kept := l.window[:0]
	for _, s := range l.window {
		if s.TakenAt.After(cutoff) {
			kept = append(kept, s)
		}
	}
	l.window = kept
}

// evaluate decides idle vs busy over the current window. A window that has
// not yet covered the full idle threshold can never produce an idle decision;
// an instance that just started always gets at least one threshold's worth of
// warm-up before it is eligible for shutdown.
func (l *Loop) evaluate() Decision {
	if len(l.window) < l.capacity {
		return DecisionBusy
	}
	for _, s := range l.window {
		if !s.Idle() {
			return DecisionBusy
		}
	}
	return DecisionIdle
}

func (l *Loop) recordStop(ctx context.Context, instanceID string, outcome journal.Outcome, detail string) {
	_ = l.journal.Append(ctx, journal.Event{ //nolint:errcheck // journaling is best-effort
		At:         time.Now(),
		InstanceID: instanceID,
		Action:     "idle_stop",
		Outcome:    outcome,
		Detail:     detail,
	})
}
