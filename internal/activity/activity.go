// Package activity samples independent idle signals from the running
// workload. Each signal is a Source; the Monitor composes them into one
// timestamped Sample per tick.
package activity

import (
	"context"
	"time"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/metrics"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// Reading is one signal observation. Present is false when the sub-probe
// failed; an absent reading must be treated as busy downstream, never idle.
type Reading struct {
	Source  string
	Value   float64
	Present bool
	Active  bool // meaningful only when Present
}

// Sample is the set of readings taken on one tick.
type Sample struct {
	TakenAt  time.Time
	Readings []Reading
}

// Idle reports whether every reading was taken successfully and none shows
// activity. A missing signal is conservatively counted as busy.
func (s Sample) Idle() bool {
	for _, r := range s.Readings {
		if !r.Present || r.Active {
			return false
		}
	}
	return len(s.Readings) > 0
}

// Source is one independently-sampled idle signal.
type Source interface {
	// Name identifies the signal in logs and metrics.
	Name() string

	// Sample returns the current reading. A failed probe yields
	// Present=false rather than an error; the monitor never aborts on a
	// degraded signal.
	Sample(ctx context.Context) Reading
}

// Monitor composes signal sources into samples.
type Monitor struct {
	sources []Source
}

// NewMonitor creates a monitor over the given sources.
func NewMonitor(sources ...Source) *Monitor {
	return &Monitor{sources: sources}
}

// Sample takes one reading from every source.
func (m *Monitor) Sample(ctx context.Context) Sample {
	sample := Sample{
		TakenAt:  time.Now(),
		Readings: make([]Reading, 0, len(m.sources)),
	}

	for _, src := range m.sources {
		r := src.Sample(ctx)
		sample.Readings = append(sample.Readings, r)

		outcome := metrics.OutcomeOK
		if !r.Present {
			outcome = metrics.OutcomeError
		}
		metrics.ActivitySamplesTotal.WithLabelValues(src.Name(), outcome).Inc()
		slogger.L(ctx).Debug("activity signal sampled",
			"source", src.Name(), "value", r.Value, "present", r.Present, "active", r.Active)
	}

	return sample
}
