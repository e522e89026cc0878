package idle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/activity"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/journal"
)

// fakeHandle is an instanceHandle fake with call recording.
type fakeHandle struct {
	state         compute.PowerState
	stopErr       error
	stopCalls     int
	describeCalls int
}

func (f *fakeHandle) Describe(ctx context.Context) (*compute.Instance, error) {
	f.describeCalls++
	return &compute.Instance{ID: "i-0abc123", State: f.state}, nil
}

func (f *fakeHandle) Stop(ctx context.Context) error {
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = compute.StateStopping
	return nil
}

// fakeMonitor returns scripted samples in order, repeating the last one.
type fakeMonitor struct {
	samples []activity.Sample
	next    int
}

func (f *fakeMonitor) Sample(ctx context.Context) activity.Sample {
	i := f.next
	if i >= len(f.samples) {
		i = len(f.samples) - 1
	}
	f.next++
	s := f.samples[i]
	s.TakenAt = time.Now()
	return s
}

func idleSample() activity.Sample {
	return activity.Sample{Readings: []activity.Reading{
		{Source: activity.SourceFileWrites, Value: 0, Present: true, Active: false},
		{Source: activity.SourceGPUUtilization, Value: 2, Present: true, Active: false},
	}}
}

func busyWriteSample() activity.Sample {
	return activity.Sample{Readings: []activity.Reading{
		{Source: activity.SourceFileWrites, Value: 3, Present: true, Active: true},
		{Source: activity.SourceGPUUtilization, Value: 2, Present: true, Active: false},
	}}
}

func absentGPUSample() activity.Sample {
	return activity.Sample{Readings: []activity.Reading{
		{Source: activity.SourceFileWrites, Value: 0, Present: true, Active: false},
		{Source: activity.SourceGPUUtilization, Present: false},
	}}
}

// repeat builds a monitor that yields the same sample forever.
func repeat(s activity.Sample) *fakeMonitor {
	return &fakeMonitor{samples: []activity.Sample{s}}
}

func testConfig(capacity int) Config {
	// Interval and threshold only set the window capacity here; ticks are
	// driven directly so tests never sleep.
	return Config{
		Threshold: time.Duration(capacity) * time.Hour,
		Interval:  time.Hour,
	}
}

func TestLoop_NeverStopsBeforeWindowIsFull(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning}
	loop := NewLoop(handle, repeat(idleSample()), nil, testConfig(12))

	// Eleven fully idle samples: still short of one threshold of coverage.
	for i := 0; i < 11; i++ {
		done := loop.Tick(ctx)
		assert.False(t, done, "tick %d must not end the loop", i)
	}
	assert.Zero(t, handle.stopCalls)

	// The twelfth sample completes the window.
	done := loop.Tick(ctx)
	assert.True(t, done)
	assert.Equal(t, 1, handle.stopCalls)
}

func TestLoop_SingleWriteResetsToBusy(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning}

	samples := make([]activity.Sample, 0, 13)
	for i := 0; i < 5; i++ {
		samples = append(samples, idleSample())
	}
	samples = append(samples, busyWriteSample())
	samples = append(samples, idleSample())
	mon := &fakeMonitor{samples: samples}

	loop := NewLoop(handle, mon, nil, testConfig(12))

	// Twelve ticks fill the window, but one write sample sits inside it.
	for i := 0; i < 12; i++ {
		done := loop.Tick(ctx)
		assert.False(t, done)
	}
	assert.Zero(t, handle.stopCalls)
}

func TestLoop_AbsentGPUSignalIsBusy(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning}
	loop := NewLoop(handle, repeat(absentGPUSample()), nil, testConfig(4))

	// Write count is zero throughout, but the missing utilization reading
	// must keep the instance up.
	for i := 0; i < 10; i++ {
		done := loop.Tick(ctx)
		assert.False(t, done)
	}
	assert.Zero(t, handle.stopCalls)
}

func TestLoop_ExitsWhenInstanceStoppedElsewhere(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning}
	loop := NewLoop(handle, repeat(idleSample()), nil, testConfig(12))

	assert.False(t, loop.Tick(ctx))

	// A manual stop lands between ticks.
	handle.state = compute.StateStopped

	done := loop.Tick(ctx)
	assert.True(t, done)
	assert.Zero(t, handle.stopCalls, "no redundant stop after an external stop")
}

func TestLoop_RetriesStopOnFailure(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning, stopErr: errors.New("provider rejected")}
	loop := NewLoop(handle, repeat(idleSample()), nil, testConfig(2))

	require.False(t, loop.Tick(ctx))
	require.False(t, loop.Tick(ctx), "failed stop keeps the loop monitoring")
	assert.Equal(t, 1, handle.stopCalls)

	// Next tick retries.
	require.False(t, loop.Tick(ctx))
	assert.Equal(t, 2, handle.stopCalls)

	// Once the provider accepts, the loop ends.
	handle.stopErr = nil
	done := loop.Tick(ctx)
	assert.True(t, done)
	assert.Equal(t, 3, handle.stopCalls)
}

func TestLoop_JournalsIdleStop(t *testing.T) {
	ctx := context.Background()
	handle := &fakeHandle{state: compute.StateRunning}
	rec := &recordingJournal{}
	loop := NewLoop(handle, repeat(idleSample()), rec, testConfig(1))

	done := loop.Tick(ctx)

	require.True(t, done)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "idle_stop", rec.events[0].Action)
	assert.Equal(t, journal.OutcomeOK, rec.events[0].Outcome)
	assert.Equal(t, "i-0abc123", rec.events[0].InstanceID)
}

func TestLoop_RunHonorsCancellation(t *testing.T) {
	handle := &fakeHandle{state: compute.StateRunning}
	loop := NewLoop(handle, repeat(idleSample()), nil, Config{
		Threshold: time.Hour,
		Interval:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

// recordingJournal captures appended events.
type recordingJournal struct {
	events []journal.Event
}

func (r *recordingJournal) Append(ctx context.Context, event journal.Event) error {
	r.events = append(r.events, event)
	return nil
}
