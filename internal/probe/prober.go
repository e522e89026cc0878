// Package probe implements readiness polling against the inference service's
// health endpoint, with warm-up delay and attempt budgets per device class.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/metrics"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

// ErrNotReady is returned when the attempt budget is exhausted without a
// successful health probe.
var ErrNotReady = errors.New("instance not ready")

// NotReadyError carries the readiness wait's final state.
type NotReadyError struct {
	Address  string
	Attempts int
	Elapsed  time.Duration
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("instance at %s not ready after %d attempts (%s)", e.Address, e.Attempts, e.Elapsed.Round(time.Second))
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// Config holds readiness probe budgets.
type Config struct {
	Port           int           // inference service port
	HealthPath     string        // health endpoint path
	GPUStatusPath  string        // optional; fetched once after readiness on GPU instances
	WarmupDelay    time.Duration // fixed delay before the first attempt
	Interval       time.Duration // delay between attempts
	Attempts       int           // attempt budget
	AttemptTimeout time.Duration // per-attempt HTTP timeout
}

// DefaultConfig returns the probe budget for a device class. GPU instances
// get a longer warm-up (driver initialization) but fewer, longer-spaced
// attempts; CPU instances get a shorter warm-up and a larger budget.
func DefaultConfig(class compute.DeviceClass) Config {
	if class == compute.DeviceGPU {
		return Config{
			Port:           8000,
			HealthPath:     "/health",
			GPUStatusPath:  "/gpu-status",
			WarmupDelay:    60 * time.Second,
			Interval:       20 * time.Second,
			Attempts:       12,
			AttemptTimeout: 20 * time.Second,
		}
	}
	return Config{
		Port:           8000,
		HealthPath:     "/health",
		WarmupDelay:    45 * time.Second,
		Interval:       10 * time.Second,
		Attempts:       24,
		AttemptTimeout: 15 * time.Second,
	}
}

// Prober polls the inference service health endpoint.
type Prober struct {
	cfg    Config
	client *http.Client
}

// New creates a Prober with the given budgets.
func New(cfg Config) *Prober {
	return &Prober{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.AttemptTimeout},
	}
}

// Wait blocks until the service at addr answers its health probe or the
// attempt budget is exhausted. The wait has a hard deadline of
// WarmupDelay + Attempts * (Interval + AttemptTimeout) and never stops the
// instance on failure; reclaiming a slow starter is the idle loop's job.
func (p *Prober) Wait(ctx context.Context, addr string) error {
	log := slogger.L(ctx)
	start := time.Now()
	defer func() {
		metrics.ProbeWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if p.cfg.WarmupDelay > 0 {
		log.Debug("waiting for workload warm-up", "address", addr, "delay", p.cfg.WarmupDelay)
		if err := sleep(ctx, p.cfg.WarmupDelay); err != nil {
			return err
		}
	}

	healthURL := fmt.Sprintf("http://%s:%d%s", addr, p.cfg.Port, p.cfg.HealthPath)

	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		attemptStart := time.Now()
		err := p.get(ctx, healthURL)
		latency := time.Since(attemptStart)

		if err == nil {
			metrics.ProbeAttemptsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
			log.Info("health probe succeeded", "address", addr, "attempt", attempt, "latency", latency)
			p.reportGPUStatus(ctx, addr)
			return nil
		}

		metrics.ProbeAttemptsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		log.Debug("health probe failed", "address", addr, "attempt", attempt, "latency", latency, "error", err)

		if attempt < p.cfg.Attempts {
			if err := sleep(ctx, p.cfg.Interval); err != nil {
				return err
			}
		}
	}

	return &NotReadyError{
		Address:  addr,
		Attempts: p.cfg.Attempts,
		Elapsed:  time.Since(start),
	}
}

// reportGPUStatus fetches the accelerator status endpoint once after a
// successful readiness wait. Informational only; failures are logged and
// never fail the wait.
func (p *Prober) reportGPUStatus(ctx context.Context, addr string) {
	if p.cfg.GPUStatusPath == "" {
		return
	}

	url := fmt.Sprintf("http://%s:%d%s", addr, p.cfg.Port, p.cfg.GPUStatusPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slogger.L(ctx).Warn("gpu status check failed", "address", addr, "error", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	slogger.L(ctx).Info("gpu status", "address", addr, "status", resp.StatusCode, "body", string(body))
}

// get issues one health probe attempt. Success is any 2xx response.
func (p *Prober) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}

	return nil
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
