package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Signal source names.
const (
	SourceFileWrites     = "file_writes"
	SourceGPUUtilization = "gpu_utilization"
)

const defaultSampleTimeout = 10 * time.Second

// FileWriteSource counts artifact files freshly written by the workload
// within a bounded lookback window. Any recent write means the instance is
// mid-task and must not be stopped.
type FileWriteSource struct {
	baseURL  string
	lookback time.Duration
	client   *http.Client
}

// NewFileWriteSource creates a file-activity source probing the workload at
// baseURL (e.g. "http://10.0.0.5:8000").
func NewFileWriteSource(baseURL string, lookback time.Duration) *FileWriteSource {
	return &FileWriteSource{
		baseURL:  baseURL,
		lookback: lookback,
		client:   &http.Client{Timeout: defaultSampleTimeout},
	}
}

// Name implements Source.
func (s *FileWriteSource) Name() string { return SourceFileWrites }

// Sample implements Source.
func (s *FileWriteSource) Sample(ctx context.Context) Reading {
	endpoint := fmt.Sprintf("%s/stats/recent-writes?window=%s", s.baseURL, url.QueryEscape(s.lookback.String()))

	var body struct {
		Count int `json:"count"`
	}
	if err := getJSON(ctx, s.client, endpoint, &body); err != nil {
		return Reading{Source: s.Name(), Present: false}
	}

	return Reading{
		Source:  s.Name(),
		Value:   float64(body.Count),
		Present: true,
		Active:  body.Count > 0,
	}
}

// GPUUtilizationSource reads the accelerator utilization percentage from the
// workload's GPU status endpoint. Constructed only for GPU instances.
type GPUUtilizationSource struct {
	baseURL string
	floor   float64
	client  *http.Client
}

// NewGPUUtilizationSource creates a utilization source. Utilization at or
// above floor (percent) counts as active.
func NewGPUUtilizationSource(baseURL string, floor float64) *GPUUtilizationSource {
	return &GPUUtilizationSource{
		baseURL: baseURL,
		floor:   floor,
		client:  &http.Client{Timeout: defaultSampleTimeout},
	}
}

// Name implements Source.
func (s *GPUUtilizationSource) Name() string { return SourceGPUUtilization }

// Sample implements Source. A missing or unreadable utilization reading is
// reported as absent, not as zero; defaulting to zero would count a wedged
// probe as idle and tear down a busy instance.
func (s *GPUUtilizationSource) Sample(ctx context.Context) Reading {
	endpoint := s.baseURL + "/gpu-status"

	var body struct {
		UtilizationPercent *float64 `json:"utilization_percent"`
	}
	if err := getJSON(ctx, s.client, endpoint, &body); err != nil {
		return Reading{Source: s.Name(), Present: false}
	}
	if body.UtilizationPercent == nil {
		return Reading{Source: s.Name(), Present: false}
	}

	return Reading{
		Source:  s.Name(),
		Value:   *body.UtilizationPercent,
		Present: true,
		Active:  *body.UtilizationPercent >= s.floor,
	}
}

// getJSON issues a GET and decodes a 2xx JSON response into out.
func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
