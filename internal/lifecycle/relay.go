package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/compute"
)

// RelayConfig configures the processing relay.
type RelayConfig struct {
	Port        int           // inference service port
	ProcessPath string        // processing entry point path
	Timeout     time.Duration // end-to-end request timeout (environment dependent)
	Environment compute.Environment
	DeviceClass compute.DeviceClass
}

// Relay forwards processing payloads to the inference service once the
// instance is ready. The service's response is passed through verbatim.
type Relay struct {
	cfg    RelayConfig
	client *http.Client
}

// NewRelay creates a processing relay.
func NewRelay(cfg RelayConfig) *Relay {
	return &Relay{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// relayBody is the wire format of the processing request. The environment and
// instance type are stamped on so the service can route and report; priority
// travels through untouched.
type relayBody struct {
	Files        []string `json:"files"`
	Priority     string   `json:"priority,omitempty"`
	Environment  string   `json:"environment"`
	InstanceType string   `json:"instance_type"`
}

// Process posts the payload to the inference service at addr and returns the
// response body verbatim. Non-2xx responses and transport errors are
// reported as errors; the caller decides what that means for the instance.
func (r *Relay) Process(ctx context.Context, addr string, p Payload) (json.RawMessage, error) {
	body := relayBody{
		Files:        p.Files,
		Priority:     p.Priority,
		Environment:  string(r.cfg.Environment),
		InstanceType: strings.ToUpper(string(r.cfg.DeviceClass)),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode processing payload: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s:%d%s", addr, r.cfg.Port, r.cfg.ProcessPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build processing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post processing request: %w", err)
	}
	defer resp.Body.Close()

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read processing response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("processing returned status %d: %s", resp.StatusCode, string(result))
	}

	return result, nil
}
