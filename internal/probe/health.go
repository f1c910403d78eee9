package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// Checker probes service health endpoints. Probe failures are classified,
// never returned as errors; a transport failure is an unhealthy service.
type Checker struct {
	httpClient *http.Client
}

// NewChecker constructs a health prober with the given per-probe timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Check performs a GET against the service health endpoint. The service is
// healthy only when the endpoint returns 200 and self-reports "healthy";
// a 200 with a degraded self-report is unhealthy.
func (c *Checker) Check(ctx context.Context, svc config.ServiceConfig) models.HealthResult {
	result := models.HealthResult{Service: svc.Name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.HealthURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("health endpoint returned %s", resp.Status)
		return result
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("decode health response: %v", err)
		return result
	}

	if body.Status != "healthy" {
		result.Error = fmt.Sprintf("health endpoint reported status %q", body.Status)
		return result
	}

	result.Healthy = true
	return result
}
