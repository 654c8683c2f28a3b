package authsdk

import (
	"context"
	"net/http"
)

// Health returns the aggregated health report. A 503 still decodes; check
// Status for the verdict.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", "", nil)
	if err != nil {
		return nil, err
	}

	var out HealthResponse
	if err := decodeJSON(resp, &out, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready returns the readiness verdict. A 503 still decodes.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/ready", "", nil)
	if err != nil {
		return nil, err
	}

	var out ReadyResponse
	if err := decodeJSON(resp, &out, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &out, nil
}

// Liveness checks if the process is serving.
func (c *Client) Liveness(ctx context.Context) (*LivenessResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/livez", "", nil)
	if err != nil {
		return nil, err
	}

	var out LivenessResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the service status and request counter.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status", "", nil)
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics returns a snapshot of the service counters.
func (c *Client) Metrics(ctx context.Context) (*MetricsResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/metrics", "", nil)
	if err != nil {
		return nil, err
	}

	var out MetricsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
