package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kushscan/kushscan/internal/domain"
)

// APIClient talks to the KushScan backend.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient builds a client for the given server base URL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RequestInsight posts an insight request and decodes the response.
// Server statuses map back onto the domain sentinels so callers branch on
// errors.Is instead of status codes.
func (c *APIClient) RequestInsight(ctx context.Context, req *domain.InsightRequest) (*domain.InsightResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/insights", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, domain.ErrInvalidRequest
	case http.StatusTooManyRequests:
		return nil, domain.ErrQuotaExceeded
	case http.StatusServiceUnavailable:
		return nil, domain.ErrBackendUnavailable
	default:
		return nil, fmt.Errorf("%w: server returned %d", domain.ErrGenerationFailure, resp.StatusCode)
	}

	var insight domain.InsightResponse
	if err := json.NewDecoder(resp.Body).Decode(&insight); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &insight, nil
}

// AnalyzeCOA posts a lab-report analysis request.
func (c *APIClient) AnalyzeCOA(ctx context.Context, req *domain.COARequest) (*domain.COAResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/coa", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return nil, domain.ErrInvalidRequest
	case http.StatusTooManyRequests:
		return nil, domain.ErrQuotaExceeded
	case http.StatusServiceUnavailable:
		return nil, domain.ErrBackendUnavailable
	default:
		return nil, fmt.Errorf("%w: server returned %d", domain.ErrGenerationFailure, resp.StatusCode)
	}

	var result domain.COAResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}
