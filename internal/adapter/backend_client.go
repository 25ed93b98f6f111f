package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradedesk/internal/domain"
)

const backendService = "backend-api"

// BackendClient fetches analyst data from the generic backend API
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackendClient creates a new BackendClient
func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetPriceTarget fetches the price target document for a symbol
func (c *BackendClient) GetPriceTarget(ctx context.Context, symbol string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/price-target/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price target from backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		details := parseDetails(body)
		return nil, &domain.UpstreamError{
			Service:    backendService,
			StatusCode: resp.StatusCode,
			Message:    errorDetail(details),
			Details:    details,
		}
	}

	if !json.Valid(body) {
		return nil, &domain.UpstreamSchemaError{Service: backendService, Field: "body", Value: truncate(string(body), 200)}
	}
	return json.RawMessage(body), nil
}

// Name identifies the backend in health reports
func (c *BackendClient) Name() string {
	return backendService
}

// HealthCheck checks if the backend API is healthy
func (c *BackendClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check backend health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend is unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}
