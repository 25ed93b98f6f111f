package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

const gatewayService = "rest-gateway"

// RestGateway reads tables through the Supabase PostgREST endpoint (/rest/v1)
type RestGateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRestGateway creates a new REST gateway client
func NewRestGateway(baseURL string, logger *logrus.Logger) *RestGateway {
	return &RestGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// BuildURL renders the query as a PostgREST URL
func (g *RestGateway) BuildURL(query domain.ScreeningQuery) string {
	values := url.Values{}
	if query.Select != "" {
		values.Set("select", query.Select)
	}
	if query.Order != "" {
		values.Set("order", query.Order)
	}
	for _, f := range query.Filters {
		values.Add(f.Column, f.Operator+"."+f.Value)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", g.baseURL, url.PathEscape(query.Table))
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

// Select runs the query with the given API key and returns the body verbatim
func (g *RestGateway) Select(ctx context.Context, apiKey string, query domain.ScreeningQuery) (*domain.GatewayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BuildURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rest gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.WithFields(logrus.Fields{
			"upstream": gatewayService,
			"table":    query.Table,
			"status":   resp.StatusCode,
		}).Warn("rest gateway returned an error")

		upstream := &domain.UpstreamError{
			Service:    gatewayService,
			StatusCode: resp.StatusCode,
			Details:    parseDetails(body),
		}
		if m, ok := upstream.Details.(map[string]interface{}); ok {
			if msg, ok := m["message"].(string); ok {
				upstream.Message = msg
			}
		}
		return nil, upstream
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	return &domain.GatewayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Name identifies the gateway in health reports
func (g *RestGateway) Name() string {
	return gatewayService
}

// HealthCheck checks that the gateway answers at all; any HTTP answer counts
func (g *RestGateway) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("rest gateway is unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}

// parseDetails decodes a JSON body, falling back to the raw text
func parseDetails(body []byte) interface{} {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return strings.TrimSpace(string(body))
}
