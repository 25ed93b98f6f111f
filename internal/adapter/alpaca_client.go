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
	"golang.org/x/time/rate"

	"tradedesk/internal/domain"
)

// AlpacaClient implements domain.BrokerClient against the Alpaca trading API
type AlpacaClient struct {
	baseURLs   map[domain.TradingMode]string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// AlpacaOptions configures an AlpacaClient
type AlpacaOptions struct {
	PaperURL           string
	LiveURL            string
	RateLimitPerMinute int
	Timeout            time.Duration
}

// NewAlpacaClient creates a new broker client
func NewAlpacaClient(opts AlpacaOptions, logger *logrus.Logger) *AlpacaClient {
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	burst := opts.RateLimitPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &AlpacaClient{
		baseURLs: map[domain.TradingMode]string{
			domain.ModePaper: strings.TrimRight(opts.PaperURL, "/"),
			domain.ModeLive:  strings.TrimRight(opts.LiveURL, "/"),
		},
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimitPerMinute)), burst),
		logger:     logger,
	}
}

// GetAccount fetches the account snapshot
func (c *AlpacaClient) GetAccount(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode) (*domain.Account, error) {
	var raw alpacaAccount
	if err := c.do(ctx, creds, mode, http.MethodGet, "/v2/account", nil, &raw); err != nil {
		return nil, err
	}
	return toAccount(&raw)
}

// GetPositions fetches all open positions
func (c *AlpacaClient) GetPositions(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode) ([]domain.Position, error) {
	var raw []alpacaPosition
	if err := c.do(ctx, creds, mode, http.MethodGet, "/v2/positions", nil, &raw); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(raw))
	for i := range raw {
		pos, err := toPosition(&raw[i])
		if err != nil {
			return nil, err
		}
		positions = append(positions, *pos)
	}
	return positions, nil
}

// GetPosition fetches the open position for one symbol
func (c *AlpacaClient) GetPosition(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, symbol string) (*domain.Position, error) {
	var raw alpacaPosition
	path := "/v2/positions/" + url.PathEscape(symbol)
	if err := c.do(ctx, creds, mode, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return toPosition(&raw)
}

// ClosePosition liquidates a position, or qty shares of it when qty is set
func (c *AlpacaClient) ClosePosition(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, symbol string, qty *float64) (*domain.Order, error) {
	var query url.Values
	if qty != nil {
		query = url.Values{"qty": {formatQty(*qty)}}
	}

	var raw alpacaOrder
	path := "/v2/positions/" + url.PathEscape(symbol)
	if err := c.do(ctx, creds, mode, http.MethodDelete, path, query, &raw); err != nil {
		return nil, err
	}
	return toOrder(&raw)
}

// ListOrders fetches order history
func (c *AlpacaClient) ListOrders(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, q domain.OrderQuery) ([]domain.Order, error) {
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Direction != "" {
		query.Set("direction", q.Direction)
	}
	if q.After != nil {
		query.Set("after", q.After.UTC().Format(time.RFC3339))
	}
	if q.Until != nil {
		query.Set("until", q.Until.UTC().Format(time.RFC3339Nano))
	}

	var raw []alpacaOrder
	if err := c.do(ctx, creds, mode, http.MethodGet, "/v2/orders", query, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raw))
	for i := range raw {
		order, err := toOrder(&raw[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func (c *AlpacaClient) do(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, method, path string, query url.Values, out interface{}) error {
	baseURL, ok := c.baseURLs[mode]
	if !ok || baseURL == "" {
		return &domain.ConfigurationError{Key: "ALPACA_" + strings.ToUpper(mode.String()) + "_URL"}
	}
	if creds == nil {
		return fmt.Errorf("alpaca %s %s: %w", method, path, domain.ErrCredentialsNotFound)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alpaca rate limiter: %w", err)
	}

	endpoint := baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create alpaca request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", creds.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", creds.SecretKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call alpaca: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"upstream": alpacaService,
		"method":   method,
		"path":     path,
		"mode":     mode,
		"status":   resp.StatusCode,
		"latency":  time.Since(start).String(),
	}).Debug("alpaca request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		upstream := &domain.UpstreamError{Service: alpacaService, StatusCode: resp.StatusCode}
		var apiErr alpacaError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			upstream.Message = apiErr.Message
			upstream.Details = apiErr
		} else {
			upstream.Message = strings.TrimSpace(string(body))
		}
		return upstream
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.UpstreamSchemaError{Service: alpacaService, Field: "body", Value: err.Error()}
	}
	return nil
}
