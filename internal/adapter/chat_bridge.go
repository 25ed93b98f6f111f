package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

const chatService = "ai-chat"

// ChatBridge implements domain.ChatService against the AI chat backend
type ChatBridge struct {
	baseURL        string
	httpClient     *http.Client
	messageTimeout time.Duration
	logger         *logrus.Logger
}

// NewChatBridge creates a new chat backend bridge.
// Only SendMessage gets a deadline; the others rely on the request context.
func NewChatBridge(baseURL string, messageTimeout time.Duration, logger *logrus.Logger) *ChatBridge {
	if messageTimeout <= 0 {
		messageTimeout = 10 * time.Minute
	}
	return &ChatBridge{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		messageTimeout: messageTimeout,
		logger:         logger,
	}
}

// Clear clears the chat history of a session
func (b *ChatBridge) Clear(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	return b.post(ctx, "/api/chat/clear", body)
}

// SendMessage sends a user message; inference can take minutes
func (b *ChatBridge) SendMessage(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.messageTimeout)
	defer cancel()

	start := time.Now()
	resp, err := b.post(ctx, "/api/chat/message", body)
	b.logger.WithFields(logrus.Fields{
		"upstream": chatService,
		"elapsed":  time.Since(start).String(),
	}).Debug("chat message forwarded")
	return resp, err
}

// Messages lists recent messages
func (b *ChatBridge) Messages(ctx context.Context, limit string, userID string) (json.RawMessage, error) {
	query := url.Values{}
	if limit != "" {
		query.Set("limit", limit)
	}
	if userID != "" {
		query.Set("user_id", userID)
	}
	return b.get(ctx, "/api/chat/messages", query)
}

// Session returns (or creates) the caller's chat session
func (b *ChatBridge) Session(ctx context.Context, userID string) (json.RawMessage, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	return b.get(ctx, "/api/chat/session", query)
}

// Name identifies the chat backend in health reports
func (b *ChatBridge) Name() string {
	return chatService
}

// HealthCheck checks if the chat backend is healthy
func (b *ChatBridge) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check chat backend health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat backend is unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}

func (b *ChatBridge) post(ctx context.Context, path string, body map[string]interface{}) (json.RawMessage, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return b.send(req)
}

func (b *ChatBridge) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return b.send(req)
}

func (b *ChatBridge) send(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details := parseDetails(body)
		return nil, &domain.UpstreamError{
			Service:    chatService,
			StatusCode: resp.StatusCode,
			Message:    errorDetail(details),
			Details:    details,
		}
	}

	if !json.Valid(body) {
		return nil, &domain.UpstreamSchemaError{Service: chatService, Field: "body", Value: truncate(string(body), 200)}
	}
	return json.RawMessage(body), nil
}

// errorDetail pulls a human readable message out of an error payload.
// FastAPI uses "detail", which may itself be a list of validation errors.
func errorDetail(details interface{}) string {
	m, ok := details.(map[string]interface{})
	if !ok {
		if s, ok := details.(string); ok {
			return s
		}
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		switch v := m[key].(type) {
		case nil:
			continue
		case string:
			return v
		default:
			if encoded, err := json.Marshal(v); err == nil {
				return string(encoded)
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
