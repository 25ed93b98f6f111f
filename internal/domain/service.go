package domain

import (
	"context"
	"encoding/json"
)

// ChatService forwards chat requests to the AI chat backend
type ChatService interface {
	Clear(ctx context.Context, body map[string]interface{}) (json.RawMessage, error)
	SendMessage(ctx context.Context, body map[string]interface{}) (json.RawMessage, error)
	Messages(ctx context.Context, limit string, userID string) (json.RawMessage, error)
	Session(ctx context.Context, userID string) (json.RawMessage, error)
}

// RestGateway reads tables through the database REST gateway
type RestGateway interface {
	Select(ctx context.Context, apiKey string, query ScreeningQuery) (*GatewayResponse, error)
}

// PriceTargetService fetches analyst price targets from the backend API
type PriceTargetService interface {
	GetPriceTarget(ctx context.Context, symbol string) (json.RawMessage, error)
}

// EventPublisher publishes audit events
type EventPublisher interface {
	PublishPositionClose(ctx context.Context, event *PositionCloseEvent) error
}

// HealthChecker probes one upstream dependency
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}
