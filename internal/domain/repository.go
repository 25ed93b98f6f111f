package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRepository resolves broker credentials for a user
type CredentialRepository interface {
	// GetBrokerCredentials returns the user's keys for the mode.
	// Returns an error wrapping ErrCredentialsNotFound when none are stored.
	GetBrokerCredentials(ctx context.Context, userID uuid.UUID, mode TradingMode) (*BrokerCredentials, error)
}

// ResponseCache stores gateway responses for their revalidation window
type ResponseCache interface {
	// Get returns the cached response, or false on a miss or cache failure
	Get(ctx context.Context, key string) (*CachedResponse, bool)

	// Set stores the response for ttl; failures are logged, not returned
	Set(ctx context.Context, key string, resp *GatewayResponse, ttl time.Duration)
}
