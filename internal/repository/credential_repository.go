package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tradedesk/internal/domain"
)

// rowQuerier is the subset of *pgxpool.Pool the credential lookup needs
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VaultCredentialRepository reads per-user broker keys from Supabase Vault
type VaultCredentialRepository struct {
	db rowQuerier
}

// NewVaultCredentialRepository creates a new VaultCredentialRepository
func NewVaultCredentialRepository(db rowQuerier) domain.CredentialRepository {
	return &VaultCredentialRepository{db: db}
}

// SecretName returns the vault secret name for a user's key of the given kind
func SecretName(mode domain.TradingMode, kind string, userID uuid.UUID) string {
	return fmt.Sprintf("alpaca_%s_%s_%s", mode, kind, userID)
}

// GetBrokerCredentials fetches the API key pair for a user and mode
func (r *VaultCredentialRepository) GetBrokerCredentials(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.BrokerCredentials, error) {
	query := `
		SELECT
			MAX(decrypted_secret) FILTER (WHERE name = $1),
			MAX(decrypted_secret) FILTER (WHERE name = $2)
		FROM vault.decrypted_secrets
		WHERE name IN ($1, $2)
	`

	var keyID, secret *string
	err := r.db.QueryRow(ctx, query,
		SecretName(mode, "api_key", userID),
		SecretName(mode, "secret_key", userID),
	).Scan(&keyID, &secret)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vault secret missing for %s mode: %w", mode, domain.ErrCredentialsNotFound)
		}
		return nil, fmt.Errorf("failed to read broker credentials: %w", err)
	}

	if keyID == nil || secret == nil || strings.TrimSpace(*keyID) == "" || strings.TrimSpace(*secret) == "" {
		return nil, fmt.Errorf("vault secret missing for %s mode: %w", mode, domain.ErrCredentialsNotFound)
	}

	return &domain.BrokerCredentials{
		KeyID:     strings.TrimSpace(*keyID),
		SecretKey: strings.TrimSpace(*secret),
	}, nil
}

// EnvCredentialRepository serves one shared key pair per mode from configuration.
// Used for local development when no database is configured.
type EnvCredentialRepository struct {
	creds map[domain.TradingMode]domain.BrokerCredentials
}

// NewEnvCredentialRepository creates a repository from static key pairs
func NewEnvCredentialRepository(paper, live domain.BrokerCredentials) domain.CredentialRepository {
	return &EnvCredentialRepository{
		creds: map[domain.TradingMode]domain.BrokerCredentials{
			domain.ModePaper: paper,
			domain.ModeLive:  live,
		},
	}
}

// GetBrokerCredentials returns the configured pair for the mode, ignoring the user
func (r *EnvCredentialRepository) GetBrokerCredentials(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.BrokerCredentials, error) {
	c, ok := r.creds[mode]
	if !ok || c.KeyID == "" || c.SecretKey == "" {
		return nil, fmt.Errorf("no alpaca credentials configured for %s mode: %w", mode, domain.ErrCredentialsNotFound)
	}
	return &domain.BrokerCredentials{KeyID: c.KeyID, SecretKey: c.SecretKey}, nil
}
