package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tradedesk/configs"
	"tradedesk/internal/domain"
)

// SessionVerifier turns an access token into a session
type SessionVerifier interface {
	// Verify returns ErrUnauthorized for tokens that are invalid or expired
	Verify(ctx context.Context, token string) (*domain.Session, error)
}

// SupabaseClaims are the claims Supabase Auth puts in access tokens
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NewSessionVerifier picks local JWT verification when the signing secret is known,
// otherwise asks the auth server. Returns nil when auth is not configured.
func NewSessionVerifier(cfg configs.SupabaseConfig) SessionVerifier {
	switch {
	case cfg.JWTSecret != "":
		return NewJWTVerifier(cfg.JWTSecret)
	case cfg.URL != "" && cfg.AnonKey != "":
		return NewRemoteVerifier(cfg.URL, cfg.AnonKey, 10*time.Second)
	default:
		return nil
	}
}

// JWTVerifier validates HS256 access tokens with the project secret
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a new JWTVerifier
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// Verify parses and validates the token
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*domain.Session, error) {
	if tokenString == "" {
		return nil, domain.ErrUnauthorized
	}

	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return sessionFromClaims(claims)
}

func sessionFromClaims(claims *SupabaseClaims) (*domain.Session, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", domain.ErrUnauthorized)
	}
	session := &domain.Session{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// RemoteVerifier asks Supabase Auth who owns the token
type RemoteVerifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewRemoteVerifier creates a new RemoteVerifier
func NewRemoteVerifier(baseURL, anonKey string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify calls GET /auth/v1/user with the token
func (v *RemoteVerifier) Verify(ctx context.Context, tokenString string) (*domain.Session, error) {
	if tokenString == "" {
		return nil, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach auth server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, &domain.UpstreamError{Service: "supabase-auth", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, &domain.UpstreamSchemaError{Service: "supabase-auth", Field: "user", Value: truncateString(string(body), 200)}
	}

	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, &domain.UpstreamSchemaError{Service: "supabase-auth", Field: "id", Value: user.ID}
	}

	session := &domain.Session{UserID: userID, Email: user.Email, Role: user.Role}

	// The server already vouched for the token; exp is read only for bookkeeping
	claims := &SupabaseClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err == nil && claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
