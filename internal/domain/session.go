package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated Supabase user for one request
type Session struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session expired before now
func (s *Session) IsExpired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// TradingMode selects the broker environment
type TradingMode string

// TradingMode constants
const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// ParseTradingMode validates the mode query parameter.
// An absent or empty value selects paper trading.
func ParseTradingMode(raw string) (TradingMode, error) {
	switch TradingMode(raw) {
	case "", ModePaper:
		return ModePaper, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", &ValidationError{
		Field:   "mode",
		Message: "Invalid mode. Must be 'paper' or 'live'",
	}
}

func (m TradingMode) String() string {
	return string(m)
}
