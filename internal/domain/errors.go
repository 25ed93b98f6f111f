package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors shared across layers
var (
	// ErrUnauthorized means no valid session was presented
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCredentialsNotFound means the user has no broker keys stored for the mode
	ErrCredentialsNotFound = errors.New("broker credentials not found")
)

// CredentialsHint is shown to users who have not stored broker keys yet
const CredentialsHint = "Please add your Alpaca API keys in Settings to view this data."

// Message fragments that database-side credential lookups raise when a secret is missing.
// Kept for errors that do not carry ErrCredentialsNotFound.
var credentialsMissingMarkers = []string{
	"vault secret",
	"credentials not found",
	"no alpaca credentials",
}

// IsCredentialsMissing classifies an error as a missing-credentials condition
func IsCredentialsMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentialsNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range credentialsMissingMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ValidationError reports a bad request parameter
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConfigurationError reports a missing required setting
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Key)
}

// UpstreamError reports a non-2xx answer from an external service
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	// Details holds the parsed JSON body, or the raw text when it is not JSON
	Details interface{}
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// StatusText returns the upstream message or the standard text for its status
func (e *UpstreamError) StatusText() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// UpstreamSchemaError reports an upstream payload that does not match the expected schema
type UpstreamSchemaError struct {
	Service string
	Field   string
	Value   string
}

func (e *UpstreamSchemaError) Error() string {
	return fmt.Sprintf("%s returned malformed field %q: %q", e.Service, e.Field, e.Value)
}
