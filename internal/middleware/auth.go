package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

const (
	sessionKey  = "session"
	resolvedKey = "session_resolved"
)

// SessionResolver reads the session once per request and stores it on the echo context
type SessionResolver struct {
	verifier SessionVerifier
	logger   *logrus.Logger
}

// NewSessionResolver creates a new SessionResolver. A nil verifier means auth is not configured.
func NewSessionResolver(verifier SessionVerifier, logger *logrus.Logger) *SessionResolver {
	return &SessionResolver{verifier: verifier, logger: logger}
}

// Configured reports whether sessions can be verified at all
func (r *SessionResolver) Configured() bool {
	return r.verifier != nil
}

// Resolve returns the caller's session, or nil when there is none
func (r *SessionResolver) Resolve(c echo.Context) *domain.Session {
	if resolved, _ := c.Get(resolvedKey).(bool); resolved {
		session, _ := c.Get(sessionKey).(*domain.Session)
		return session
	}
	c.Set(resolvedKey, true)

	if r.verifier == nil {
		return nil
	}

	token := ExtractAccessToken(c.Request())
	if token == "" {
		return nil
	}

	session, err := r.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		entry := r.logger.WithError(err).WithField("path", c.Request().URL.Path)
		if errors.Is(err, domain.ErrUnauthorized) {
			entry.Debug("session rejected")
		} else {
			entry.Warn("session verification failed")
		}
		return nil
	}

	if session.IsExpired(time.Now()) {
		r.logger.WithField("path", c.Request().URL.Path).Debug("session expired")
		return nil
	}

	c.Set(sessionKey, session)
	return session
}

// LoadSession resolves the session for downstream handlers without enforcing it
func (r *SessionResolver) LoadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r.Resolve(c)
		return next(c)
	}
}

// RequireSession rejects requests without a valid session
func (r *SessionResolver) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if r.Resolve(c) == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		return next(c)
	}
}

// GateConfig configures the page Auth Gate
type GateConfig struct {
	LoginPath  string
	SignupPath string
	// FailOpen lets pages through when auth is not configured
	FailOpen bool
}

// AuthGate guards page navigation.
// Rules, in order: signed-in users leave the login and signup pages, public paths pass,
// anonymous users go to the login page, everyone else passes.
func (r *SessionResolver) AuthGate(cfg GateConfig) echo.MiddlewareFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.SignupPath == "" {
		cfg.SignupPath = "/signup"
	}

	if !r.Configured() {
		if cfg.FailOpen {
			r.logger.Warn("SECURITY: auth is not configured and AUTH_FAIL_OPEN is set; all pages are served without a session")
		} else {
			r.logger.Error("auth is not configured; protected pages will answer 500 until SUPABASE_JWT_SECRET or SUPABASE_URL and SUPABASE_ANON_KEY are set")
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			// Pages are served from the cleaned path, so the rules must see the same one
			p := path.Clean("/" + req.URL.Path)

			if !r.Configured() {
				if IsPublicPath(p) {
					return next(c)
				}
				if cfg.FailOpen {
					r.logger.WithField("path", p).Warn("SECURITY: serving page without authentication")
					return next(c)
				}
				return c.HTML(http.StatusInternalServerError,
					"<h1>Configuration error</h1><p>Authentication is not configured.</p>")
			}

			session := r.Resolve(c)

			if session != nil && (p == cfg.LoginPath || p == cfg.SignupPath) {
				return c.Redirect(http.StatusFound, SafeRedirect(c.QueryParam("redirectTo")))
			}

			if IsPublicPath(p) {
				return next(c)
			}

			if session == nil {
				target := p
				if req.URL.RawQuery != "" {
					target += "?" + req.URL.RawQuery
				}
				return c.Redirect(http.StatusFound, fmt.Sprintf("%s?redirectTo=%s", cfg.LoginPath, url.QueryEscape(target)))
			}

			return next(c)
		}
	}
}

var publicPrefixes = []string{"/api/", "/_next/", "/static/", "/assets/"}

var publicFiles = map[string]bool{
	"/login":         true,
	"/signup":        true,
	"/favicon.ico":   true,
	"/manifest.json": true,
	"/robots.txt":    true,
}

var staticExtensions = map[string]bool{
	".svg": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".ico": true,
	".css": true, ".js": true, ".map": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// IsPublicPath reports whether a path is reachable without a session
func IsPublicPath(p string) bool {
	if publicFiles[p] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// SafeRedirect returns target when it is a same-origin relative path, else "/"
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return "/"
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}

// GetSession returns the session resolved for this request
func GetSession(c echo.Context) (*domain.Session, bool) {
	session, ok := c.Get(sessionKey).(*domain.Session)
	return session, ok && session != nil
}

// GetUserID extracts the user ID of the resolved session
func GetUserID(c echo.Context) (uuid.UUID, error) {
	session, ok := GetSession(c)
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return session.UserID, nil
}
