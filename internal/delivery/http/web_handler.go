package http

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"tradedesk/internal/service"
)

const serviceName = "tradedesk"

// WebHandler serves the health endpoint and the built front-end pages
type WebHandler struct {
	webRoot string
	health  *service.HealthService
	started time.Time
}

// NewWebHandler creates a new WebHandler
func NewWebHandler(webRoot string, health *service.HealthService) *WebHandler {
	return &WebHandler{
		webRoot: webRoot,
		health:  health,
		started: time.Now(),
	}
}

// Health reports service status and the last upstream probes
// GET /health
func (h *WebHandler) Health(c echo.Context) error {
	status := "healthy"
	var upstreams []service.ProbeResult
	if h.health != nil {
		upstreams = h.health.Results()
		if !h.health.Healthy() {
			status = "degraded"
		}
	}

	NoStore(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    status,
		"service":   serviceName,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"upstreams": upstreams,
	})
}

// ServePage serves a file from the web root.
// Extensionless paths resolve to <path>.html, <path>/index.html, then index.html.
func (h *WebHandler) ServePage(c echo.Context) error {
	clean := path.Clean("/" + c.Request().URL.Path)
	if strings.HasPrefix(clean, "/api/") || clean == "/api" {
		return echo.NewHTTPError(http.StatusNotFound, "Not Found")
	}

	for _, candidate := range pageCandidates(clean) {
		full := filepath.Join(h.webRoot, filepath.FromSlash(candidate))
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return c.File(full)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "Not Found")
}

func pageCandidates(clean string) []string {
	if path.Ext(clean) != "" {
		return []string{clean}
	}
	trimmed := strings.TrimSuffix(clean, "/")
	if trimmed == "" {
		return []string{"/index.html"}
	}
	return []string{trimmed + ".html", trimmed + "/index.html", "/index.html"}
}
