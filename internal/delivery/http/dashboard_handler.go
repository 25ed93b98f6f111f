package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/usecase"
)

// DashboardHandler serves the home page aggregate
type DashboardHandler struct {
	dashboard *usecase.DashboardService
	errs      errorMapper
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboard *usecase.DashboardService, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		errs:      errorMapper{logger: logger, upstreamStatus: http.StatusInternalServerError},
	}
}

// GetDashboard loads every home page source; individual failures are reported per source
// GET /api/dashboard?mode=
func (h *DashboardHandler) GetDashboard(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to load dashboard")
	}

	d := h.dashboard.Load(c.Request().Context(), userID, mode)

	PrivateCache(c, brokerMaxAge, brokerStale)
	return SuccessResponse(c, d)
}
