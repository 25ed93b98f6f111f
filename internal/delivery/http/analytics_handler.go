package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/usecase"
)

const (
	tradesMaxAge = 120 * time.Second
	tradesStale  = 300 * time.Second
)

// AnalyticsHandler serves the analytics views of the broker account
type AnalyticsHandler struct {
	portfolio *usecase.PortfolioService
	errs      errorMapper
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(portfolio *usecase.PortfolioService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		portfolio: portfolio,
		errs:      errorMapper{logger: logger, upstreamStatus: http.StatusInternalServerError},
	}
}

// GetAccount returns the account with the day's P&L
// GET /api/analytics/account?mode=
func (h *AnalyticsHandler) GetAccount(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch account")
	}

	summary, err := h.portfolio.GetAccountSummary(c.Request().Context(), userID, mode)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch account")
	}

	PrivateCache(c, brokerMaxAge, brokerStale)
	return SuccessResponse(c, summary)
}

// GetPositions returns the open positions
// GET /api/analytics/positions?mode=
func (h *AnalyticsHandler) GetPositions(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch positions")
	}

	positions, err := h.portfolio.GetPositions(c.Request().Context(), userID, mode)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch positions")
	}

	PrivateCache(c, brokerMaxAge, brokerStale)
	return SuccessResponse(c, positions)
}

// GetTrades returns order history with closed trades, summary and the P&L curve
// GET /api/analytics/trades?mode=
func (h *AnalyticsHandler) GetTrades(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch trades")
	}

	history, err := h.portfolio.GetTradeHistory(c.Request().Context(), userID, mode)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch trades")
	}

	PrivateCache(c, tradesMaxAge, tradesStale)
	return SuccessResponse(c, history)
}
