package http

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	"tradedesk/internal/middleware"
	"tradedesk/internal/usecase"
)

const (
	brokerMaxAge = 30 * time.Second
	brokerStale  = 60 * time.Second
)

// AlpacaHandler serves the credentialed broker proxy routes
type AlpacaHandler struct {
	portfolio    *usecase.PortfolioService
	priceTargets domain.PriceTargetService
	errs         errorMapper
	targetErrs   errorMapper
}

// NewAlpacaHandler creates a new AlpacaHandler
func NewAlpacaHandler(portfolio *usecase.PortfolioService, priceTargets domain.PriceTargetService, logger *logrus.Logger) *AlpacaHandler {
	return &AlpacaHandler{
		portfolio:    portfolio,
		priceTargets: priceTargets,
		errs:         errorMapper{logger: logger, upstreamStatus: http.StatusInternalServerError},
		targetErrs:   errorMapper{logger: logger, upstreamStatus: http.StatusBadGateway},
	}
}

// userAndMode reads the caller and the mode query parameter
func userAndMode(c echo.Context) (uuid.UUID, domain.TradingMode, error) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	mode, err := domain.ParseTradingMode(c.QueryParam("mode"))
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, mode, nil
}

// GetAccount returns the broker account
// GET /api/alpaca/account?mode=
func (h *AlpacaHandler) GetAccount(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch account")
	}

	account, err := h.portfolio.GetAccount(c.Request().Context(), userID, mode)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch account")
	}

	PrivateCache(c, brokerMaxAge, brokerStale)
	return SuccessResponse(c, account)
}

// GetPositions returns all positions, or one when symbol is given
// GET /api/alpaca/positions?mode=&symbol=
func (h *AlpacaHandler) GetPositions(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch positions")
	}

	ctx := c.Request().Context()
	if symbol := c.QueryParam("symbol"); symbol != "" {
		position, err := h.portfolio.GetPosition(ctx, userID, mode, symbol)
		if err != nil {
			return h.errs.respond(c, err, "Failed to fetch position")
		}
		PrivateCache(c, brokerMaxAge, brokerStale)
		return SuccessResponse(c, position)
	}

	positions, err := h.portfolio.GetPositions(ctx, userID, mode)
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch positions")
	}

	PrivateCache(c, brokerMaxAge, brokerStale)
	return SuccessResponse(c, positions)
}

// ClosePosition closes a position in full, or qty shares of it
// DELETE /api/alpaca/positions/:symbol?mode=&qty=
func (h *AlpacaHandler) ClosePosition(c echo.Context) error {
	userID, mode, err := userAndMode(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to close position")
	}

	var qty *float64
	if raw := c.QueryParam("qty"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return BadRequestResponse(c, "Quantity must be a positive number")
		}
		qty = &v
	}

	result, err := h.portfolio.ClosePosition(c.Request().Context(), userID, mode, c.Param("symbol"), qty)
	if err != nil {
		return h.errs.respond(c, err, "Failed to close position")
	}

	NoStore(c)
	return SuccessResponse(c, result)
}

// GetPriceTarget proxies analyst price targets
// GET /api/alpaca/price-target/:symbol
func (h *AlpacaHandler) GetPriceTarget(c echo.Context) error {
	if _, err := middleware.GetUserID(c); err != nil {
		return UnauthorizedResponse(c)
	}

	symbol, err := usecase.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		return h.targetErrs.respond(c, err, "Failed to fetch price target")
	}

	body, err := h.priceTargets.GetPriceTarget(c.Request().Context(), symbol)
	if err != nil {
		return h.targetErrs.respond(c, err, "Failed to fetch price target")
	}

	PrivateCache(c, 5*time.Minute, 10*time.Minute)
	return c.JSONBlob(http.StatusOK, body)
}
