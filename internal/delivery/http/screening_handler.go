package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	"tradedesk/internal/usecase"
)

// ScreeningHandler serves the read-through screening feeds
type ScreeningHandler struct {
	screening *usecase.ScreeningService
	logger    *logrus.Logger
	errs      errorMapper
}

// NewScreeningHandler creates a new ScreeningHandler
func NewScreeningHandler(screening *usecase.ScreeningService, logger *logrus.Logger) *ScreeningHandler {
	return &ScreeningHandler{
		screening: screening,
		logger:    logger,
		errs:      errorMapper{logger: logger, upstreamStatus: http.StatusBadGateway},
	}
}

func screeningParams(c echo.Context, dateParam string) usecase.ScreeningParams {
	return usecase.ScreeningParams{
		Limit:    c.QueryParam("limit"),
		Select:   c.QueryParam("select"),
		Date:     c.QueryParam(dateParam),
		MinScore: c.QueryParam("min_score"),
		Type:     c.QueryParam("type"),
	}
}

// GetMoonshotRecommendations lists open moonshot picks
// GET /api/moonshot/recommendations
func (h *ScreeningHandler) GetMoonshotRecommendations(c echo.Context) error {
	result, err := h.screening.MoonshotRecommendations(c.Request().Context(), screeningParams(c, ""))
	return h.forward(c, result, err, "Failed to fetch moonshot recommendations")
}

// GetPreMarket lists the pre-market analysis
// GET /api/pre-market
func (h *ScreeningHandler) GetPreMarket(c echo.Context) error {
	result, err := h.screening.PreMarket(c.Request().Context(), screeningParams(c, "analysis_date"))
	return h.forward(c, result, err, "Failed to fetch pre-market analysis")
}

// GetTopTier lists a ranked top-N view
// GET /api/top/:tier
func (h *ScreeningHandler) GetTopTier(c echo.Context) error {
	result, err := h.screening.TopTier(c.Request().Context(), c.Param("tier"), screeningParams(c, "scan_date"))
	return h.forward(c, result, err, "Failed to fetch top picks")
}

// GetTradingRecommendations lists positive trade decisions
// GET /api/trading-recommendations
func (h *ScreeningHandler) GetTradingRecommendations(c echo.Context) error {
	result, err := h.screening.TradingRecommendations(c.Request().Context(), screeningParams(c, "recommendation_date"))
	return h.forward(c, result, err, "Failed to fetch trading recommendations")
}

// forward writes the upstream body verbatim, or the read-through error envelope
func (h *ScreeningHandler) forward(c echo.Context, result *usecase.ScreeningResult, err error, action string) error {
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			h.logger.WithFields(logrus.Fields{
				"path":            c.Request().URL.Path,
				"upstream_status": upstream.StatusCode,
			}).Warn(action)
			return c.JSON(http.StatusBadGateway, UpstreamErrorBody{
				Error:   action,
				Status:  upstream.StatusCode,
				Details: upstream.Details,
			})
		}
		return h.errs.respond(c, err, action)
	}

	cacheState := "MISS"
	if result.Cached {
		cacheState = "HIT"
	}
	c.Response().Header().Set("X-Cache", cacheState)
	SharedCache(c, result.Revalidate)

	contentType := result.Response.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(http.StatusOK, contentType, result.Response.Body)
}
