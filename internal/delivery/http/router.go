package http

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	custommiddleware "tradedesk/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Sessions         *custommiddleware.SessionResolver
	Gate             custommiddleware.GateConfig
	AlpacaHandler    *AlpacaHandler
	AnalyticsHandler *AnalyticsHandler
	ScreeningHandler *ScreeningHandler
	ChatHandler      *ChatHandler
	DashboardHandler *DashboardHandler
	WebHandler       *WebHandler
	Logger           *logrus.Logger
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.HTTPErrorHandler = JSONErrorHandler(config.Logger)

	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging for health probes and static assets to reduce noise
			p := c.Request().URL.Path
			if p == "/health" {
				return true
			}
			return strings.HasPrefix(p, "/_next/") || strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/assets/")
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/health", config.WebHandler.Health)

	// API group; the session is optional here and enforced per group
	api := e.Group("/api", config.Sessions.LoadSession)

	alpaca := api.Group("/alpaca", config.Sessions.RequireSession)
	{
		alpaca.GET("/account", config.AlpacaHandler.GetAccount)
		alpaca.GET("/positions", config.AlpacaHandler.GetPositions)
		alpaca.DELETE("/positions/:symbol", config.AlpacaHandler.ClosePosition)
		alpaca.GET("/price-target/:symbol", config.AlpacaHandler.GetPriceTarget)
	}

	analytics := api.Group("/analytics", config.Sessions.RequireSession)
	{
		analytics.GET("/account", config.AnalyticsHandler.GetAccount)
		analytics.GET("/positions", config.AnalyticsHandler.GetPositions)
		analytics.GET("/trades", config.AnalyticsHandler.GetTrades)
	}

	api.GET("/dashboard", config.DashboardHandler.GetDashboard, config.Sessions.RequireSession)

	// Screening feeds read with server-side keys, no session needed
	api.GET("/moonshot/recommendations", config.ScreeningHandler.GetMoonshotRecommendations)
	api.GET("/pre-market", config.ScreeningHandler.GetPreMarket)
	api.GET("/top/:tier", config.ScreeningHandler.GetTopTier)
	api.GET("/trading-recommendations", config.ScreeningHandler.GetTradingRecommendations)

	chat := api.Group("/ai-chat")
	{
		chat.POST("/clear", config.ChatHandler.Clear)
		chat.POST("/message", config.ChatHandler.SendMessage)
		chat.GET("/messages", config.ChatHandler.GetMessages)
		chat.GET("/session", config.ChatHandler.GetSession)
	}

	// Pages behind the Auth Gate
	pages := e.Group("", config.Sessions.AuthGate(config.Gate))
	pages.GET("/*", config.WebHandler.ServePage)
}
