package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradedesk/internal/domain"
	"tradedesk/internal/service"
)

// Settlement states
const (
	Fulfilled = "fulfilled"
	Rejected  = "rejected"
)

// Settled is the outcome of one dashboard source
type Settled struct {
	Status string      `json:"status"`
	Value  interface{} `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Dashboard is the home page data, one entry per source
type Dashboard struct {
	Account   Settled `json:"account"`
	Positions Settled `json:"positions"`
	Trades    Settled `json:"trades"`
	Moonshots Settled `json:"moonshots"`
}

// DashboardService loads the home page sources concurrently
type DashboardService struct {
	portfolio *PortfolioService
	screening *ScreeningService
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(portfolio *PortfolioService, screening *ScreeningService) *DashboardService {
	return &DashboardService{portfolio: portfolio, screening: screening}
}

// Load fetches every source and waits for all of them; one failure never hides the others
func (s *DashboardService) Load(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) *Dashboard {
	var (
		d Dashboard
		g errgroup.Group
	)

	g.Go(func() error {
		account, err := s.portfolio.GetAccountSummary(ctx, userID, mode)
		d.Account = settle(account, err)
		return nil
	})
	g.Go(func() error {
		positions, err := s.portfolio.GetPositions(ctx, userID, mode)
		d.Positions = settle(positions, err)
		return nil
	})
	g.Go(func() error {
		history, err := s.portfolio.GetTradeHistory(ctx, userID, mode)
		if err != nil {
			d.Trades = settle(nil, err)
			return nil
		}
		d.Trades = settle(struct {
			Summary       service.TradeSummary `json:"summary"`
			CumulativePnL []service.PnLPoint   `json:"cumulative_pnl"`
		}{history.Summary, history.CumulativePnL}, nil)
		return nil
	})
	g.Go(func() error {
		result, err := s.screening.MoonshotRecommendations(ctx, ScreeningParams{Limit: "10"})
		if err != nil {
			d.Moonshots = settle(nil, err)
			return nil
		}
		d.Moonshots = settle(json.RawMessage(result.Response.Body), nil)
		return nil
	})

	_ = g.Wait()
	return &d
}

func settle(value interface{}, err error) Settled {
	if err != nil {
		return Settled{Status: Rejected, Reason: rejectionReason(err)}
	}
	return Settled{Status: Fulfilled, Value: value}
}

func rejectionReason(err error) string {
	var upstream *domain.UpstreamError
	switch {
	case domain.IsCredentialsMissing(err):
		return "Alpaca credentials not configured"
	case errors.As(err, &upstream):
		return upstream.StatusText()
	default:
		return err.Error()
	}
}
