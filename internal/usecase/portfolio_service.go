package usecase

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	"tradedesk/internal/service"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./-]{0,14}$`)

const (
	// orderHistoryLimit is the broker's maximum page size for order listings
	orderHistoryLimit = 500
	maxOrderPages     = 10
)

// AccountSummary is the account snapshot plus the day's equity change
type AccountSummary struct {
	domain.Account
	DayPL        *float64 `json:"day_pl,omitempty"`
	DayPLPercent *float64 `json:"day_pl_percent,omitempty"`
}

// TradeHistory is the raw order list with its derived trade metrics.
// Truncated is set when older orders exist beyond the pages that were read.
type TradeHistory struct {
	Orders    []domain.Order `json:"orders"`
	Truncated bool           `json:"truncated,omitempty"`
	service.TradeReport
}

// CloseResult is returned after a close order was accepted
type CloseResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
}

// PortfolioService resolves a user's broker credentials and reads their portfolio
type PortfolioService struct {
	creds  domain.CredentialRepository
	broker domain.BrokerClient
	events domain.EventPublisher
	logger *logrus.Logger
	now    func() time.Time

	maxOrderPages int
}

// NewPortfolioService creates a new PortfolioService
func NewPortfolioService(
	creds domain.CredentialRepository,
	broker domain.BrokerClient,
	events domain.EventPublisher,
	logger *logrus.Logger,
) *PortfolioService {
	return &PortfolioService{
		creds:  creds,
		broker: broker,
		events: events,
		logger: logger,
		now:    time.Now,

		maxOrderPages: maxOrderPages,
	}
}

func (s *PortfolioService) credentials(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.BrokerCredentials, error) {
	return s.creds.GetBrokerCredentials(ctx, userID, mode)
}

// GetAccount returns the broker account snapshot
func (s *PortfolioService) GetAccount(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.Account, error) {
	creds, err := s.credentials(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	return s.broker.GetAccount(ctx, creds, mode)
}

// GetAccountSummary returns the account with the day's P&L attached
func (s *PortfolioService) GetAccountSummary(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*AccountSummary, error) {
	account, err := s.GetAccount(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	pl, pct := account.DayPnL()
	return &AccountSummary{Account: *account, DayPL: pl, DayPLPercent: pct}, nil
}

// GetPositions returns all open positions
func (s *PortfolioService) GetPositions(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) ([]domain.Position, error) {
	creds, err := s.credentials(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	positions, err := s.broker.GetPositions(ctx, creds, mode)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	return positions, nil
}

// GetPosition returns one open position
func (s *PortfolioService) GetPosition(ctx context.Context, userID uuid.UUID, mode domain.TradingMode, symbol string) (*domain.Position, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	return s.broker.GetPosition(ctx, creds, mode, symbol)
}

// ClosePosition closes all of a position, or qty shares of it
func (s *PortfolioService) ClosePosition(ctx context.Context, userID uuid.UUID, mode domain.TradingMode, symbol string, qty *float64) (*CloseResult, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if qty != nil && (!(*qty > 0) || math.IsInf(*qty, 0)) {
		return nil, &domain.ValidationError{Field: "qty", Message: "Quantity must be a positive number"}
	}

	creds, err := s.credentials(ctx, userID, mode)
	if err != nil {
		return nil, err
	}

	order, err := s.broker.ClosePosition(ctx, creds, mode, symbol, qty)
	if err != nil {
		return nil, err
	}

	s.publishClose(ctx, userID, mode, symbol, qty, order)

	message := fmt.Sprintf("Position %s closed", symbol)
	if qty != nil {
		message = fmt.Sprintf("Closed %s shares of %s", formatQty(*qty), symbol)
	}
	return &CloseResult{Success: true, Message: message, Order: order}, nil
}

// publishClose records the close request; failures never fail the close itself
func (s *PortfolioService) publishClose(ctx context.Context, userID uuid.UUID, mode domain.TradingMode, symbol string, qty *float64, order *domain.Order) {
	if s.events == nil {
		return
	}
	event := &domain.PositionCloseEvent{
		EventID:   uuid.New(),
		EventType: domain.EventTypePositionCloseRequested,
		UserID:    userID,
		Mode:      mode,
		Symbol:    symbol,
		Qty:       qty,
		Timestamp: s.now().UTC(),
	}
	if order != nil {
		event.OrderID = order.ID
	}
	if err := s.events.PublishPositionClose(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol,
			"mode":   mode,
		}).Warn("failed to publish position close event")
	}
}

// GetTradeHistory returns the order history and the closed-trade analytics built from it
func (s *PortfolioService) GetTradeHistory(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*TradeHistory, error) {
	creds, err := s.credentials(ctx, userID, mode)
	if err != nil {
		return nil, err
	}

	orders, truncated, err := s.orderHistory(ctx, creds, mode)
	if err != nil {
		return nil, err
	}

	var report service.TradeReport
	if truncated {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"mode":    mode,
			"orders":  len(orders),
		}).Warn("order history truncated; unmatched closing sells are left out")
		report = service.AnalyzeTruncatedOrders(orders)
	} else {
		report = service.AnalyzeOrders(orders)
	}
	if report.ClosedTrades == nil {
		report.ClosedTrades = []service.ClosedTrade{}
	}
	return &TradeHistory{Orders: orders, Truncated: truncated, TradeReport: report}, nil
}

// orderHistory pages back through closed orders, newest first.
// It reports whether older orders were left unread.
func (s *PortfolioService) orderHistory(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode) ([]domain.Order, bool, error) {
	orders := []domain.Order{}
	seen := make(map[string]bool)
	var until *time.Time

	for page := 0; page < s.maxOrderPages; page++ {
		batch, err := s.broker.ListOrders(ctx, creds, mode, domain.OrderQuery{
			Status:    "closed",
			Limit:     orderHistoryLimit,
			Direction: "desc",
			Until:     until,
		})
		if err != nil {
			return nil, false, err
		}

		added := 0
		var oldest *time.Time
		for _, o := range batch {
			if t := firstSubmitted(o); t != nil && (oldest == nil || t.Before(*oldest)) {
				oldest = t
			}
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			orders = append(orders, o)
			added++
		}

		if len(batch) < orderHistoryLimit {
			return orders, false, nil
		}
		if oldest == nil || added == 0 {
			return orders, true, nil
		}
		next := *oldest
		until = &next
	}
	return orders, true, nil
}

func firstSubmitted(o domain.Order) *time.Time {
	if o.SubmittedAt != nil {
		return o.SubmittedAt
	}
	return o.CreatedAt
}

// NormalizeSymbol upper-cases and validates a ticker symbol
func NormalizeSymbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolPattern.MatchString(symbol) {
		return "", &domain.ValidationError{Field: "symbol", Message: "Invalid symbol"}
	}
	return symbol, nil
}

func formatQty(q float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", q), "0"), ".")
}
