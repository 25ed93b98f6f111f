package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BrokerCredentials are the per-user API keys for one trading mode
type BrokerCredentials struct {
	KeyID     string
	SecretKey string
}

// Account is a broker account snapshot.
// Optional fields stay nil when the broker omits them.
type Account struct {
	ID                    string     `json:"id,omitempty"`
	AccountNumber         string     `json:"account_number,omitempty"`
	Status                string     `json:"status,omitempty"`
	Currency              string     `json:"currency,omitempty"`
	BuyingPower           float64    `json:"buying_power"`
	Cash                  float64    `json:"cash"`
	PortfolioValue        float64    `json:"portfolio_value"`
	Equity                float64    `json:"equity"`
	LastEquity            *float64   `json:"last_equity,omitempty"`
	LongMarketValue       *float64   `json:"long_market_value,omitempty"`
	ShortMarketValue      *float64   `json:"short_market_value,omitempty"`
	DaytradingBuyingPower *float64   `json:"daytrading_buying_power,omitempty"`
	RegtBuyingPower       *float64   `json:"regt_buying_power,omitempty"`
	Multiplier            *float64   `json:"multiplier,omitempty"`
	DaytradeCount         *int       `json:"daytrade_count,omitempty"`
	PatternDayTrader      bool       `json:"pattern_day_trader"`
	TradingBlocked        bool       `json:"trading_blocked"`
	AccountBlocked        bool       `json:"account_blocked"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
}

// DayPnL returns equity change since the previous close, and its percentage.
// Both are nil when last equity is unknown or zero.
func (a *Account) DayPnL() (*float64, *float64) {
	if a.LastEquity == nil || *a.LastEquity == 0 {
		return nil, nil
	}
	pl := a.Equity - *a.LastEquity
	pct := pl / *a.LastEquity * 100
	return &pl, &pct
}

// Position is an open holding
type Position struct {
	AssetID                string   `json:"asset_id,omitempty"`
	Symbol                 string   `json:"symbol"`
	Exchange               string   `json:"exchange,omitempty"`
	AssetClass             string   `json:"asset_class,omitempty"`
	Side                   string   `json:"side"`
	Qty                    float64  `json:"qty"`
	QtyAvailable           *float64 `json:"qty_available,omitempty"`
	AvgEntryPrice          float64  `json:"avg_entry_price"`
	CostBasis              float64  `json:"cost_basis"`
	MarketValue            *float64 `json:"market_value,omitempty"`
	CurrentPrice           *float64 `json:"current_price,omitempty"`
	LastdayPrice           *float64 `json:"lastday_price,omitempty"`
	ChangeToday            *float64 `json:"change_today,omitempty"`
	UnrealizedPL           *float64 `json:"unrealized_pl,omitempty"`
	UnrealizedPLPC         *float64 `json:"unrealized_plpc,omitempty"`
	UnrealizedIntradayPL   *float64 `json:"unrealized_intraday_pl,omitempty"`
	UnrealizedIntradayPLPC *float64 `json:"unrealized_intraday_plpc,omitempty"`
}

// Order is a read-only projection of a broker order
type Order struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id,omitempty"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Qty            *float64   `json:"qty,omitempty"`
	Notional       *float64   `json:"notional,omitempty"`
	FilledQty      *float64   `json:"filled_qty,omitempty"`
	FilledAvgPrice *float64   `json:"filled_avg_price,omitempty"`
	OrderType      string     `json:"order_type"`
	TimeInForce    string     `json:"time_in_force,omitempty"`
	LimitPrice     *float64   `json:"limit_price,omitempty"`
	StopPrice      *float64   `json:"stop_price,omitempty"`
	Status         string     `json:"status"`
	ExtendedHours  bool       `json:"extended_hours"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	FilledAt       *time.Time `json:"filled_at,omitempty"`
	CanceledAt     *time.Time `json:"canceled_at,omitempty"`
}

// Order side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position side constants
const (
	PositionLong  = "long"
	PositionShort = "short"
)

// Order status constants used by analytics
const (
	OrderStatusFilled          = "filled"
	OrderStatusPartiallyFilled = "partially_filled"
)

// OrderQuery filters the broker order history
type OrderQuery struct {
	Status    string
	Limit     int
	Direction string
	After     *time.Time
	// Until bounds submitted_at, exclusive; used to page back through history
	Until *time.Time
}

// BrokerClient calls the brokerage API for one set of credentials
type BrokerClient interface {
	GetAccount(ctx context.Context, creds *BrokerCredentials, mode TradingMode) (*Account, error)
	GetPositions(ctx context.Context, creds *BrokerCredentials, mode TradingMode) ([]Position, error)
	GetPosition(ctx context.Context, creds *BrokerCredentials, mode TradingMode, symbol string) (*Position, error)
	ClosePosition(ctx context.Context, creds *BrokerCredentials, mode TradingMode, symbol string, qty *float64) (*Order, error)
	ListOrders(ctx context.Context, creds *BrokerCredentials, mode TradingMode, query OrderQuery) ([]Order, error)
}

// PositionCloseEvent is published when a user asks the broker to close a position
type PositionCloseEvent struct {
	EventID   uuid.UUID   `json:"event_id"`
	EventType string      `json:"event_type"`
	UserID    uuid.UUID   `json:"user_id"`
	Mode      TradingMode `json:"mode"`
	Symbol    string      `json:"symbol"`
	Qty       *float64    `json:"qty,omitempty"`
	OrderID   string      `json:"order_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventTypePositionCloseRequested names PositionCloseEvent on the wire
const EventTypePositionCloseRequested = "POSITION_CLOSE_REQUESTED"
