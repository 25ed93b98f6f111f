package adapter

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
)

const alpacaService = "alpaca"

// Alpaca returns every monetary and quantity field as a JSON string.

type alpacaAccount struct {
	ID                    string `json:"id"`
	AccountNumber         string `json:"account_number"`
	Status                string `json:"status"`
	Currency              string `json:"currency"`
	BuyingPower           string `json:"buying_power"`
	Cash                  string `json:"cash"`
	PortfolioValue        string `json:"portfolio_value"`
	Equity                string `json:"equity"`
	LastEquity            string `json:"last_equity"`
	LongMarketValue       string `json:"long_market_value"`
	ShortMarketValue      string `json:"short_market_value"`
	DaytradingBuyingPower string `json:"daytrading_buying_power"`
	RegtBuyingPower       string `json:"regt_buying_power"`
	Multiplier            string `json:"multiplier"`
	DaytradeCount         *int   `json:"daytrade_count"`
	PatternDayTrader      bool   `json:"pattern_day_trader"`
	TradingBlocked        bool   `json:"trading_blocked"`
	AccountBlocked        bool   `json:"account_blocked"`
	CreatedAt             string `json:"created_at"`
}

type alpacaPosition struct {
	AssetID                string `json:"asset_id"`
	Symbol                 string `json:"symbol"`
	Exchange               string `json:"exchange"`
	AssetClass             string `json:"asset_class"`
	Qty                    string `json:"qty"`
	QtyAvailable           string `json:"qty_available"`
	AvgEntryPrice          string `json:"avg_entry_price"`
	Side                   string `json:"side"`
	MarketValue            string `json:"market_value"`
	CostBasis              string `json:"cost_basis"`
	UnrealizedPL           string `json:"unrealized_pl"`
	UnrealizedPLPC         string `json:"unrealized_plpc"`
	UnrealizedIntradayPL   string `json:"unrealized_intraday_pl"`
	UnrealizedIntradayPLPC string `json:"unrealized_intraday_plpc"`
	CurrentPrice           string `json:"current_price"`
	LastdayPrice           string `json:"lastday_price"`
	ChangeToday            string `json:"change_today"`
}

type alpacaOrder struct {
	ID             string `json:"id"`
	ClientOrderID  string `json:"client_order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Qty            string `json:"qty"`
	Notional       string `json:"notional"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	Type           string `json:"type"`
	OrderType      string `json:"order_type"`
	TimeInForce    string `json:"time_in_force"`
	LimitPrice     string `json:"limit_price"`
	StopPrice      string `json:"stop_price"`
	Status         string `json:"status"`
	ExtendedHours  bool   `json:"extended_hours"`
	CreatedAt      string `json:"created_at"`
	SubmittedAt    string `json:"submitted_at"`
	FilledAt       string `json:"filled_at"`
	CanceledAt     string `json:"canceled_at"`
}

type alpacaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func toAccount(raw *alpacaAccount) (*domain.Account, error) {
	var p fieldParser
	acct := &domain.Account{
		ID:                    raw.ID,
		AccountNumber:         raw.AccountNumber,
		Status:                raw.Status,
		Currency:              raw.Currency,
		BuyingPower:           p.required("buying_power", raw.BuyingPower),
		Cash:                  p.required("cash", raw.Cash),
		PortfolioValue:        p.required("portfolio_value", raw.PortfolioValue),
		Equity:                p.required("equity", raw.Equity),
		LastEquity:            optionalFloat(raw.LastEquity),
		LongMarketValue:       optionalFloat(raw.LongMarketValue),
		ShortMarketValue:      optionalFloat(raw.ShortMarketValue),
		DaytradingBuyingPower: optionalFloat(raw.DaytradingBuyingPower),
		RegtBuyingPower:       optionalFloat(raw.RegtBuyingPower),
		Multiplier:            optionalFloat(raw.Multiplier),
		DaytradeCount:         raw.DaytradeCount,
		PatternDayTrader:      raw.PatternDayTrader,
		TradingBlocked:        raw.TradingBlocked,
		AccountBlocked:        raw.AccountBlocked,
		CreatedAt:             optionalTime(raw.CreatedAt),
	}
	if p.err != nil {
		return nil, p.err
	}
	return acct, nil
}

func toPosition(raw *alpacaPosition) (*domain.Position, error) {
	var p fieldParser
	if strings.TrimSpace(raw.Symbol) == "" {
		return nil, &domain.UpstreamSchemaError{Service: alpacaService, Field: "symbol"}
	}

	qty := p.requiredDecimal("qty", raw.Qty)
	costBasis := p.requiredDecimal("cost_basis", raw.CostBasis)
	if p.err != nil {
		return nil, p.err
	}

	// Average entry is derived from cost basis so it stays exact for fractional fills.
	var avgEntry float64
	if !qty.IsZero() {
		avgEntry = costBasis.Abs().Div(qty.Abs()).InexactFloat64()
	} else if v := optionalFloat(raw.AvgEntryPrice); v != nil {
		avgEntry = *v
	}

	side := strings.ToLower(raw.Side)
	if side == "" {
		side = domain.PositionLong
		if qty.IsNegative() {
			side = domain.PositionShort
		}
	}

	return &domain.Position{
		AssetID:                raw.AssetID,
		Symbol:                 raw.Symbol,
		Exchange:               raw.Exchange,
		AssetClass:             raw.AssetClass,
		Side:                   side,
		Qty:                    qty.InexactFloat64(),
		QtyAvailable:           optionalFloat(raw.QtyAvailable),
		AvgEntryPrice:          avgEntry,
		CostBasis:              costBasis.InexactFloat64(),
		MarketValue:            optionalFloat(raw.MarketValue),
		CurrentPrice:           optionalFloat(raw.CurrentPrice),
		LastdayPrice:           optionalFloat(raw.LastdayPrice),
		ChangeToday:            optionalFloat(raw.ChangeToday),
		UnrealizedPL:           optionalFloat(raw.UnrealizedPL),
		UnrealizedPLPC:         optionalFloat(raw.UnrealizedPLPC),
		UnrealizedIntradayPL:   optionalFloat(raw.UnrealizedIntradayPL),
		UnrealizedIntradayPLPC: optionalFloat(raw.UnrealizedIntradayPLPC),
	}, nil
}

func toOrder(raw *alpacaOrder) (*domain.Order, error) {
	if raw.ID == "" {
		return nil, &domain.UpstreamSchemaError{Service: alpacaService, Field: "id"}
	}

	orderType := raw.OrderType
	if orderType == "" {
		orderType = raw.Type
	}

	return &domain.Order{
		ID:             raw.ID,
		ClientOrderID:  raw.ClientOrderID,
		Symbol:         raw.Symbol,
		Side:           strings.ToLower(raw.Side),
		Qty:            optionalFloat(raw.Qty),
		Notional:       optionalFloat(raw.Notional),
		FilledQty:      optionalFloat(raw.FilledQty),
		FilledAvgPrice: optionalFloat(raw.FilledAvgPrice),
		OrderType:      orderType,
		TimeInForce:    raw.TimeInForce,
		LimitPrice:     optionalFloat(raw.LimitPrice),
		StopPrice:      optionalFloat(raw.StopPrice),
		Status:         raw.Status,
		ExtendedHours:  raw.ExtendedHours,
		CreatedAt:      optionalTime(raw.CreatedAt),
		SubmittedAt:    optionalTime(raw.SubmittedAt),
		FilledAt:       optionalTime(raw.FilledAt),
		CanceledAt:     optionalTime(raw.CanceledAt),
	}, nil
}

// fieldParser keeps the first required-field failure
type fieldParser struct {
	err error
}

func (p *fieldParser) requiredDecimal(field, value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		if p.err == nil {
			p.err = &domain.UpstreamSchemaError{Service: alpacaService, Field: field, Value: value}
		}
		return decimal.Zero
	}
	return d
}

func (p *fieldParser) required(field, value string) float64 {
	return p.requiredDecimal(field, value).InexactFloat64()
}

func optionalFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func optionalTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &t
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
