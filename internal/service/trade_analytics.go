package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/domain"
)

// Trade outcomes
const (
	OutcomeWin       = "WIN"
	OutcomeLoss      = "LOSS"
	OutcomeBreakeven = "BREAKEVEN"
)

// TradeFill is one executed order leg
type TradeFill struct {
	OrderID  string
	Symbol   string
	Side     string
	Qty      decimal.Decimal
	Price    decimal.Decimal
	FilledAt time.Time
}

// ClosedTrade is a round trip matched from opening and closing fills
type ClosedTrade struct {
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	RealizedPL float64   `json:"realized_pl"`
	ReturnPct  float64   `json:"return_pct"`
	Outcome    string    `json:"outcome"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// PnLPoint is one step of the cumulative realized P&L curve
type PnLPoint struct {
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	PnL        float64   `json:"pnl"`
	Cumulative float64   `json:"cumulative"`
}

// TradeSummary aggregates closed trades
type TradeSummary struct {
	TotalTrades  int      `json:"total_trades"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	Breakeven    int      `json:"breakeven"`
	WinRate      float64  `json:"win_rate"`
	TotalPnL     float64  `json:"total_pnl"`
	GrossProfit  float64  `json:"gross_profit"`
	GrossLoss    float64  `json:"gross_loss"`
	AverageWin   float64  `json:"average_win"`
	AverageLoss  float64  `json:"average_loss"`
	ProfitFactor *float64 `json:"profit_factor"`
	Expectancy   float64  `json:"expectancy"`
	LargestWin   float64  `json:"largest_win"`
	LargestLoss  float64  `json:"largest_loss"`
}

// TradeReport bundles everything the trades analytics view needs
type TradeReport struct {
	ClosedTrades  []ClosedTrade `json:"closed_trades"`
	Summary       TradeSummary  `json:"summary"`
	CumulativePnL []PnLPoint    `json:"cumulative_pnl"`
}

// ParseNumber parses a numeric string, returning nil for anything unparseable
func ParseNumber(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// AnalyzeOrders turns raw order history into closed trades and their metrics
func AnalyzeOrders(orders []domain.Order) TradeReport {
	return reportFor(MatchTrades(FillsFromOrders(orders)))
}

// AnalyzeTruncatedOrders is AnalyzeOrders for a history whose oldest orders are missing.
// A sell seen before any buy of its symbol closes a lot opened outside the window, so it is left out.
func AnalyzeTruncatedOrders(orders []domain.Order) TradeReport {
	fills := FillsFromOrders(orders)
	bought := make(map[string]bool)
	kept := make([]TradeFill, 0, len(fills))
	for _, f := range fills {
		if f.Side == domain.SideBuy {
			bought[f.Symbol] = true
		} else if !bought[f.Symbol] {
			continue
		}
		kept = append(kept, f)
	}
	return reportFor(MatchTrades(kept))
}

func reportFor(trades []ClosedTrade) TradeReport {
	return TradeReport{
		ClosedTrades:  trades,
		Summary:       Summarize(trades),
		CumulativePnL: CumulativePnL(trades),
	}
}

// FillsFromOrders keeps orders that actually executed, oldest first
func FillsFromOrders(orders []domain.Order) []TradeFill {
	fills := make([]TradeFill, 0, len(orders))
	for _, o := range orders {
		if o.Status != domain.OrderStatusFilled && o.Status != domain.OrderStatusPartiallyFilled {
			continue
		}
		if o.Side != domain.SideBuy && o.Side != domain.SideSell {
			continue
		}
		if o.FilledQty == nil || !finite(*o.FilledQty) || *o.FilledQty <= 0 {
			continue
		}
		if o.FilledAvgPrice == nil || !finite(*o.FilledAvgPrice) {
			continue
		}

		filledAt := firstTime(o.FilledAt, o.SubmittedAt, o.CreatedAt)
		if filledAt == nil {
			continue
		}

		fills = append(fills, TradeFill{
			OrderID:  o.ID,
			Symbol:   strings.ToUpper(o.Symbol),
			Side:     o.Side,
			Qty:      decimal.NewFromFloat(*o.FilledQty),
			Price:    decimal.NewFromFloat(*o.FilledAvgPrice),
			FilledAt: *filledAt,
		})
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].FilledAt.Before(fills[j].FilledAt)
	})
	return fills
}

type lot struct {
	qty      decimal.Decimal
	price    decimal.Decimal
	openedAt time.Time
	long     bool
}

// MatchTrades pairs fills first-in first-out per symbol.
// Every fill that reduces an open position yields one ClosedTrade.
// A fill larger than the open position closes it and opens the remainder the other way.
func MatchTrades(fills []TradeFill) []ClosedTrade {
	open := make(map[string][]lot)
	var trades []ClosedTrade

	for _, f := range fills {
		buying := f.Side == domain.SideBuy
		lots := open[f.Symbol]

		if len(lots) == 0 || lots[0].long == buying {
			open[f.Symbol] = append(lots, lot{qty: f.Qty, price: f.Price, openedAt: f.FilledAt, long: buying})
			continue
		}

		remaining := f.Qty
		matched := decimal.Zero
		cost := decimal.Zero
		openedAt := lots[0].openedAt
		long := lots[0].long

		for remaining.IsPositive() && len(lots) > 0 {
			m := decimal.Min(lots[0].qty, remaining)
			cost = cost.Add(lots[0].price.Mul(m))
			matched = matched.Add(m)
			remaining = remaining.Sub(m)
			lots[0].qty = lots[0].qty.Sub(m)
			if !lots[0].qty.IsPositive() {
				lots = lots[1:]
			}
		}

		if remaining.IsPositive() {
			lots = append(lots, lot{qty: remaining, price: f.Price, openedAt: f.FilledAt, long: buying})
		}
		open[f.Symbol] = lots

		proceeds := f.Price.Mul(matched)
		pl := proceeds.Sub(cost)
		side := domain.PositionLong
		if !long {
			pl = pl.Neg()
			side = domain.PositionShort
		}

		returnPct := decimal.Zero
		if cost.IsPositive() {
			returnPct = pl.Div(cost).Mul(decimal.NewFromInt(100))
		}

		trades = append(trades, ClosedTrade{
			OrderID:    f.OrderID,
			Symbol:     f.Symbol,
			Side:       side,
			Qty:        matched.InexactFloat64(),
			EntryPrice: cost.Div(matched).InexactFloat64(),
			ExitPrice:  f.Price.InexactFloat64(),
			RealizedPL: pl.InexactFloat64(),
			ReturnPct:  returnPct.Round(4).InexactFloat64(),
			Outcome:    outcomeOf(pl),
			OpenedAt:   openedAt,
			ClosedAt:   f.FilledAt,
		})
	}

	return trades
}

// CumulativePnL is the running realized P&L ordered by close time
func CumulativePnL(trades []ClosedTrade) []PnLPoint {
	sorted := make([]ClosedTrade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
	})

	points := make([]PnLPoint, 0, len(sorted))
	running := decimal.Zero
	for _, t := range sorted {
		running = running.Add(decimal.NewFromFloat(t.RealizedPL))
		points = append(points, PnLPoint{
			Time:       t.ClosedAt,
			Symbol:     t.Symbol,
			PnL:        t.RealizedPL,
			Cumulative: running.InexactFloat64(),
		})
	}
	return points
}

// Summarize computes win/loss statistics over closed trades
func Summarize(trades []ClosedTrade) TradeSummary {
	s := TradeSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	total := decimal.Zero
	profit := decimal.Zero
	loss := decimal.Zero
	for _, t := range trades {
		pl := decimal.NewFromFloat(t.RealizedPL)
		total = total.Add(pl)

		switch t.Outcome {
		case OutcomeWin:
			s.Wins++
			profit = profit.Add(pl)
			if t.RealizedPL > s.LargestWin {
				s.LargestWin = t.RealizedPL
			}
		case OutcomeLoss:
			s.Losses++
			loss = loss.Add(pl.Abs())
			if t.RealizedPL < s.LargestLoss {
				s.LargestLoss = t.RealizedPL
			}
		default:
			s.Breakeven++
		}
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	s.TotalPnL = total.InexactFloat64()
	s.GrossProfit = profit.InexactFloat64()
	s.GrossLoss = loss.InexactFloat64()
	s.Expectancy = total.Div(decimal.NewFromInt(int64(s.TotalTrades))).InexactFloat64()

	if s.Wins > 0 {
		s.AverageWin = profit.Div(decimal.NewFromInt(int64(s.Wins))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AverageLoss = loss.Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
		pf := profit.Div(loss).InexactFloat64()
		s.ProfitFactor = &pf
	}

	return s
}

func outcomeOf(pl decimal.Decimal) string {
	switch pl.Sign() {
	case 1:
		return OutcomeWin
	case -1:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return t
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
