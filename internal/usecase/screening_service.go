package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	"tradedesk/internal/utils"
)

const (
	defaultScreeningLimit = 50
	maxScreeningLimit     = 1000
)

var (
	// column names, optionally aliased or cast, separated by commas; or *
	selectPattern = regexp.MustCompile(`^(\*|[a-z_][a-z0-9_]*(:[a-z_][a-z0-9_]*)?(::[a-z_][a-z0-9_]*)?)(,(\*|[a-z_][a-z0-9_]*(:[a-z_][a-z0-9_]*)?(::[a-z_][a-z0-9_]*)?))*$`)
	typePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)
)

// Tiers that have a moonshot_top_<tier> view
var topTiers = map[string]bool{"25": true, "50": true, "100": true}

// Default column lists per table
const (
	moonshotColumns = "id,symbol,company_name,moonshot_score,price,entry_price,target_price,stop_loss," +
		"catalyst,signals,status,created_at,updated_at"
	preMarketColumns = "id,symbol,analysis_date,score,gap_percent,premarket_price,premarket_volume," +
		"previous_close,catalyst,signals,created_at"
	topColumns = "rank,symbol,scan_date,moonshot_score,price,change_percent,volume,relative_volume," +
		"market_cap,signals"
	recommendationColumns = "id,symbol,recommendation_date,recommendation_type,decision,confidence_score," +
		"entry_price,target_price,stop_loss,reasoning,created_at"
)

// Revalidation windows per feed
const (
	MoonshotRevalidate        = 30 * time.Second
	PreMarketRevalidate       = 30 * time.Second
	TopRevalidate             = 10 * time.Second
	RecommendationsRevalidate = 15 * time.Second
)

// ScreeningParams are the raw query parameters of a screening request
type ScreeningParams struct {
	Limit    string
	Select   string
	Date     string
	MinScore string
	Type     string
}

// ScreeningResult is an upstream body ready to forward
type ScreeningResult struct {
	Response   *domain.GatewayResponse
	Revalidate time.Duration
	Cached     bool
}

// ScreeningService reads the screening tables through the REST gateway
type ScreeningService struct {
	gateway    domain.RestGateway
	cache      domain.ResponseCache
	serviceKey string
	anonKey    string
	logger     *logrus.Logger
}

// NewScreeningService creates a new ScreeningService
func NewScreeningService(
	gateway domain.RestGateway,
	cache domain.ResponseCache,
	serviceKey string,
	anonKey string,
	logger *logrus.Logger,
) *ScreeningService {
	return &ScreeningService{
		gateway:    gateway,
		cache:      cache,
		serviceKey: serviceKey,
		anonKey:    anonKey,
		logger:     logger,
	}
}

// MoonshotRecommendations lists open moonshot picks by score
func (s *ScreeningService) MoonshotRecommendations(ctx context.Context, p ScreeningParams) (*ScreeningResult, error) {
	q, err := baseQuery("moonshot_recommendations", moonshotColumns, "moonshot_score.desc", p, defaultScreeningLimit)
	if err != nil {
		return nil, err
	}
	q.Filters = append(q.Filters, domain.Filter{Column: "status", Operator: "neq", Value: "closed"})
	return s.run(ctx, s.serviceKey, "SUPABASE_SERVICE_ROLE_KEY", q, MoonshotRevalidate)
}

// PreMarket lists the pre-market analysis for a date, today by default
func (s *ScreeningService) PreMarket(ctx context.Context, p ScreeningParams) (*ScreeningResult, error) {
	q, err := baseQuery("pre_market_analysis", preMarketColumns, "score.desc", p, defaultScreeningLimit)
	if err != nil {
		return nil, err
	}

	date := p.Date
	if date == "" {
		date = utils.TodayMarketDate()
	} else if err := validateDate("analysis_date", date); err != nil {
		return nil, err
	}
	q.Filters = append(q.Filters, domain.Filter{Column: "analysis_date", Operator: "eq", Value: date})

	if p.MinScore != "" {
		score, err := strconv.ParseFloat(p.MinScore, 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "min_score", Message: "min_score must be a number"}
		}
		q.Filters = append(q.Filters, domain.Filter{Column: "score", Operator: "gte", Value: strconv.FormatFloat(score, 'f', -1, 64)})
	}

	return s.run(ctx, s.serviceKey, "SUPABASE_SERVICE_ROLE_KEY", q, PreMarketRevalidate)
}

// TopTier lists a ranked top-N view, optionally for one scan date
func (s *ScreeningService) TopTier(ctx context.Context, tier string, p ScreeningParams) (*ScreeningResult, error) {
	if !topTiers[tier] {
		return nil, &domain.ValidationError{Field: "tier", Message: "Invalid tier. Must be 25, 50, or 100"}
	}
	defaultLimit, _ := strconv.Atoi(tier)

	q, err := baseQuery("moonshot_top_"+tier, topColumns, "rank.asc", p, defaultLimit)
	if err != nil {
		return nil, err
	}
	if p.Date != "" {
		if err := validateDate("scan_date", p.Date); err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, domain.Filter{Column: "scan_date", Operator: "eq", Value: p.Date})
	}

	return s.run(ctx, s.anonKey, "SUPABASE_ANON_KEY", q, TopRevalidate)
}

// TradingRecommendations lists positive trade decisions by confidence
func (s *ScreeningService) TradingRecommendations(ctx context.Context, p ScreeningParams) (*ScreeningResult, error) {
	q, err := baseQuery("trading_recommendations", recommendationColumns, "confidence_score.desc", p, defaultScreeningLimit)
	if err != nil {
		return nil, err
	}
	q.Filters = append(q.Filters, domain.Filter{Column: "decision", Operator: "eq", Value: "true"})

	if p.Date != "" {
		if err := validateDate("recommendation_date", p.Date); err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, domain.Filter{Column: "recommendation_date", Operator: "eq", Value: p.Date})
	}
	if p.Type != "" {
		if !typePattern.MatchString(p.Type) {
			return nil, &domain.ValidationError{Field: "type", Message: "Invalid recommendation type"}
		}
		q.Filters = append(q.Filters, domain.Filter{Column: "recommendation_type", Operator: "eq", Value: p.Type})
	}

	return s.run(ctx, s.serviceKey, "SUPABASE_SERVICE_ROLE_KEY", q, RecommendationsRevalidate)
}

func (s *ScreeningService) run(ctx context.Context, apiKey, keyName string, q domain.ScreeningQuery, ttl time.Duration) (*ScreeningResult, error) {
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Key: keyName}
	}

	key := cacheKey(q)
	if cached, ok := s.cache.Get(ctx, key); ok {
		resp := cached.GatewayResponse
		return &ScreeningResult{Response: &resp, Revalidate: ttl, Cached: true}, nil
	}

	resp, err := s.gateway.Select(ctx, apiKey, q)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, key, resp, ttl)
	s.logger.WithFields(logrus.Fields{
		"table": q.Table,
		"bytes": len(resp.Body),
	}).Debug("screening table read")

	return &ScreeningResult{Response: resp, Revalidate: ttl}, nil
}

func baseQuery(table, columns, order string, p ScreeningParams, defaultLimit int) (domain.ScreeningQuery, error) {
	limit, err := ParseLimit(p.Limit, defaultLimit)
	if err != nil {
		return domain.ScreeningQuery{}, err
	}
	sel, err := ParseSelect(p.Select, columns)
	if err != nil {
		return domain.ScreeningQuery{}, err
	}
	return domain.ScreeningQuery{
		Table:  table,
		Select: sel,
		Order:  order,
		Limit:  limit,
	}, nil
}

// ParseLimit parses a row limit and clamps it to [1, 1000]
func ParseLimit(raw string, defaultLimit int) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &domain.ValidationError{Field: "limit", Message: "limit must be an integer"}
	}
	if n < 1 {
		n = 1
	}
	if n > maxScreeningLimit {
		n = maxScreeningLimit
	}
	return n, nil
}

// ParseSelect validates a select override, falling back to the default column list
func ParseSelect(raw, defaultColumns string) (string, error) {
	if raw == "" {
		return defaultColumns, nil
	}
	compact := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if len(compact) > 1000 || !selectPattern.MatchString(compact) {
		return "", &domain.ValidationError{Field: "select", Message: "Invalid select list"}
	}
	return compact, nil
}

func validateDate(field, raw string) error {
	if _, err := utils.ParseDate(raw); err != nil {
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a YYYY-MM-DD date", field)}
	}
	return nil
}

func cacheKey(q domain.ScreeningQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d", q.Table, q.Select, q.Order, q.Limit)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|%s=%s.%s", f.Column, f.Operator, f.Value)
	}
	return b.String()
}
