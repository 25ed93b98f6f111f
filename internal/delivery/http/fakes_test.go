package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	custommiddleware "tradedesk/internal/middleware"
	"tradedesk/internal/service"
	"tradedesk/internal/usecase"
)

var aliceID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")

const aliceToken = "alice-token"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, token string) (*domain.Session, error) {
	if token == aliceToken {
		return &domain.Session{UserID: aliceID}, nil
	}
	return nil, domain.ErrUnauthorized
}

type fakeCreds struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCreds) GetBrokerCredentials(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.BrokerCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.BrokerCredentials{KeyID: "PK", SecretKey: "SK"}, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	calls     int
	account   *domain.Account
	positions []domain.Position
	orders    []domain.Order
	err       error
	closed    string
}

func (f *fakeBroker) hit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeBroker) GetAccount(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode) (*domain.Account, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	return f.account, nil
}

func (f *fakeBroker) GetPositions(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode) ([]domain.Position, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	return f.positions, nil
}

func (f *fakeBroker) GetPosition(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, symbol string) (*domain.Position, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	for i := range f.positions {
		if f.positions[i].Symbol == symbol {
			return &f.positions[i], nil
		}
	}
	return nil, &domain.UpstreamError{Service: "alpaca", StatusCode: 404, Message: "position does not exist"}
}

func (f *fakeBroker) ClosePosition(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, symbol string, qty *float64) (*domain.Order, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	f.closed = symbol
	return &domain.Order{ID: "close-1", Symbol: symbol, Side: domain.SideSell, Status: "accepted", OrderType: "market"}, nil
}

func (f *fakeBroker) ListOrders(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, query domain.OrderQuery) ([]domain.Order, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	return f.orders, nil
}

// fakeGateway evaluates eq/neq filters, a single-column order and the limit
// over in-memory rows, the way the REST gateway would
type fakeGateway struct {
	mu      sync.Mutex
	tables  map[string][]map[string]interface{}
	queries []domain.ScreeningQuery
	err     error
}

func (f *fakeGateway) Select(ctx context.Context, apiKey string, q domain.ScreeningQuery) (*domain.GatewayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}

	var rows []map[string]interface{}
	for _, row := range f.tables[q.Table] {
		if matches(row, q.Filters) {
			rows = append(rows, row)
		}
	}

	if parts := strings.SplitN(q.Order, ".", 2); len(parts) == 2 {
		col, desc := parts[0], parts[1] == "desc"
		sort.SliceStable(rows, func(i, j int) bool {
			a, _ := rows[i][col].(float64)
			b, _ := rows[j][col].(float64)
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return &domain.GatewayResponse{StatusCode: 200, ContentType: "application/json; charset=utf-8", Body: body}, nil
}

func matches(row map[string]interface{}, filters []domain.Filter) bool {
	for _, f := range filters {
		actual := fmt.Sprint(row[f.Column])
		switch f.Operator {
		case "eq":
			if actual != f.Value {
				return false
			}
		case "neq":
			if actual == f.Value {
				return false
			}
		}
	}
	return true
}

type fakeChat struct {
	lastBody   map[string]interface{}
	lastUserID string
	lastLimit  string
	err        error
}

func (f *fakeChat) Clear(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"cleared":true}`), nil
}

func (f *fakeChat) SendMessage(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"reply":"hello"}`), nil
}

func (f *fakeChat) Messages(ctx context.Context, limit string, userID string) (json.RawMessage, error) {
	f.lastLimit = limit
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"messages":[]}`), nil
}

func (f *fakeChat) Session(ctx context.Context, userID string) (json.RawMessage, error) {
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"session_id":"s1"}`), nil
}

type fakeTargets struct {
	err error
}

func (f *fakeTargets) GetPriceTarget(ctx context.Context, symbol string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(fmt.Sprintf(`{"symbol":%q,"target_mean":210.5}`, symbol)), nil
}

type testEnv struct {
	e       *echo.Echo
	creds   *fakeCreds
	broker  *fakeBroker
	gateway *fakeGateway
	chat    *fakeChat
	targets *fakeTargets
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()

	env := &testEnv{
		creds:   &fakeCreds{},
		broker:  &fakeBroker{},
		gateway: &fakeGateway{tables: map[string][]map[string]interface{}{}},
		chat:    &fakeChat{},
		targets: &fakeTargets{},
	}

	webRoot := t.TempDir()
	for name, content := range map[string]string{
		"index.html": "<h1>home</h1>",
		"login.html": "<h1>login</h1>",
	} {
		if err := os.WriteFile(filepath.Join(webRoot, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	portfolio := usecase.NewPortfolioService(env.creds, env.broker, nil, logger)
	screening := usecase.NewScreeningService(env.gateway, noopCache{}, "service-key", "anon-key", logger)

	env.e = echo.New()
	SetupRoutes(env.e, &RouterConfig{
		Sessions:         custommiddleware.NewSessionResolver(fakeVerifier{}, logger),
		AlpacaHandler:    NewAlpacaHandler(portfolio, env.targets, logger),
		AnalyticsHandler: NewAnalyticsHandler(portfolio, logger),
		ScreeningHandler: NewScreeningHandler(screening, logger),
		ChatHandler:      NewChatHandler(env.chat, logger),
		DashboardHandler: NewDashboardHandler(usecase.NewDashboardService(portfolio, screening), logger),
		WebHandler:       NewWebHandler(webRoot, service.NewHealthService(0, logger)),
		Logger:           logger,
	})
	return env
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string) (*domain.CachedResponse, bool) {
	return nil, false
}

func (noopCache) Set(ctx context.Context, key string, resp *domain.GatewayResponse, ttl time.Duration) {}
