package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeCreds struct {
	err error
}

func (f *fakeCreds) GetBrokerCredentials(ctx context.Context, userID uuid.UUID, mode domain.TradingMode) (*domain.BrokerCredentials, error) {
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
	// orderPages, when set, answers successive ListOrders calls in turn
	orderPages   [][]domain.Order
	orderQueries []domain.OrderQuery
	closeQty     *float64
	closeSym     string
	err          error
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
	for _, p := range f.positions {
		if p.Symbol == symbol {
			p := p
			return &p, nil
		}
	}
	return nil, &domain.UpstreamError{Service: "alpaca", StatusCode: 404, Message: "position does not exist"}
}

func (f *fakeBroker) ClosePosition(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, symbol string, qty *float64) (*domain.Order, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	f.closeSym = symbol
	f.closeQty = qty
	return &domain.Order{ID: "close-1", Symbol: symbol, Side: domain.SideSell, Status: "accepted"}, nil
}

func (f *fakeBroker) ListOrders(ctx context.Context, creds *domain.BrokerCredentials, mode domain.TradingMode, query domain.OrderQuery) ([]domain.Order, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	f.orderQueries = append(f.orderQueries, query)
	if f.orderPages != nil {
		i := len(f.orderQueries) - 1
		if i >= len(f.orderPages) {
			return nil, nil
		}
		return f.orderPages[i], nil
	}
	return f.orders, nil
}

type fakePublisher struct {
	events []*domain.PositionCloseEvent
	err    error
}

func (f *fakePublisher) PublishPositionClose(ctx context.Context, event *domain.PositionCloseEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeGateway struct {
	mu      sync.Mutex
	queries []domain.ScreeningQuery
	keys    []string
	body    string
	err     error
}

func (f *fakeGateway) Select(ctx context.Context, apiKey string, q domain.ScreeningQuery) (*domain.GatewayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.keys = append(f.keys, apiKey)
	if f.err != nil {
		return nil, f.err
	}
	body := f.body
	if body == "" {
		body = "[]"
	}
	return &domain.GatewayResponse{StatusCode: 200, ContentType: "application/json", Body: []byte(body)}, nil
}

func (f *fakeGateway) last() domain.ScreeningQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.CachedResponse
	ttls    map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]domain.CachedResponse{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(ctx context.Context, key string) (*domain.CachedResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return &c, true
}

func (m *memCache) Set(ctx context.Context, key string, resp *domain.GatewayResponse, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = domain.CachedResponse{GatewayResponse: *resp, StoredAt: time.Now()}
	m.ttls[key] = ttl
}

var errVaultMissing = errors.New(`ERROR: Vault secret not found for alpaca_paper_api_key (SQLSTATE P0001)`)
