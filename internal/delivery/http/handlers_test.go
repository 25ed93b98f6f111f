package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/domain"
)

func (env *testEnv) do(t *testing.T, method, target, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func ptr(v float64) *float64 { return &v }

func mustTime(t *testing.T, raw string) *time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	return &ts
}

func TestCredentialedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/alpaca/account"},
		{http.MethodGet, "/api/alpaca/positions"},
		{http.MethodDelete, "/api/alpaca/positions/AAPL"},
		{http.MethodGet, "/api/alpaca/price-target/AAPL"},
		{http.MethodGet, "/api/analytics/account"},
		{http.MethodGet, "/api/analytics/positions"},
		{http.MethodGet, "/api/analytics/trades"},
		{http.MethodGet, "/api/dashboard"},
	}

	for _, route := range routes {
		for _, token := range []string{"", "forged-token"} {
			rec := env.do(t, route.method, route.path, token, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
			assert.Equal(t, "Unauthorized", decodeBody(t, rec)["error"])
		}
	}

	assert.Zero(t, env.creds.calls)
	assert.Zero(t, env.broker.calls)
}

func TestInvalidModeIsRejectedBeforeUpstream(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/alpaca/account?mode=real",
		"/api/alpaca/positions?mode=LIVE",
		"/api/analytics/trades?mode=sandbox",
		"/api/dashboard?mode=x",
	} {
		rec := env.do(t, http.MethodGet, path, aliceToken, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	assert.Zero(t, env.creds.calls)
	assert.Zero(t, env.broker.calls)
}

func TestMissingCredentialsAnswer403(t *testing.T) {
	env := newTestEnv(t)
	env.creds.err = fmt.Errorf("lookup: %w", domain.ErrCredentialsNotFound)

	for _, path := range []string{
		"/api/alpaca/account",
		"/api/alpaca/positions?mode=live",
		"/api/analytics/account",
		"/api/analytics/trades",
	} {
		rec := env.do(t, http.MethodGet, path, aliceToken, "")
		require.Equal(t, http.StatusForbidden, rec.Code, path)

		body := decodeBody(t, rec)
		assert.Equal(t, "Alpaca credentials not configured", body["error"])
		assert.Equal(t, domain.CredentialsHint, body["message"])
	}
	assert.Zero(t, env.broker.calls)
}

func TestLegacyVaultMessageAnswers403(t *testing.T) {
	env := newTestEnv(t)
	env.creds.err = errors.New("ERROR: Vault secret alpaca_paper_api_key not found")

	rec := env.do(t, http.MethodGet, "/api/alpaca/account", aliceToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAlpacaAccountSetsPrivateCache(t *testing.T) {
	env := newTestEnv(t)
	env.broker.account = &domain.Account{ID: "acc-1", Equity: 1010, Cash: 500, LastEquity: ptr(1000)}

	rec := env.do(t, http.MethodGet, "/api/alpaca/account?mode=paper", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=30, stale-while-revalidate=60", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, "acc-1", body["id"])
	assert.Equal(t, 1010.0, body["equity"])
}

func TestBrokerFailureAnswers500(t *testing.T) {
	env := newTestEnv(t)
	env.broker.err = &domain.UpstreamError{Service: "alpaca", StatusCode: http.StatusServiceUnavailable}

	rec := env.do(t, http.MethodGet, "/api/alpaca/positions", aliceToken, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to fetch positions", body["error"])
	assert.Equal(t, "Service Unavailable", body["message"])
}

func TestPositionsEmptyListIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/alpaca/positions", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPositionBySymbol(t *testing.T) {
	env := newTestEnv(t)
	env.broker.positions = []domain.Position{{Symbol: "AAPL", Side: "long", Qty: 10, AvgEntryPrice: 150}}

	rec := env.do(t, http.MethodGet, "/api/alpaca/positions?symbol=aapl", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", decodeBody(t, rec)["symbol"])

	rec = env.do(t, http.MethodGet, "/api/alpaca/positions?symbol=AAPL$", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClosePosition(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/alpaca/positions/aapl", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", env.broker.closed)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Position AAPL closed", body["message"])

	rec = env.do(t, http.MethodDelete, "/api/alpaca/positions/TSLA?qty=2.5", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Closed 2.5 shares of TSLA", decodeBody(t, rec)["message"])
}

func TestClosePositionRejectsBadQuantity(t *testing.T) {
	env := newTestEnv(t)

	for _, qty := range []string{"abc", "0", "-1", "Inf", "%2BInf", "-inf", "NaN", "1e400"} {
		rec := env.do(t, http.MethodDelete, "/api/alpaca/positions/AAPL?qty="+qty, aliceToken, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, qty)
	}
	assert.Zero(t, env.broker.calls)
}

func TestPriceTarget(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/alpaca/price-target/msft", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbol":"MSFT","target_mean":210.5}`, rec.Body.String())

	env.targets.err = &domain.UpstreamError{Service: "backend", StatusCode: http.StatusNotFound, Message: "no coverage"}
	rec = env.do(t, http.MethodGet, "/api/alpaca/price-target/MSFT", aliceToken, "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to fetch price target", body["error"])
	assert.Equal(t, "no coverage", body["message"])
}

func TestAnalyticsTrades(t *testing.T) {
	env := newTestEnv(t)
	env.broker.orders = []domain.Order{
		{ID: "2", Symbol: "AAPL", Side: domain.SideSell, Status: "filled", FilledQty: ptr(10), FilledAvgPrice: ptr(110), FilledAt: mustTime(t, "2024-01-02T15:00:00Z")},
		{ID: "1", Symbol: "AAPL", Side: domain.SideBuy, Status: "filled", FilledQty: ptr(10), FilledAvgPrice: ptr(100), FilledAt: mustTime(t, "2024-01-01T15:00:00Z")},
	}

	rec := env.do(t, http.MethodGet, "/api/analytics/trades", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "private, max-age=120, stale-while-revalidate=300", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	trades, ok := body["closed_trades"].([]interface{})
	require.True(t, ok, rec.Body.String())
	require.Len(t, trades, 1)
	assert.Equal(t, 100.0, trades[0].(map[string]interface{})["realized_pl"])

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, 1.0, summary["win_rate"])
}

func TestAnalyticsAccountDayPL(t *testing.T) {
	env := newTestEnv(t)
	env.broker.account = &domain.Account{Equity: 1050, LastEquity: ptr(1000)}

	rec := env.do(t, http.MethodGet, "/api/analytics/account", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 50.0, body["day_pl"])
	assert.Equal(t, 5.0, body["day_pl_percent"])
}

func seedTop25(env *testEnv) {
	var rows []map[string]interface{}
	for rank := 30; rank >= 1; rank-- {
		date := "2024-01-01"
		if rank%3 == 0 {
			date = "2024-01-02"
		}
		rows = append(rows, map[string]interface{}{
			"rank":      float64(rank),
			"symbol":    fmt.Sprintf("SYM%d", rank),
			"scan_date": date,
		})
	}
	env.gateway.tables["moonshot_top_25"] = rows
}

func TestTopTierFiltersOrdersAndLimits(t *testing.T) {
	env := newTestEnv(t)
	seedTop25(env)

	rec := env.do(t, http.MethodGet, "/api/top/25?scan_date=2024-01-01&limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public, s-maxage=10, stale-while-revalidate=20", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 10)

	last := 0.0
	for _, row := range rows {
		assert.Equal(t, "2024-01-01", row["scan_date"])
		rank := row["rank"].(float64)
		assert.Greater(t, rank, last)
		last = rank
	}

	q := env.gateway.queries[0]
	assert.Equal(t, "moonshot_top_25", q.Table)
	assert.Equal(t, 10, q.Limit)
}

func TestTopTierRejectsUnknownTier(t *testing.T) {
	env := newTestEnv(t)

	for _, tier := range []string{"10", "abc", "250"} {
		rec := env.do(t, http.MethodGet, "/api/top/"+tier, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, tier)
	}
	assert.Empty(t, env.gateway.queries)
}

func TestScreeningValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/pre-market?analysis_date=01-02-2024",
		"/api/pre-market?min_score=high",
		"/api/trading-recommendations?type=DROP%20TABLE",
		"/api/moonshot/recommendations?select=id%3Bdrop",
		"/api/top/50?scan_date=2024-13-01",
	} {
		rec := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, env.gateway.queries)
}

func TestScreeningUpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = &domain.UpstreamError{
		Service:    "supabase",
		StatusCode: http.StatusNotFound,
		Details:    map[string]interface{}{"message": "relation does not exist"},
	}

	rec := env.do(t, http.MethodGet, "/api/moonshot/recommendations", "", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Failed to fetch moonshot recommendations", body["error"])
	assert.Equal(t, 404.0, body["status"])
	assert.Equal(t, map[string]interface{}{"message": "relation does not exist"}, body["details"])
}

func TestTradingRecommendationsFilters(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.tables["trading_recommendations"] = []map[string]interface{}{
		{"id": "1", "decision": true, "confidence_score": 0.7, "recommendation_type": "swing"},
		{"id": "2", "decision": false, "confidence_score": 0.9, "recommendation_type": "swing"},
		{"id": "3", "decision": true, "confidence_score": 0.8, "recommendation_type": "day"},
	}

	rec := env.do(t, http.MethodGet, "/api/trading-recommendations?type=swing", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, s-maxage=15, stale-while-revalidate=30", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `[{"id":"1","decision":true,"confidence_score":0.7,"recommendation_type":"swing"}]`, rec.Body.String())
}

func TestChatInjectsSessionUserID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/ai-chat/message", aliceToken, `{"message":"hi","user_id":"mallory"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"hello"}`, rec.Body.String())
	assert.Equal(t, aliceID.String(), env.chat.lastBody["user_id"])
	assert.Equal(t, "hi", env.chat.lastBody["message"])
}

func TestChatDropsClientUserIDWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/ai-chat/clear", "", `{"user_id":"mallory","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, present := env.chat.lastBody["user_id"]
	assert.False(t, present)
	assert.Equal(t, "s1", env.chat.lastBody["session_id"])
}

func TestChatRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/ai-chat/message", aliceToken, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, env.chat.lastBody)
}

func TestChatMessagesAndSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/ai-chat/messages?limit=20", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20", env.chat.lastLimit)
	assert.Equal(t, aliceID.String(), env.chat.lastUserID)

	rec = env.do(t, http.MethodGet, "/api/ai-chat/messages?limit=-3", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ai-chat/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", env.chat.lastUserID)
}

func TestChatUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.chat.err = &domain.UpstreamError{Service: "chat", StatusCode: http.StatusBadGateway, Message: "model offline"}

	rec := env.do(t, http.MethodPost, "/api/ai-chat/message", aliceToken, `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "model offline", decodeBody(t, rec)["message"])
}

func TestDashboardSettlesEachSource(t *testing.T) {
	env := newTestEnv(t)
	env.broker.account = &domain.Account{Equity: 1000, LastEquity: ptr(1000)}
	env.gateway.err = &domain.UpstreamError{Service: "supabase", StatusCode: http.StatusServiceUnavailable}

	rec := env.do(t, http.MethodGet, "/api/dashboard", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	for _, key := range []string{"account", "positions", "trades"} {
		assert.Equal(t, "fulfilled", body[key].(map[string]interface{})["status"], key)
	}
	moonshots := body["moonshots"].(map[string]interface{})
	assert.Equal(t, "rejected", moonshots["status"])
	assert.Equal(t, "Service Unavailable", moonshots["reason"])
}

func TestDashboardWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.creds.err = domain.ErrCredentialsNotFound

	rec := env.do(t, http.MethodGet, "/api/dashboard", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	account := body["account"].(map[string]interface{})
	assert.Equal(t, "rejected", account["status"])
	assert.Equal(t, "Alpaca credentials not configured", account["reason"])
	assert.Equal(t, "fulfilled", body["moonshots"].(map[string]interface{})["status"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "tradedesk", body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAuthGate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirectTo=%2F", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/portfolio?tab=open", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirectTo=%2Fportfolio%3Ftab%3Dopen", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/login", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "login")

	rec = env.do(t, http.MethodGet, "/", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")

	rec = env.do(t, http.MethodGet, "/login?redirectTo=/portfolio", aliceToken, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/portfolio", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/login?redirectTo=//evil.example", aliceToken, "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestAuthGateDotSegments(t *testing.T) {
	env := newTestEnv(t)

	for target, redirect := range map[string]string{
		"/static/../":           "/login?redirectTo=%2F",
		"/_next/..":             "/login?redirectTo=%2F",
		"/assets/../index.html": "/login?redirectTo=%2Findex.html",
		"/login/../":            "/login?redirectTo=%2F",
	} {
		rec := env.do(t, http.MethodGet, target, "", "")
		require.Equal(t, http.StatusFound, rec.Code, target)
		assert.Equal(t, redirect, rec.Header().Get("Location"), target)
		assert.NotContains(t, rec.Body.String(), "home", target)
	}

	rec := env.do(t, http.MethodGet, "/static/../", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")
}

func TestUnknownAPIRouteUsesEnvelope(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])
}
