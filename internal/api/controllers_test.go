package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"perptrader/internal/advisor"
	"perptrader/internal/engine"
	"perptrader/internal/events"
	"perptrader/internal/governor"
	"perptrader/internal/market"
	"perptrader/internal/monitor"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := events.NewBus()
	eng := engine.New(engine.DefaultConfig(), bus, nil)
	data := market.NewData()
	data.Prices.Set("BTCUSDT", 60000)
	gov := governor.New(governor.DefaultConfig(), eng, advisor.NewService(nil), data, bus, []string{"BTCUSDT"})

	return NewServer(bus, eng, gov, data, monitor.NewSystemMetrics(), NewLogBuffer(50), testSecret,
		SystemMeta{Symbols: []string{"BTCUSDT"}, UseMockFeed: true, Version: "test"})
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func sessionToken(t *testing.T) string {
	t.Helper()
	token, err := generateToken("operator", testSecret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	if w := doJSON(t, s, http.MethodGet, "/api/positions", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d, expected 401", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/positions", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status=%d, expected 401", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/positions", sessionToken(t), nil); w.Code != http.StatusOK {
		t.Fatalf("valid token: status=%d, expected 200", w.Code)
	}
}

func TestCreateSessionIssuesUsableToken(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/session", "", map[string]string{"operator": "demo"})
	if w.Code != http.StatusOK {
		t.Fatalf("session status=%d", w.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("no token in response: %s", w.Body.String())
	}
	if w := doJSON(t, s, http.MethodGet, "/api/account", resp.Token, nil); w.Code != http.StatusOK {
		t.Fatalf("issued token rejected: status=%d", w.Code)
	}
}

func TestOpenAndClosePosition(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t)

	w := doJSON(t, s, http.MethodPost, "/api/positions", token, map[string]any{
		"symbol": "BTCUSDT", "side": "LONG", "size": 1000.0, "leverage": 10.0,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open status=%d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		Position engine.Position `json:"position"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Position.EntryPrice != 60000 {
		t.Fatalf("entry=%v, expected cached price 60000", created.Position.EntryPrice)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/positions/"+created.Position.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close status=%d", w.Code)
	}
	var closed struct {
		Closed bool `json:"closed"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &closed)
	if !closed.Closed {
		t.Fatal("first close reported closed=false")
	}

	// Second close is an idempotent no-op.
	w = doJSON(t, s, http.MethodDelete, "/api/positions/"+created.Position.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat close status=%d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &closed)
	if closed.Closed {
		t.Fatal("repeat close reported closed=true")
	}
}

func TestOpenWithoutSideIsDroppedNotRejected(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/positions", sessionToken(t), map[string]any{
		"symbol": "BTCUSDT", "size": 1000.0, "leverage": 10.0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200 with null position", w.Code)
	}
	var resp struct {
		Position *engine.Position `json:"position"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Position != nil {
		t.Fatalf("position=%+v, expected null", resp.Position)
	}
}

func TestOpenValidation(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing symbol", map[string]any{"side": "LONG", "size": 1000.0, "leverage": 10.0}, http.StatusBadRequest},
		{"zero size", map[string]any{"symbol": "BTCUSDT", "side": "LONG", "size": 0.0, "leverage": 10.0}, http.StatusBadRequest},
		{"leverage below one", map[string]any{"symbol": "BTCUSDT", "side": "LONG", "size": 1000.0, "leverage": 0.5}, http.StatusBadRequest},
		{"unknown symbol has no price", map[string]any{"symbol": "NOPEUSDT", "side": "LONG", "size": 1000.0, "leverage": 10.0}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doJSON(t, s, http.MethodPost, "/api/positions", token, tt.body); w.Code != tt.want {
				t.Fatalf("status=%d, expected %d", w.Code, tt.want)
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token := sessionToken(t)

	update := governor.Settings{
		AutoTrade:     true,
		MinConfidence: 0.7,
		Channels:      governor.Channels{Signals: true},
	}
	if w := doJSON(t, s, http.MethodPut, "/api/settings", token, update); w.Code != http.StatusOK {
		t.Fatalf("put status=%d", w.Code)
	}

	w := doJSON(t, s, http.MethodGet, "/api/settings", token, nil)
	var got governor.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.AutoTrade || got.MinConfidence != 0.7 {
		t.Fatalf("settings not applied: %+v", got)
	}

	bad := governor.Settings{MinConfidence: 1.5}
	if w := doJSON(t, s, http.MethodPut, "/api/settings", token, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid confidence status=%d, expected 400", w.Code)
	}
}

func TestBookNeutralWhenAbsent(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/book/BTCUSDT", sessionToken(t), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp struct {
		Sentiment float64 `json:"sentiment"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Sentiment != 50 {
		t.Fatalf("sentiment=%v, expected neutral 50", resp.Sentiment)
	}
}
