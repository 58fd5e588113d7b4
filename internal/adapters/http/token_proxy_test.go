package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shojbahmed330/voicebook/internal/config"
	"github.com/shojbahmed330/voicebook/internal/store"
	"github.com/shojbahmed330/voicebook/internal/token"
)

func newTestRouter(t *testing.T, cfg config.Config, limiter *RateLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.Mode = "release"
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	minter := token.NewMinter(cfg.Secret, time.Minute)
	tokens := NewTokenHandler(cfg.TokenUpstream, minter, limiter)
	sessions := NewSessionHandler(store.NewMemory(), nil)
	return SetupRouter(&cfg, tokens, sessions)
}

func TestPreflightIsShortCircuited(t *testing.T) {
	r := newTestRouter(t, config.Config{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/token?channelName=c&uid=1", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("missing CORS origin header, got %q", got)
	}
}

func TestTokenRequiresChannelAndUID(t *testing.T) {
	r := newTestRouter(t, config.Config{}, nil)

	for _, path := range []string{
		"/api/token",
		"/api/token?channelName=c",
		"/api/token?uid=7",
		"/api/token?channelName=c&uid=abc",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestLocalMintReturnsVerifiableToken(t *testing.T) {
	cfg := config.Config{Secret: "mint-secret"}
	r := newTestRouter(t, cfg, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/token?channelName=room-1&uid=42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	channel, uid, err := token.NewMinter("mint-secret", time.Minute).Verify(body.Token)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if channel != "room-1" || uid != 42 {
		t.Fatalf("token bound to %s/%d, want room-1/42", channel, uid)
	}
}

func TestUpstreamProxyRelaysStatusAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channelName") != "room-9" {
			t.Errorf("channel not forwarded, got %q", r.URL.Query().Get("channelName"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"error":"upstream says no"}`))
	}))
	defer upstream.Close()

	r := newTestRouter(t, config.Config{TokenUpstream: upstream.URL}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/token?channelName=room-9&uid=5", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("upstream status not relayed, got %d", w.Code)
	}
	if w.Body.String() != `{"error":"upstream says no"}` {
		t.Fatalf("upstream body not relayed: %s", w.Body.String())
	}
}

func TestTokenEndpointIsRateLimited(t *testing.T) {
	r := newTestRouter(t, config.Config{}, NewRateLimiter(2, time.Minute))

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/token?channelName=c&uid=1", nil)
		req.AddCookie(&http.Cookie{Name: "ct", Value: "same-client"})
		r.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", last)
	}
}
