package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyBySubjectOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if key := KeyBySubjectOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	c.Set(adminSubjectKey, "ops@example.com")
	if key := KeyBySubjectOrIP()(c); key != "admin:ops@example.com" {
		t.Fatalf("expected subject-based key; got %q", key)
	}
}

func TestNewRateLimiter_BurstCoercion_AndVisitorReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyBySubjectOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if got := rl.getVisitor("k1"); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
}

func TestRateLimiter_getVisitor_GC(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyBySubjectOrIP())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	_, existsOld := rl.visitors["old"]
	_, existsNew := rl.visitors["new"]
	rl.mu.Unlock()
	if existsOld || !existsNew {
		t.Fatalf("old=%v new=%v after sweep", existsOld, existsNew)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("expected false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("expected false for non-bool")
	}
}

func TestRateLimiter_Handler_Allow_Deny_And_Bypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1.0, 1, KeyBySubjectOrIP())

	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.POST("/deposits", func(c *gin.Context) { c.String(http.StatusCreated, "ok") })

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodPost, "/deposits", nil))
	if w1.Code != http.StatusCreated {
		t.Fatalf("first request should be allowed, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/deposits", nil)
	req2.Header.Set(requestIDHeader, "rid-2")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests || w2.Header().Get("Retry-After") != "1" {
		t.Fatalf("second request: code=%d retry=%q", w2.Code, w2.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-2" {
		t.Fatalf("unexpected JSON body: %v", body)
	}

	rBypass := gin.New()
	rBypass.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	rBypass.Use(rl.Handler())
	rBypass.POST("/deposits", func(c *gin.Context) { c.String(http.StatusOK, "replay") })

	w3 := httptest.NewRecorder()
	rBypass.ServeHTTP(w3, httptest.NewRequest(http.MethodPost, "/deposits", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("bypass request should be allowed, got %d", w3.Code)
	}
}
