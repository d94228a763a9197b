package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func adminRouter() *gin.Engine {
	r := gin.New()
	r.GET("/admin", RequireRole(testSecret, "admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireRole(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, jwt.MapClaims{"role": "admin", "exp": exp}, "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, jwt.MapClaims{"role": "customer", "exp": exp}, testSecret), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, jwt.MapClaims{"role": "admin", "exp": exp}, testSecret), http.StatusOK},
	}

	r := adminRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"role": "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(tok, []byte(testSecret))
	assert.Error(t, err)
}

func TestRateLimiter_PerKey(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(rate.Every(time.Hour), 1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	_, kept := rl.entries["a"]
	assert.False(t, kept)
}

func TestRateLimit_Returns429(t *testing.T) {
	r := gin.New()
	r.POST("/r", RateLimit(60, 1), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/r", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/r", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example.com/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/conflict", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	for _, p := range []string{"/ok", "/conflict", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
}

func TestTimeout_SetsDeadline(t *testing.T) {
	r := gin.New()
	var hasDeadline bool
	r.GET("/x", Timeout(time.Second), func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, hasDeadline)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	done   chan struct{}
}

func (m *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	m.counts[name]++
	m.mu.Unlock()
	return nil
}

func (m *recordingMetrics) RecordValue(context.Context, string, float64, map[string]string) error {
	return nil
}

func (m *recordingMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	close(m.done)
	return nil
}

func (m *recordingMetrics) IsEnabled() bool { return true }

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	m := &recordingMetrics{counts: map[string]int{}, done: make(chan struct{})}
	r := gin.New()
	r.Use(MetricsMiddleware(m, "inventory-reservation-service"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics not recorded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.counts["HTTPRequests"])
}

func TestStatusCodeToRange(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToRange(201))
	assert.Equal(t, "4xx", statusCodeToRange(409))
	assert.Equal(t, "5xx", statusCodeToRange(503))
	assert.Equal(t, "unknown", statusCodeToRange(100))
}
