package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestTimeoutWritesGatewayTimeout(t *testing.T) {
	h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/match/bm25", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timeout")
}

func TestTimeoutPassesFastHandlers(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestTimeoutFlushesHeadersAndBody(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestTimeoutDropsLateOutput(t *testing.T) {
	wrote := make(chan error, 1)
	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(30 * time.Millisecond)
		_, err := w.Write([]byte("late"))
		wrote <- err
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/match/bm25", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.ErrorIs(t, <-wrote, http.ErrHandlerTimeout)
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestTimeoutRepanics(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler bug")
	}))
	assert.PanicsWithValue(t, "handler bug", func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestMetricsLabelsByPattern(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /match/{strategy}", func(w http.ResponseWriter, r *http.Request) {})

	h := Chain(mux, RequestID, Metrics(m))
	for _, s := range []string{"tfidf", "bm25"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/match/"+s, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "POST /match/{strategy}", "200"))
	assert.Equal(t, 2.0, got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestRecoverReturns500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil corpus")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/match/bm25", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","code":"internal"}`, rec.Body.String())
}

func TestRecoverKeepsAbortHandler(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.Panics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS([]string{"https://jobs.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/match/tfidf", nil)
	req.Header.Set("Origin", "https://jobs.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://jobs.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://jobs.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/match/bm25", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(31 * time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiterSweep(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiter(1, time.Second)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(time.Second)
	l.Allow("b")

	now = now.Add(1500 * time.Millisecond)
	l.Sweep()
	assert.Equal(t, 1, l.Len())
}

func TestRateLimitOnlyThrottlesPrefix(t *testing.T) {
	h := RateLimit(NewLimiter(1, time.Hour), "/match/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve("/match/tfidf").Code)
	rec := serve("/match/bm25")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, serve("/api/v1/strategies").Code)
}

func TestClientIP(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.NoError(t, l.TrustProxies([]string{"10.0.0.0/8", "192.0.2.1"}))

	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"no header", "192.0.2.7:5555", "", "192.0.2.7"},
		{"untrusted peer ignores header", "192.0.2.7:5555", "203.0.113.9", "192.0.2.7"},
		{"trusted cidr", "10.1.2.3:5555", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"trusted single ip", "192.0.2.1:80", "198.51.100.4", "198.51.100.4"},
		{"trusted peer empty hop", "10.1.2.3:5555", " , 10.0.0.1", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, l.clientIP(req))
		})
	}
}

func TestTrustProxiesRejectsGarbage(t *testing.T) {
	assert.Error(t, NewLimiter(1, time.Minute).TrustProxies([]string{"not-an-ip"}))
}

func TestRateLimitSpoofedForwardedForSharesBucket(t *testing.T) {
	h := RateLimit(NewLimiter(1, time.Hour), "/match/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve := func(fwd string) int {
		req := httptest.NewRequest(http.MethodPost, "/match/tfidf", nil)
		req.RemoteAddr = "192.0.2.7:4321"
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, serve("198.51.100.2"))
}
