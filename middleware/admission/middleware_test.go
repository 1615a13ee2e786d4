package admission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	calls int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	w.Header().Set("X-Upstream", "yes")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func newTestGate(t *testing.T, limit int, endpoints ...string) (*Gate, *infra.Blocklist, *infra.MemoryStatsStore) {
	t.Helper()
	blocklist := infra.NewBlocklist(nil)
	stats := infra.NewMemoryStatsStore()
	gate, err := New(Options{
		Blocklist:           blocklist,
		Limiter:             infra.NewRateLimiter(infra.WithRequestLimit(limit), infra.WithTimeLimit(time.Minute)),
		BlockedEndpoints:    endpoints,
		Stats:               stats,
		AddRateLimitHeaders: true,
	})
	require.NoError(t, err)
	return gate, blocklist, stats
}

func doRequest(h http.Handler, remote, target string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example"+target, nil)
	r.RemoteAddr = remote
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestGate_ForwardsUntouchedThenRateLimits(t *testing.T) {
	gate, blocklist, _ := newTestGate(t, 3)
	next := &countingHandler{}
	h := gate.Handler(next)

	for i := 1; i <= 3; i++ {
		w := doRequest(h, "203.0.113.5:1234", "/showTela", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
		if w.Body.String() != "ok" || w.Header().Get("X-Upstream") != "yes" {
			t.Fatalf("request %d: expected upstream response untouched", i)
		}
	}

	w := doRequest(h, "203.0.113.5:1234", "/showTela", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	assert.Equal(t, "request limit exceeded", decodeError(t, w))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// já na blocklist: 403 em qualquer path
	w = doRequest(h, "203.0.113.5:9999", "/other", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocklisted client, got %d", w.Code)
	}
	assert.Equal(t, "forbidden", decodeError(t, w))

	if next.calls != 3 {
		t.Fatalf("expected next handler to be called 3 times, got %d", next.calls)
	}
	assert.True(t, blocklist.Check(domain.ParseIdentity("203.0.113.5")))
}

func TestGate_ForbiddenEndpointBlocksOnFirstRequest(t *testing.T) {
	gate, blocklist, _ := newTestGate(t, 100, "/admin/secret")
	next := &countingHandler{}
	h := gate.Handler(next)

	w := doRequest(h, "198.51.100.7:5000", "/admin/secret", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if next.calls != 0 {
		t.Fatalf("expected next handler not to be called")
	}
	if gate.Limiter().Len() != 0 {
		t.Fatalf("expected no rate records, got %d", gate.Limiter().Len())
	}
	if !blocklist.Check(domain.ParseIdentity("198.51.100.7")) {
		t.Fatalf("expected client to be blocklisted")
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("expected no rate headers when limiter was not consulted")
	}
}

func TestGate_UsesForwardedForIdentity(t *testing.T) {
	gate, blocklist, _ := newTestGate(t, 100, "/wp-admin")
	h := gate.Handler(&countingHandler{})

	w := doRequest(h, "10.0.0.9:5555", "/wp-admin", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"})
	require.Equal(t, http.StatusForbidden, w.Code)

	assert.True(t, blocklist.Check(domain.ParseIdentity("203.0.113.5")))
	assert.False(t, blocklist.Check(domain.ParseIdentity("10.0.0.9")), "proxy address must not be blocked")

	// mesma identidade via IPv6 mapeado
	w = doRequest(h, "[::ffff:203.0.113.5]:443", "/", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGate_RateLimitHeaders(t *testing.T) {
	gate, _, _ := newTestGate(t, 2)
	h := gate.Handler(&countingHandler{})

	w := doRequest(h, "10.0.0.1:1", "/", nil)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	doRequest(h, "10.0.0.1:1", "/", nil)
	w = doRequest(h, "10.0.0.1:1", "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestGate_KeepsIncomingRequestID(t *testing.T) {
	gate, _, _ := newTestGate(t, 100, "/.env")
	h := gate.Handler(&countingHandler{})

	w := doRequest(h, "10.0.0.1:1", "/.env", map[string]string{HeaderRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestGate_RecordsStats(t *testing.T) {
	gate, _, stats := newTestGate(t, 1, "/.git/")
	h := gate.Handler(&countingHandler{})

	doRequest(h, "10.0.0.1:1", "/", nil)
	doRequest(h, "10.0.0.1:1", "/", nil)
	doRequest(h, "10.0.0.2:1", "/.git/config", nil)

	assert.Equal(t, infra.Counters{Forwarded: 1, Forbidden: 1, RateLimited: 1}, stats.Total())
	assert.Equal(t, int64(1), stats.ByReason()[domain.ReasonEndpoint])
}

func TestGate_UnknownClientIsDeniedButNotBlocklisted(t *testing.T) {
	gate, blocklist, _ := newTestGate(t, 100, "/admin")
	h := gate.Handler(&countingHandler{})

	w := doRequest(h, "not-an-address", "/admin", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, blocklist.Len())

	w = doRequest(h, "not-an-address", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_DecideWithoutWriting(t *testing.T) {
	gate, _, _ := newTestGate(t, 100, "/admin")

	r := httptest.NewRequest(http.MethodGet, "http://example/admin/x", nil)
	r.RemoteAddr = "10.0.0.1:1"
	dec := gate.Decide(r)

	assert.Equal(t, domain.VerdictForbidden, dec.Verdict)
	assert.Equal(t, domain.ReasonEndpoint, dec.Reason)
	assert.True(t, dec.NewlyBlocked)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no blocklist", Options{Limiter: infra.NewRateLimiter()}},
		{"no limiter", Options{Blocklist: infra.NewBlocklist(nil)}},
		{"zero limit", Options{Blocklist: infra.NewBlocklist(nil), Limiter: infra.NewRateLimiter(infra.WithRequestLimit(0))}},
		{"zero window", Options{Blocklist: infra.NewBlocklist(nil), Limiter: infra.NewRateLimiter(infra.WithTimeLimit(0))}},
		{"negative expiry", Options{Blocklist: infra.NewBlocklist(nil), Limiter: infra.NewRateLimiter(infra.WithExpiryTime(-time.Second))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestGate_BlockedEndpointsAreCopied(t *testing.T) {
	endpoints := []string{"/admin"}
	gate, err := New(Options{
		Blocklist:        infra.NewBlocklist(nil),
		Limiter:          infra.NewRateLimiter(),
		BlockedEndpoints: endpoints,
	})
	require.NoError(t, err)

	endpoints[0] = "/changed"
	assert.Equal(t, []string{"/admin"}, gate.BlockedEndpoints())
}

func TestGate_StartAndStopAreIdempotent(t *testing.T) {
	gate, _, _ := newTestGate(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate.Start(ctx)
	gate.Start(ctx)
	require.NoError(t, gate.Stop())
	require.NoError(t, gate.Stop())

	// depois de Stop, Start não reabre o janitor.
	gate.Start(ctx)
}

func TestGate_Middleware(t *testing.T) {
	gate, _, _ := newTestGate(t, 10)
	next := &countingHandler{}

	w := doRequest(gate.Middleware()(next), "10.0.0.1:1", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, next.calls)
}

func TestGate_BlockIsPersistedWhenClientDisconnects(t *testing.T) {
	persister := infra.NewFilePersister(filepath.Join(t.TempDir(), "blocklist.json"))
	gate, err := New(Options{
		Blocklist:        infra.NewBlocklist(persister),
		Limiter:          infra.NewRateLimiter(),
		BlockedEndpoints: []string{"/admin/secret"},
	})
	require.NoError(t, err)
	h := gate.Handler(&countingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "http://example/admin/secret", nil).WithContext(ctx)
	r.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	onDisk, err := persister.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.BlockEntry{{Address: "203.0.113.9", Family: domain.FamilyIPv4}}, onDisk)
}
