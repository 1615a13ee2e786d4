// Package admin expõe uma API HTTP somente leitura sobre o estado do gate.
package admin

import (
	"encoding/json"
	"net/http"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Source é o que o admin precisa ler do gate.
type Source interface {
	Blocklist() *infra.Blocklist
	Limiter() *infra.RateLimiter
	BlockedEndpoints() []string
}

// ConcurrencyStats é opcional: só existe quando o limite de concorrência está ligado.
type ConcurrencyStats interface {
	InFlight() int64
	Rejected() int64
}

type RouterOption func(*router)

type router struct {
	concurrency ConcurrencyStats
}

func WithConcurrency(c ConcurrencyStats) RouterOption {
	return func(r *router) { r.concurrency = c }
}

type blocklistResponse struct {
	Count   int                 `json:"count"`
	Entries []domain.BlockEntry `json:"entries"`
}

type statsResponse struct {
	Tracked  int                     `json:"tracked_clients"`
	Blocked  int                     `json:"blocked_clients"`
	Total    *infra.Counters         `json:"total,omitempty"`
	ByReason map[domain.Reason]int64 `json:"by_reason,omitempty"`
	InFlight *int64                  `json:"in_flight,omitempty"`
	Rejected *int64                  `json:"concurrency_rejected,omitempty"`
}

type configResponse struct {
	RequestLimit     int      `json:"request_limit"`
	TimeLimitMillis  int64    `json:"time_limit_ms"`
	ExpiryTimeMillis int64    `json:"expiry_time_ms"`
	BlockedEndpoints []string `json:"blocked_endpoints"`
}

// NewRouter monta as rotas. stats pode ser nil.
func NewRouter(src Source, stats *infra.MemoryStatsStore, opts ...RouterOption) http.Handler {
	cfg := &router{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/blocklist", func(w http.ResponseWriter, _ *http.Request) {
		entries := src.Blocklist().Entries()
		writeJSON(w, http.StatusOK, blocklistResponse{Count: len(entries), Entries: entries})
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		resp := statsResponse{
			Tracked: src.Limiter().Len(),
			Blocked: src.Blocklist().Len(),
		}
		if stats != nil {
			total := stats.Total()
			resp.Total = &total
			resp.ByReason = stats.ByReason()
		}
		if cfg.concurrency != nil {
			inFlight, rejected := cfg.concurrency.InFlight(), cfg.concurrency.Rejected()
			resp.InFlight, resp.Rejected = &inFlight, &rejected
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
		l := src.Limiter()
		writeJSON(w, http.StatusOK, configResponse{
			RequestLimit:     l.RequestLimit(),
			TimeLimitMillis:  l.TimeLimit().Milliseconds(),
			ExpiryTimeMillis: l.ExpiryTime().Milliseconds(),
			BlockedEndpoints: src.BlockedEndpoints(),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
