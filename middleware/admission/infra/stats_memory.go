package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

type Counters struct {
	Forwarded   int64 `json:"forwarded"`
	Forbidden   int64 `json:"forbidden"`
	RateLimited int64 `json:"rate_limited"`
}

func (c *Counters) add(v domain.Verdict) {
	switch v {
	case domain.VerdictForward:
		c.Forwarded++
	case domain.VerdictForbidden:
		c.Forbidden++
	case domain.VerdictRateLimited:
		c.RateLimited++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e para o endpoint /stats do admin.
//
// Não faz expiração: com WithTrackKeys o mapa por chave cresce com o número
// de clientes distintos.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters
	byReason map[domain.Reason]int64

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
		byReason: make(map[domain.Reason]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Verdict)

	c := s.byRoute[route]
	c.add(ev.Verdict)
	s.byRoute[route] = c

	if ev.Reason != domain.ReasonNone {
		s.byReason[ev.Reason]++
	}

	if s.trackKeys {
		k := s.byKey[ev.Key]
		k.add(ev.Verdict)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByReason() map[domain.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Reason]int64, len(s.byReason))
	for k, v := range s.byReason {
		out[k] = v
	}
	return out
}
