package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

const (
	DefaultExpiryTime   = 60 * time.Second
	DefaultTimeLimit    = 60 * time.Second
	DefaultRequestLimit = 100
)

// RateLimiter é um contador de janela fixa por chave, em memória, com limpeza
// periódica de registros ociosos.
//
// As fronteiras de janela não deslizam: uma rajada em volta do reset pode
// passar até 2×limit requests. É o custo conhecido da janela fixa.
type RateLimiter struct {
	mu      sync.Mutex
	records map[string]*domain.RateRecord

	timeLimit    time.Duration
	requestLimit int
	expiryTime   time.Duration
	now          domain.Clock
	log          *zap.Logger
}

type RateLimiterOption func(*RateLimiter)

func WithTimeLimit(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) { l.timeLimit = d }
}

func WithRequestLimit(n int) RateLimiterOption {
	return func(l *RateLimiter) { l.requestLimit = n }
}

// WithExpiryTime define o tempo ocioso após o qual um registro é removido.
// Também é o período do janitor.
func WithExpiryTime(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) { l.expiryTime = d }
}

func WithClock(now domain.Clock) RateLimiterOption {
	return func(l *RateLimiter) { l.now = now }
}

func WithRateLimiterLogger(log *zap.Logger) RateLimiterOption {
	return func(l *RateLimiter) { l.log = log }
}

func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		records:      make(map[string]*domain.RateRecord),
		timeLimit:    DefaultTimeLimit,
		requestLimit: DefaultRequestLimit,
		expiryTime:   DefaultExpiryTime,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RateLimiter) TimeLimit() time.Duration  { return l.timeLimit }
func (l *RateLimiter) RequestLimit() int         { return l.requestLimit }
func (l *RateLimiter) ExpiryTime() time.Duration { return l.expiryTime }

// Hit registra uma request da chave e diz se ela cabe na janela atual.
//
// Uma request negada não incrementa o contador além do limite.
func (l *RateLimiter) Hit(key string) domain.RateResult {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.Sub(rec.WindowStart) >= l.timeLimit {
		rec = &domain.RateRecord{Count: 1, WindowStart: now}
		l.records[key] = rec
		return l.result(true, rec)
	}

	next := rec.Count + 1
	if next > l.requestLimit {
		res := l.result(false, rec)
		res.Count = next
		return res
	}
	rec.Count = next
	return l.result(true, rec)
}

func (l *RateLimiter) result(allowed bool, rec *domain.RateRecord) domain.RateResult {
	return domain.RateResult{
		Allowed:     allowed,
		Count:       rec.Count,
		Limit:       l.requestLimit,
		WindowStart: rec.WindowStart,
		ResetAt:     rec.WindowStart.Add(l.timeLimit),
	}
}

// Record devolve uma cópia do registro da chave, se existir.
func (l *RateLimiter) Record(key string) (domain.RateRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return domain.RateRecord{}, false
	}
	return *rec, true
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Sweep remove registros cuja janela começou há mais de expiryTime.
// Retorna quantos foram removidos.
func (l *RateLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, rec := range l.records {
		if now.Sub(rec.WindowStart) > l.expiryTime {
			delete(l.records, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que roda Sweep a cada expiryTime.
// Pare cancelando o contexto.
func (l *RateLimiter) StartJanitor(ctx DoneContext) {
	if l.expiryTime <= 0 {
		return
	}

	t := time.NewTicker(l.expiryTime)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Sweep(); n > 0 {
					l.log.Debug("rate records evicted", zap.Int("removed", n))
				}
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
