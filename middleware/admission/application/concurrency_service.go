package application

import (
	"context"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// ConcurrencyService limita quantas requests já admitidas ficam em voo ao
// mesmo tempo no destino, sem saber nada sobre HTTP. Roda depois do pipeline
// de admissão: uma request rejeitada aqui não conta para o rate limiter.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	inFlight atomic.Int64
	rejected atomic.Int64
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Com ok=false nenhuma vaga foi adquirida e release é nil.
func (s *ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		s.inFlight.Add(1)
		return func() { s.inFlight.Add(-1) }, true
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	poolRelease, ok := s.Pool.Acquire(ctx)
	if !ok {
		s.rejected.Add(1)
		return nil, false
	}
	s.inFlight.Add(1)
	return func() {
		s.inFlight.Add(-1)
		poolRelease()
	}, true
}

// InFlight é o número de vagas ocupadas agora.
func (s *ConcurrencyService) InFlight() int64 { return s.inFlight.Load() }

// Rejected conta aquisições que falharam desde o início do processo.
func (s *ConcurrencyService) Rejected() int64 { return s.rejected.Load() }
