package application

import (
	"context"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pipeline compõe os filtros de admissão numa decisão por request.
//
// Ordem fixa, para no primeiro filtro decisivo:
//
//  1. endpoint proibido: bloqueia, persiste, 403
//  2. identidade já bloqueada: 403 sem mutar estado
//  3. janela fixa estourada: bloqueia, persiste, 429
//  4. encaminha
//
// Identidades unknown dividem um único bucket de rate e nunca entram na
// blocklist: bloquear "unknown" bloquearia todo cliente malformado.
type Pipeline struct {
	blocklist domain.BlockSet
	limiter   domain.WindowCounter
	endpoints []string
	log       *zap.Logger

	// persistWarn limita o volume de logs quando o armazenamento está fora.
	persistWarn *rate.Sometimes
	saveTimeout time.Duration
}

// DefaultSaveTimeout é o prazo de um Save disparado por um bloqueio.
const DefaultSaveTimeout = 5 * time.Second

type PipelineOption func(*Pipeline)

func WithLogger(log *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// WithPersistWarnInterval define o intervalo mínimo entre logs de falha de Save.
func WithPersistWarnInterval(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.persistWarn = &rate.Sometimes{First: 1, Interval: d} }
}

// WithSaveTimeout define o prazo de cada Save. d <= 0 mantém o padrão.
func WithSaveTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.saveTimeout = d
		}
	}
}

// NewPipeline copia endpoints: cada instância tem a sua lista.
func NewPipeline(blocklist domain.BlockSet, limiter domain.WindowCounter, endpoints []string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		blocklist:   blocklist,
		limiter:     limiter,
		endpoints:   cleanEndpoints(endpoints),
		log:         zap.NewNop(),
		persistWarn: &rate.Sometimes{First: 1, Interval: 30 * time.Second},
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func cleanEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Endpoints retorna uma cópia dos fragmentos proibidos.
func (p *Pipeline) Endpoints() []string {
	return append([]string(nil), p.endpoints...)
}

func (p *Pipeline) Decide(ctx context.Context, meta domain.RequestMeta) domain.Decision {
	id := Normalize(meta)

	if frag, ok := p.matchEndpoint(meta.Path); ok {
		dec := domain.Decision{Verdict: domain.VerdictForbidden, Reason: domain.ReasonEndpoint, Identity: id}
		dec.NewlyBlocked = p.block(ctx, id, domain.ReasonEndpoint, zap.String("endpoint", frag), zap.String("path", meta.Path))
		return dec
	}

	if p.blocklist != nil && p.blocklist.Check(id) {
		return domain.Decision{Verdict: domain.VerdictForbidden, Reason: domain.ReasonBlocked, Identity: id}
	}

	if p.limiter == nil {
		return domain.Decision{Verdict: domain.VerdictForward, Identity: id}
	}

	res := p.limiter.Hit(id.Key())
	if !res.Allowed {
		dec := domain.Decision{Verdict: domain.VerdictRateLimited, Reason: domain.ReasonRateLimit, Identity: id, Rate: &res}
		dec.NewlyBlocked = p.block(ctx, id, domain.ReasonRateLimit, zap.Int("count", res.Count), zap.Int("limit", res.Limit))
		return dec
	}
	return domain.Decision{Verdict: domain.VerdictForward, Identity: id, Rate: &res}
}

func (p *Pipeline) matchEndpoint(path string) (string, bool) {
	for _, frag := range p.endpoints {
		if strings.Contains(path, frag) {
			return frag, true
		}
	}
	return "", false
}

// block adiciona e persiste. Falha de persistência só gera log.
func (p *Pipeline) block(ctx context.Context, id domain.Identity, reason domain.Reason, fields ...zap.Field) bool {
	fields = append(fields, zap.String("client", id.Address), zap.String("family", string(id.Family)), zap.String("reason", string(reason)))

	if id.IsUnknown() {
		p.log.Info("denying unidentified client without blocklisting", fields...)
		return false
	}
	if p.blocklist == nil || !p.blocklist.Add(id) {
		return false
	}

	p.log.Warn("client blocked", fields...)

	// Add só devolve true uma vez por identidade, então este Save não pode
	// herdar o cancelamento da request.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.saveTimeout)
	defer cancel()
	if err := p.blocklist.Save(saveCtx); err != nil {
		p.persistWarn.Do(func() {
			p.log.Error("blocklist save failed, keeping in-memory state", zap.Error(err))
		})
	}
	return true
}
