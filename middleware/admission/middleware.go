package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-Id"

// MetaFunc extrai da request o que a decisão precisa.
type MetaFunc func(r *http.Request) domain.RequestMeta

type Options struct {
	Blocklist        *infra.Blocklist
	Limiter          *infra.RateLimiter
	BlockedEndpoints []string
	Stats            domain.StatsStore
	Logger           *zap.Logger
	MetaFn           MetaFunc
	// AddRateLimitHeaders adiciona X-RateLimit-Limit/Remaining/Reset.
	AddRateLimitHeaders bool
	// PersistWarnInterval limita logs de falha de Save. 0 = 30s.
	PersistWarnInterval time.Duration
	// SaveTimeout é o prazo de cada Save da blocklist. 0 = 5s.
	SaveTimeout time.Duration
}

// Gate é o porteiro HTTP: decide, por request, entre encaminhar ou rejeitar.
type Gate struct {
	pipeline   *application.Pipeline
	blocklist  *infra.Blocklist
	limiter    *infra.RateLimiter
	stats      domain.StatsStore
	log        *zap.Logger
	metaFn     MetaFunc
	addHeaders bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// RequestMeta é o MetaFunc padrão: socket, path e headers da request.
func RequestMeta(r *http.Request) domain.RequestMeta {
	peer := strings.TrimSpace(r.RemoteAddr)
	return domain.RequestMeta{
		PeerAddr:   peer,
		PeerFamily: domain.ParseIdentity(peer).Family,
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     r.Header,
	}
}

func New(opts Options) (*Gate, error) {
	if opts.Blocklist == nil {
		return nil, fmt.Errorf("%w: blocklist is required", domain.ErrInvalidConfig)
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter is required", domain.ErrInvalidConfig)
	}
	if err := validateLimiter(opts.Limiter); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MetaFn == nil {
		opts.MetaFn = RequestMeta
	}

	pipeOpts := []application.PipelineOption{
		application.WithLogger(opts.Logger),
		application.WithSaveTimeout(opts.SaveTimeout),
	}
	if opts.PersistWarnInterval > 0 {
		pipeOpts = append(pipeOpts, application.WithPersistWarnInterval(opts.PersistWarnInterval))
	}

	return &Gate{
		pipeline:   application.NewPipeline(opts.Blocklist, opts.Limiter, opts.BlockedEndpoints, pipeOpts...),
		blocklist:  opts.Blocklist,
		limiter:    opts.Limiter,
		stats:      opts.Stats,
		log:        opts.Logger,
		metaFn:     opts.MetaFn,
		addHeaders: opts.AddRateLimitHeaders,
	}, nil
}

func validateLimiter(l *infra.RateLimiter) error {
	var errs []error
	if l.RequestLimit() < 1 {
		errs = append(errs, fmt.Errorf("request limit must be >= 1, got %d", l.RequestLimit()))
	}
	if l.TimeLimit() <= 0 {
		errs = append(errs, fmt.Errorf("time limit must be > 0, got %s", l.TimeLimit()))
	}
	if l.ExpiryTime() <= 0 {
		errs = append(errs, fmt.Errorf("expiry time must be > 0, got %s", l.ExpiryTime()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (g *Gate) Blocklist() *infra.Blocklist { return g.blocklist }
func (g *Gate) Limiter() *infra.RateLimiter { return g.limiter }
func (g *Gate) BlockedEndpoints() []string  { return g.pipeline.Endpoints() }

// Start inicia a limpeza periódica do rate limiter. Chamadas repetidas são no-op.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil || g.stopped {
		return
	}
	jctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.limiter.StartJanitor(jctx)
}

// Stop cancela o janitor e fecha o persister da blocklist.
func (g *Gate) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil
	}
	g.stopped = true
	if g.cancel != nil {
		g.cancel()
	}
	return g.blocklist.Close()
}

// Decide roda o pipeline para a request sem escrever resposta.
func (g *Gate) Decide(r *http.Request) domain.Decision {
	return g.pipeline.Decide(r.Context(), g.metaFn(r))
}

// Middleware devolve o gate no formato func(next) http.Handler.
func (g *Gate) Middleware() func(next http.Handler) http.Handler {
	return g.Handler
}

// Handler encaminha para next, intocado, só quando todos os filtros passam.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}

		meta := g.metaFn(r)
		dec := g.pipeline.Decide(r.Context(), meta)

		if g.stats != nil {
			_ = g.stats.Record(r.Context(), domain.StatsEvent{
				Key:     dec.Identity.Address,
				Verdict: dec.Verdict,
				Reason:  dec.Reason,
				Method:  meta.Method,
				Path:    meta.Path,
				At:      time.Now(),
			})
		}

		if g.addHeaders && dec.Rate != nil {
			setRateHeaders(w.Header(), dec.Rate)
		}

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("client", dec.Identity.Address),
			zap.String("verdict", dec.Verdict.String()),
			zap.String("method", meta.Method),
			zap.String("path", meta.Path),
		}

		switch dec.Verdict {
		case domain.VerdictForward:
			g.log.Debug("request admitted", fields...)
			next.ServeHTTP(w, r)
		case domain.VerdictRateLimited:
			g.log.Info("request denied", append(fields, zap.String("reason", string(dec.Reason)))...)
			w.Header().Set(HeaderRequestID, reqID)
			writeRateLimited(w)
		default:
			g.log.Info("request denied", append(fields, zap.String("reason", string(dec.Reason)))...)
			w.Header().Set(HeaderRequestID, reqID)
			writeForbidden(w)
		}
	})
}

func setRateHeaders(h http.Header, res *domain.RateResult) {
	remaining := res.Limit - res.Count
	if remaining < 0 {
		remaining = 0
	}
	h.Set("X-RateLimit-Limit", formatInt(res.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(remaining))
	h.Set("X-RateLimit-Reset", formatInt64(res.ResetAt.Unix()))
}
