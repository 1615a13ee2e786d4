package admission

import (
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

// ConcurrencyOptions limita quantas requests admitidas ficam em voo no
// handler downstream ao mesmo tempo. Max <= 0 desliga o limite.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// ConcurrencyLimiter é o adaptador HTTP do application.ConcurrencyService.
type ConcurrencyLimiter struct {
	svc          *application.ConcurrencyService
	rejectStatus int
	log          *zap.Logger
}

func NewConcurrencyLimiter(opts ConcurrencyOptions) *ConcurrencyLimiter {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := &application.ConcurrencyService{AcquireTimeout: opts.AcquireTimeout}
	if opts.Max > 0 {
		svc.Pool = infra.NewChanPool(opts.Max)
	}
	return &ConcurrencyLimiter{svc: svc, rejectStatus: opts.RejectStatus, log: opts.Logger}
}

func (c *ConcurrencyLimiter) InFlight() int64 { return c.svc.InFlight() }
func (c *ConcurrencyLimiter) Rejected() int64 { return c.svc.Rejected() }

func (c *ConcurrencyLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, ok := c.svc.Acquire(r.Context())
		if !ok {
			c.log.Warn("concurrency limit reached", zap.String("path", r.URL.Path))
			http.Error(w, http.StatusText(c.rejectStatus), c.rejectStatus)
			return
		}
		defer release()

		next.ServeHTTP(w, r)
	})
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return NewConcurrencyLimiter(opts).Handler
}
