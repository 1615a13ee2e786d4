package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server junta o gate, o handler da aplicação e um http.Server.
//
// Serve inicia o janitor do rate limiter; Shutdown para de aceitar conexões,
// cancela o janitor e libera o persister da blocklist.
type Server struct {
	gate *Gate
	srv  *http.Server
	log  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	addr   net.Addr
}

type ServerOption func(*Server)

func WithServerLogger(log *zap.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithHTTPServer permite ajustar timeouts do http.Server interno.
func WithHTTPServer(fn func(*http.Server)) ServerOption {
	return func(s *Server) { fn(s.srv) }
}

func NewServer(addr string, gate *Gate, app http.Handler, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		gate: gate,
		srv: &http.Server{
			Addr:              addr,
			Handler:           gate.Handler(app),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       90 * time.Second,
		},
		log:    zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe abre o listener em Addr e serve até Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serve em ln até Shutdown. Retorna nil após um Shutdown limpo.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.gate.Start(s.ctx)
	s.log.Info("admission gateway listening", zap.String("addr", ln.Addr().String()))

	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr retorna o endereço real do listener (útil com ":0"), ou nil antes de Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.srv.Shutdown(ctx)
	if stopErr := s.gate.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	return err
}
