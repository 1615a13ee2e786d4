package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: o gate embutido direto no seu webserver (sem proxy)
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	blocklist := infra.OpenBlocklist(ctx, infra.NewFilePersister("example-blocklist.json"),
		infra.WithBlocklistLogger(log.Named("blocklist")),
	)
	limiter := infra.NewRateLimiter(
		infra.WithTimeLimit(10*time.Second),
		infra.WithRequestLimit(5),
		infra.WithExpiryTime(30*time.Second),
	)

	gate, err := admission.New(admission.Options{
		Blocklist:           blocklist,
		Limiter:             limiter,
		BlockedEndpoints:    append([]string{"/admin/secret"}, infra.DefaultForbiddenEndpoints()...),
		Logger:              log.Named("admission"),
		AddRateLimitHeaders: true,
	})
	if err != nil {
		log.Fatal("invalid admission config", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{Max: 50})(mux)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := admission.NewServer(addr, gate, h, admission.WithServerLogger(log))

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil {
		cancel()
		<-stopped
		log.Fatal("server error", zap.Error(err))
	}
	<-stopped
}
