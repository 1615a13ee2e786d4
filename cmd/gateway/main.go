package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/internal/admin"
	"admission-gateway/internal/config"
	"admission-gateway/internal/logging"
	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	persister, err := openPersister(cfg, rdb)
	if err != nil {
		return err
	}

	seed, err := infra.LoadSeed(cfg.Admission.SeedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("seed file not found, continuing without it", zap.String("path", cfg.Admission.SeedPath))
		} else {
			log.Warn("seed file unreadable, continuing without it", zap.Error(err))
		}
	}

	var defaults []string
	if cfg.Admission.UseDefaultEndpoints {
		defaults = infra.DefaultForbiddenEndpoints()
	}
	endpoints := infra.MergeEndpoints(cfg.Admission.BlockedEndpoints, seed.Endpoints, defaults)

	loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
	blocklist := infra.OpenBlocklist(loadCtx, persister,
		infra.WithBlocklistLogger(log.Named("blocklist")),
		infra.WithSeedAddresses(seed.Addresses...),
	)
	loadCancel()

	limiter := infra.NewRateLimiter(
		infra.WithTimeLimit(cfg.Admission.TimeLimit),
		infra.WithRequestLimit(cfg.Admission.RequestLimit),
		infra.WithExpiryTime(cfg.Admission.ExpiryTime),
		infra.WithRateLimiterLogger(log.Named("ratelimit")),
	)

	var (
		stats    domain.StatsStore
		memStats *infra.MemoryStatsStore
	)
	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case config.BackendRedis:
			stats = infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.Redis.Prefix+":stats"),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			)
		default:
			memStats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
			stats = memStats
		}
	}

	gate, err := admission.New(admission.Options{
		Blocklist:           blocklist,
		Limiter:             limiter,
		BlockedEndpoints:    endpoints,
		Stats:               stats,
		Logger:              log.Named("admission"),
		AddRateLimitHeaders: cfg.Admission.AddRateLimitHeaders,
	})
	if err != nil {
		_ = blocklist.Close()
		return err
	}

	var (
		app       http.Handler = proxy
		adminOpts []admin.RouterOption
	)
	if cfg.Concurrency.Max > 0 {
		capacity := admission.NewConcurrencyLimiter(admission.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.Concurrency.Timeout,
			Logger:         log.Named("concurrency"),
		})
		app = capacity.Handler(proxy)
		adminOpts = append(adminOpts, admin.WithConcurrency(capacity))
	}

	srv := admission.NewServer(cfg.ListenAddr, gate, app, admission.WithServerLogger(log))

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.NewRouter(gate, memStats, adminOpts...),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("admin listening", zap.String("addr", cfg.AdminAddr))
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server error", zap.Error(err))
			}
		}()
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if adminSrv != nil {
			_ = adminSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("gateway configured",
		zap.String("listen", cfg.ListenAddr),
		zap.String("upstream", target.String()),
		zap.Int("request_limit", cfg.Admission.RequestLimit),
		zap.Duration("time_limit", cfg.Admission.TimeLimit),
		zap.Duration("expiry_time", cfg.Admission.ExpiryTime),
		zap.Int("blocked_endpoints", len(endpoints)),
		zap.Int("blocked_clients", blocklist.Len()),
		zap.String("blocklist_backend", cfg.Blocklist.Backend),
		zap.Bool("stats", cfg.Stats.Enabled),
		zap.Int("concurrency_max", cfg.Concurrency.Max),
	)

	if err := srv.ListenAndServe(); err != nil {
		cancel()
		<-stopped
		return fmt.Errorf("server error: %w", err)
	}
	<-stopped
	log.Info("gateway stopped")
	return nil
}

func openPersister(cfg config.Config, rdb *redis.Client) (domain.Persister, error) {
	switch cfg.Blocklist.Backend {
	case config.BackendFile:
		return infra.NewFilePersister(cfg.Blocklist.Path), nil
	case config.BackendBadger:
		return infra.NewBadgerPersister(cfg.Blocklist.Path)
	case config.BackendRedis:
		return infra.NewRedisPersister(rdb, infra.WithBlocklistKeyPrefix(cfg.Redis.Prefix)), nil
	case config.BackendMemory:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported blocklist backend: %s", cfg.Blocklist.Backend)
	}
}
