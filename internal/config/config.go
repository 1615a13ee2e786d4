// Package config centraliza o carregamento de configurações do gateway.
//
// Valores vêm de variáveis de ambiente (com .env opcional). Valor inválido é
// erro: o binário precisa falhar antes de aceitar conexões.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string
	AdminAddr   string

	Admission   AdmissionConfig
	Blocklist   BlocklistConfig
	Redis       RedisConfig
	Stats       StatsConfig
	Concurrency ConcurrencyConfig
	Log         LogConfig
}

type AdmissionConfig struct {
	ExpiryTime          time.Duration
	TimeLimit           time.Duration
	RequestLimit        int
	BlockedEndpoints    []string
	UseDefaultEndpoints bool
	SeedPath            string
	AddRateLimitHeaders bool
}

type BlocklistConfig struct {
	Backend string
	Path    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type StatsConfig struct {
	Enabled   bool
	Backend   string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
}

type ConcurrencyConfig struct {
	Max     int
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load lê .env (se existir) e depois o ambiente do processo.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup monta a Config a partir de uma função no formato de os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := &env{lookup: lookup}

	cfg := Config{}
	cfg.ListenAddr = e.getString("LISTEN_ADDR", "")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":" + e.getString("PORT", "8080")
	}
	cfg.UpstreamURL = e.getString("UPSTREAM_URL", "")
	cfg.AdminAddr = e.getString("ADMIN_ADDR", "")

	cfg.Admission = AdmissionConfig{
		ExpiryTime:          e.getMillis("EXPIRY_TIME", 60*time.Second),
		TimeLimit:           e.getMillis("TIME_LIMIT", 60*time.Second),
		RequestLimit:        e.getInt("REQUEST_LIMIT", 100),
		BlockedEndpoints:    e.getList("BLOCKED_ENDPOINTS"),
		UseDefaultEndpoints: e.getBool("USE_DEFAULT_ENDPOINTS", true),
		SeedPath:            e.getString("SEED_PATH", ""),
		AddRateLimitHeaders: e.getBool("ADD_RATELIMIT_HEADERS", false),
	}
	cfg.Blocklist = BlocklistConfig{
		Backend: strings.ToLower(e.getString("BLOCKLIST_BACKEND", BackendFile)),
		Path:    e.getString("BLOCKLIST_PATH", "blocklist.json"),
	}
	cfg.Redis = RedisConfig{
		Addr:     e.getString("REDIS_ADDR", ""),
		Password: e.raw("REDIS_PASSWORD"),
		DB:       e.getInt("REDIS_DB", 0),
		Prefix:   e.getString("REDIS_PREFIX", "admission"),
	}
	cfg.Stats = StatsConfig{
		Enabled:   e.getBool("STATS_ENABLED", false),
		Backend:   strings.ToLower(e.getString("STATS_BACKEND", BackendMemory)),
		TTL:       e.getDuration("STATS_TTL", 24*time.Hour),
		Bucket:    e.getString("STATS_BUCKET", "minute"),
		TrackKeys: e.getBool("STATS_TRACK_KEYS", false),
	}
	cfg.Concurrency = ConcurrencyConfig{
		Max:     e.getInt("CONCURRENCY_MAX", 0),
		Timeout: e.getDuration("CONCURRENCY_TIMEOUT", 0),
	}
	cfg.Log = LogConfig{
		Level:  e.getString("LOG_LEVEL", "info"),
		Format: e.getString("LOG_FORMAT", "json"),
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	}
	if c.Admission.RequestLimit < 1 {
		errs = append(errs, errors.New("REQUEST_LIMIT must be >= 1"))
	}
	if c.Admission.TimeLimit <= 0 {
		errs = append(errs, errors.New("TIME_LIMIT must be > 0"))
	}
	if c.Admission.ExpiryTime <= 0 {
		errs = append(errs, errors.New("EXPIRY_TIME must be > 0"))
	}

	switch c.Blocklist.Backend {
	case BackendFile, BackendBadger:
		path := strings.TrimSpace(c.Blocklist.Path)
		if path == "" {
			errs = append(errs, fmt.Errorf("BLOCKLIST_PATH is required for backend %q", c.Blocklist.Backend))
			break
		}
		dir := filepath.Dir(path)
		if c.Blocklist.Backend == BackendBadger {
			dir = path
		}
		if err := checkWritableDir(dir); err != nil {
			errs = append(errs, fmt.Errorf("BLOCKLIST_PATH %q is not writable: %w", path, err))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when BLOCKLIST_BACKEND=redis"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("BLOCKLIST_BACKEND must be file, badger, redis or memory, got %q", c.Blocklist.Backend))
	}

	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case BackendMemory:
		case BackendRedis:
			if c.Redis.Addr == "" {
				errs = append(errs, errors.New("REDIS_ADDR is required when STATS_BACKEND=redis"))
			}
		default:
			errs = append(errs, fmt.Errorf("STATS_BACKEND must be memory or redis, got %q", c.Stats.Backend))
		}
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	return errors.Join(errs...)
}

// checkWritableDir cria dir se preciso e confirma que dá para criar arquivos nele.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// NeedsRedis diz se algum componente configurado usa Redis.
func (c Config) NeedsRedis() bool {
	return c.Blocklist.Backend == BackendRedis || (c.Stats.Enabled && c.Stats.Backend == BackendRedis)
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(k string) string {
	v, _ := e.lookup(k)
	return v
}

func (e *env) getString(k, def string) string {
	if v := strings.TrimSpace(e.raw(k)); v != "" {
		return v
	}
	return def
}

func (e *env) getInt(k string, def int) int {
	v := strings.TrimSpace(e.raw(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return i
}

func (e *env) getBool(k string, def bool) bool {
	v := strings.TrimSpace(e.raw(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return b
}

func (e *env) getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.raw(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return d
}

// getMillis aceita um inteiro em milissegundos ("60000") ou uma duração Go ("1m").
func (e *env) getMillis(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.raw(k))
	if v == "" {
		return def
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: want milliseconds or a duration: %w", k, err))
		return def
	}
	return d
}

func (e *env) getList(k string) []string {
	v := strings.TrimSpace(e.raw(k))
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
