package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/signwave/keypoint-server/internal/httpapi"
	"github.com/signwave/keypoint-server/pkg/cache"
	"github.com/signwave/keypoint-server/pkg/logging"
	"github.com/signwave/keypoint-server/pkg/retrieval"
	"github.com/signwave/keypoint-server/pkg/store"
)

type envConfig struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBDriver         string        `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN            string        `env:"DB_DSN"`
	DBHost           string        `env:"DB_HOST" envDefault:"localhost:3306"`
	DBUser           string        `env:"DB_USER" envDefault:"myuser"`
	DBPassword       string        `env:"DB_PASSWORD" envDefault:"mypassword"`
	DBName           string        `env:"DB_NAME" envDefault:"mydb"`
	DBPoolSize       int           `env:"DB_POOL_SIZE" envDefault:"5"`
	DBPoolTimeout    time.Duration `env:"DB_POOL_TIMEOUT" envDefault:"3s"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`

	CacheBackend    string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTLSeconds int           `env:"CACHE_TTL_SECONDS" envDefault:"3600"`
	CacheOpTimeout  time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"2s"`

	RoundDecimals int      `env:"ROUND_DECIMALS" envDefault:"4"`
	SingleFlight  bool     `env:"SINGLE_FLIGHT" envDefault:"false"`
	WarmWords     []string `env:"WARM_WORDS" envSeparator:","`

	APIKey      string   `env:"API_KEY"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	Gzip        bool     `env:"GZIP" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

func main() {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse environment")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("server")

	storeCfg, err := storeConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid store configuration")
	}

	st, err := store.Open(storeCfg, logging.NewLogger("store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open keypoint store")
	}
	defer st.Close()

	// An unreachable cache never blocks startup; the service probes it and
	// degrades to store-only reads.
	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid cache configuration")
	}
	if backend != nil {
		defer backend.Close()
	}

	svcCfg := retrieval.DefaultConfig()
	svcCfg.TTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	svcCfg.RoundDecimals = cfg.RoundDecimals
	svcCfg.SingleFlight = cfg.SingleFlight

	svc, err := retrieval.New(st, backend, svcCfg, logging.NewLogger("retrieval"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create retrieval service")
	}

	if len(cfg.WarmWords) > 0 {
		go svc.Warm(context.Background(), cfg.WarmWords)
	}

	apiMux := http.NewServeMux()
	httpapi.NewHandler(svc, logging.NewLogger("http")).Register(apiMux)
	api := httpapi.Middleware{
		APIKey:      cfg.APIKey,
		CORSOrigins: cfg.CORSOrigins,
		Gzip:        cfg.Gzip,
	}.Wrap(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(st))
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("driver", cfg.DBDriver).
		Str("cache", cfg.CacheBackend).
		Int("ttl_seconds", cfg.CacheTTLSeconds).
		Bool("auth", cfg.APIKey != "").
		Msg("Keypoint server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
		<-serveErr
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}
}

// storeConfig assembles the store settings, building a MySQL DSN from the
// discrete DB_* variables when DB_DSN is not given.
func storeConfig(cfg envConfig) (store.Config, error) {
	dsn := cfg.DBDSN
	if dsn == "" {
		if cfg.DBDriver != "mysql" {
			return store.Config{}, fmt.Errorf("DB_DSN is required for driver %q", cfg.DBDriver)
		}
		dsn = store.ConnParams{
			Host:     cfg.DBHost,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
		}.DSN()
	}

	return store.Config{
		Driver:         cfg.DBDriver,
		DSN:            dsn,
		PoolSize:       cfg.DBPoolSize,
		PoolTimeout:    cfg.DBPoolTimeout,
		ConnectTimeout: cfg.DBConnectTimeout,
	}, nil
}

// buildBackend selects the cache backend. "none" runs the server uncached.
func buildBackend(cfg envConfig) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedis(client, cfg.CacheOpTimeout, logging.NewLogger("cache")), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want memory, redis or none)", cfg.CacheBackend)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports store reachability. The cache is deliberately not
// part of readiness: the server serves without it.
func readyHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "store unreachable")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}
