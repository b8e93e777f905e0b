// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"house-price-workers/internal/api"
	awsnotify "house-price-workers/internal/common/aws"
	"house-price-workers/internal/common/camunda"
	"house-price-workers/internal/common/config"
	"house-price-workers/internal/common/database"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/observability"
	"house-price-workers/internal/history"
	"house-price-workers/internal/pricing"

	php "house-price-workers/internal/workers/valuation/predict-house-price"
	svr "house-price-workers/internal/workers/valuation/send-valuation-report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Model artifacts ---
	store := pricing.NewStore(pricing.StoreOptions{
		ManifestPath: cfg.Model.ManifestPath,
		SchemaPath:   cfg.Model.SchemaPath,
		Logger:       log,
	})
	if cfg.Model.WarmOnStart {
		if err := store.Warm(ctx); err != nil {
			// keep running; the store retries on every request
			zapLog.Warn("model artifacts not loaded at startup", zap.Error(err))
		}
	}

	predictor := pricing.NewPredictor(pricing.PredictorOptions{
		Source:           store,
		Currency:         pricing.CurrencyFromConfig(cfg.Pricing),
		InferenceTimeout: cfg.Model.InferenceTimeoutDuration(),
		Logger:           log,
		Observability:    obs,
	})

	// --- Valuation history ---
	var (
		recorders history.MultiRecorder
		reader    history.Reader
	)

	if cfg.Database.Postgres.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres client failed", zap.Error(err))
		}
		defer pg.Close()

		if err := database.Retry(ctx, "PostgreSQL connection", 15, 2*time.Second, zapLog, pg.Ping); err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		pgRecorder := history.NewPostgresRecorder(pg.DB)
		if err := pgRecorder.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("valuations table migration failed", zap.Error(err))
		}
		recorders = append(recorders, pgRecorder)
		reader = pgRecorder
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		if err := database.Retry(ctx, "Elasticsearch connection", 15, 2*time.Second, zapLog, es.Ping); err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		esRecorder := history.NewElasticsearchRecorder(es, cfg.Database.Elasticsearch.Index)
		if err := esRecorder.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("valuation index bootstrap failed", zap.Error(err))
		}
		recorders = append(recorders, esRecorder)
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Database.Elasticsearch.Index))
	}

	var limiter *api.RateLimiter
	if cfg.Database.Redis.Enabled {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			zapLog.Fatal("redis client failed", zap.Error(err))
		}
		defer rdb.Close()

		if err := database.Retry(ctx, "Redis connection", 10, time.Second, zapLog, rdb.Ping); err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		if cfg.API.RateLimit.Enabled {
			limiter = api.NewRateLimiter(rdb.Client, cfg.API.RateLimit.Requests, cfg.API.RateLimit.WindowDuration())
		}
		zapLog.Info("Redis connected successfully")
	}

	notifier, err := awsnotify.NewNotifierFromConfig(ctx, cfg.Integrations)
	if err != nil {
		zapLog.Fatal("aws notifier failed", zap.Error(err))
	}

	// --- Zeebe ---
	zc, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), zapLog)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	var jobWorkers []worker.JobWorker

	predictCfg := predictConfig(cfg)
	if err := predictCfg.Validate(); err != nil {
		zapLog.Fatal("invalid predict-house-price config", zap.Error(err))
	}
	predictHandler := php.NewHandler(predictCfg, predictor, recorders, log)
	if jw := camunda.StartWorker(zc.Zeebe(), php.TaskType, config.GetWorkerConfig(cfg, php.TaskType), predictHandler, obs, zapLog); jw != nil {
		jobWorkers = append(jobWorkers, jw)
	}

	reportCfg := reportConfig(cfg)
	if err := reportCfg.Validate(); err != nil {
		zapLog.Fatal("invalid send-valuation-report config", zap.Error(err))
	}
	reportHandler := svr.NewHandler(reportCfg, notifier, reader, log)
	if jw := camunda.StartWorker(zc.Zeebe(), svr.TaskType, config.GetWorkerConfig(cfg, svr.TaskType), reportHandler, obs, zapLog); jw != nil {
		jobWorkers = append(jobWorkers, jw)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(jobWorkers)))

	// --- HTTP ---
	var servers []*http.Server
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Options{
			Address:  cfg.API.Address,
			Valuer:   predictor,
			Recorder: recorders,
			Reader:   reader,
			Limiter:  limiter,
			Ready:    store.Ready,
			Logger:   log,

			TrustForwardedFor: cfg.API.TrustForwardedFor,
		})
		go func() {
			if err := apiServer.ListenAndServe(); err != nil {
				zapLog.Error("API server failed", zap.Error(err))
			}
		}()
	}

	if addr := cfg.Observability.MetricsAddress; addr != "" || !cfg.API.Enabled {
		if addr == "" {
			addr = cfg.API.Address
		}
		srv := healthServer(addr, store)
		servers = append(servers, srv)
		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range jobWorkers {
		jw.Close()
	}
	for _, jw := range jobWorkers {
		jw.AwaitClose()
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping API server", zap.Error(err))
		}
	}
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
		}
	}

	if err := zc.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func predictConfig(cfg *config.Config) *php.Config {
	wcfg := config.GetWorkerConfig(cfg, php.TaskType)
	c := php.DefaultConfig()
	c.Enabled = wcfg.Enabled
	c.MaxJobsActive = wcfg.MaxJobsActive
	c.Timeout = config.GetDuration(wcfg.Timeout)
	return c
}

func reportConfig(cfg *config.Config) *svr.Config {
	wcfg := config.GetWorkerConfig(cfg, svr.TaskType)
	c := svr.DefaultConfig()
	c.Enabled = wcfg.Enabled
	c.MaxJobsActive = wcfg.MaxJobsActive
	c.Timeout = config.GetDuration(wcfg.Timeout)
	return c
}

// healthServer serves /health, /ready and /metrics when the API is off
// or metrics have their own port.
func healthServer(addr string, store *pricing.Store) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		if !store.Ready() {
			status, code = "models not loaded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
