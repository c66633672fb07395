package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/myowjaYOY/program-tracker-sub001/internal/audit"
	"github.com/myowjaYOY/program-tracker-sub001/internal/auth"
	"github.com/myowjaYOY/program-tracker-sub001/internal/config"
	"github.com/myowjaYOY/program-tracker-sub001/internal/contract"
	"github.com/myowjaYOY/program-tracker-sub001/internal/db"
	"github.com/myowjaYOY/program-tracker-sub001/internal/health"
	"github.com/myowjaYOY/program-tracker-sub001/internal/lock"
	"github.com/myowjaYOY/program-tracker-sub001/internal/obs"
	"github.com/myowjaYOY/program-tracker-sub001/internal/options"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
	"github.com/myowjaYOY/program-tracker-sub001/internal/quote"
	"github.com/myowjaYOY/program-tracker-sub001/internal/ratelimit"
	"github.com/myowjaYOY/program-tracker-sub001/internal/security"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "program_tracker")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "program-tracker-api",
			Endpoint:    envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "program-tracker-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	repo := program.NewRepo(pool)
	validate := validator.New()

	contractSvc := &contract.Service{
		Store:   repo,
		Locker:  lock.Locker{Client: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.LockTTL,
		TaxRate: cfg.TaxRate,
	}
	auditSvc := &audit.Service{
		Store:       repo,
		TaxRate:     cfg.TaxRate,
		Concurrency: cfg.AuditConcurrency,
		Logger:      logger.With().Str("component", "audit").Logger(),
	}

	programHandler := program.Handler{Repo: repo, Validate: validate, TaxRate: cfg.TaxRate}
	contractHandler := contract.Handler{Svc: contractSvc, Validate: validate}
	optionsHandler := options.Handler{Store: repo, TaxRate: cfg.TaxRate}
	quoteHandler := quote.Handler{DefaultTaxRate: cfg.TaxRate}
	auditHandler := audit.Handler{Svc: auditSvc}

	authMiddleware := auth.Middleware{Verifier: auth.Verifier{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
	}}
	quoteLimiter := ratelimit.Limiter{
		Client: redisClient,
		Prefix: "rl:quotes:",
		Window: cfg.RateLimitWindow,
		Max:    cfg.RateLimitMax,
	}
	mutateLimiter := ratelimit.Limiter{
		Client: redisClient,
		Prefix: "rl:mutations:",
		Window: cfg.RateLimitWindow,
		Max:    cfg.RateLimitMax,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Deps: map[string]health.Pinger{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/therapies", programHandler.ListTherapies)

		v.With(ratelimit.Middleware(quoteLimiter, logger)).Route("/quotes", func(q chi.Router) {
			q.Post("/taxes", quoteHandler.Taxes)
			q.Post("/price", quoteHandler.Price)
			q.Post("/margin", quoteHandler.Margin)
		})

		v.Group(func(authed chi.Router) {
			authed.Use(authMiddleware.RequireAuth)

			authed.Route("/programs", func(p chi.Router) {
				p.Post("/", programHandler.Create)
				p.Get("/", programHandler.List)
				p.Route("/{id}", func(one chi.Router) {
					one.Get("/", programHandler.Get)
					one.Get("/options", optionsHandler.Get)
					one.Group(func(mutate chi.Router) {
						mutate.Use(ratelimit.Middleware(mutateLimiter, logger))
						mutate.Post("/activate", contractHandler.Activate)
						mutate.Post("/items", contractHandler.AddItem)
						mutate.Patch("/items/{itemID}", contractHandler.UpdateItem)
						mutate.Delete("/items/{itemID}", contractHandler.RemoveItem)
					})
				})
			})

			authed.Route("/admin", func(admin chi.Router) {
				admin.Post("/audit", auditHandler.Run)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")
	ctxTimeout, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxTimeout); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	return []string{"http://localhost:3000"}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
