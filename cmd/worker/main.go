package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/myowjaYOY/program-tracker-sub001/internal/audit"
	"github.com/myowjaYOY/program-tracker-sub001/internal/config"
	"github.com/myowjaYOY/program-tracker-sub001/internal/obs"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
	"github.com/myowjaYOY/program-tracker-sub001/internal/tasks"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "program_tracker"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	asynqRedis := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}

	auditSvc := &audit.Service{
		Store:       program.NewRepo(pool),
		TaxRate:     cfg.TaxRate,
		Concurrency: cfg.AuditConcurrency,
		Logger:      logger.With().Str("component", "audit").Logger(),
	}
	mux := tasks.Mux(tasks.AuditProcessor{Svc: auditSvc, Logger: logger})

	srv := asynq.NewServer(asynqRedis, asynq.Config{Concurrency: 2})

	scheduler := asynq.NewScheduler(asynqRedis, &asynq.SchedulerOpts{})
	auditTask, err := tasks.NewIntegrityAuditTask(tasks.IntegrityAuditPayload{AutoFix: cfg.AuditAutoFix})
	if err != nil {
		logger.Fatal().Err(err).Msg("build audit task")
	}
	if _, err := scheduler.Register(cfg.AuditSchedule, auditTask); err != nil {
		logger.Fatal().Err(err).Msg("register audit schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal().Err(err).Msg("scheduler exited")
		}
	}()

	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Fatal().Err(err).Msg("task server exited")
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	logger.Info().Msg("shutting down worker")
	scheduler.Shutdown()
	srv.Shutdown()
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
