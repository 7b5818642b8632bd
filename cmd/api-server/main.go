package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/api"
	"github.com/opticlinic/booking-engine/internal/audit"
	"github.com/opticlinic/booking-engine/internal/booking"
	"github.com/opticlinic/booking-engine/internal/config"
	"github.com/opticlinic/booking-engine/internal/db"
	"github.com/opticlinic/booking-engine/internal/logging"
	"github.com/opticlinic/booking-engine/internal/notify"
	redisclient "github.com/opticlinic/booking-engine/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := logging.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Int("horizon_months", cfg.HorizonMonths),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatal("migration error", zap.Error(err))
	}
	log.Info("migrations applied")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	accountRepo := account.NewPgRepository(pgPool)

	svc := booking.NewService(booking.Deps{
		Repo:          booking.NewPgRepository(pgPool),
		Accounts:      accountRepo,
		Assigner:      account.NewFirstAvailableAssigner(accountRepo),
		Locker:        redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Notifier:      notify.NewLogNotifier(log),
		Audit:         audit.NewPgRecorder(pgPool),
		Log:           log,
		HorizonMonths: cfg.HorizonMonths,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
