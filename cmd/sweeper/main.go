package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/audit"
	"github.com/opticlinic/booking-engine/internal/booking"
	"github.com/opticlinic/booking-engine/internal/config"
	"github.com/opticlinic/booking-engine/internal/db"
	"github.com/opticlinic/booking-engine/internal/logging"
	"github.com/opticlinic/booking-engine/internal/notify"
	redisclient "github.com/opticlinic/booking-engine/internal/redis"
)

// The sweeper periodically marks live bookings whose visit window has
// passed as no_show, so stale pending bookings never hold a slot's
// history open forever.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := logging.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("sweeper starting up", zap.Duration("interval", cfg.SweepInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

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

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	runSweep(rootCtx, svc, log)

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutting down sweeper")
			return
		case <-ticker.C:
			runSweep(rootCtx, svc, log)
		}
	}
}

func runSweep(ctx context.Context, svc *booking.Service, log *zap.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := svc.SweepNoShows(sweepCtx)
	if err != nil {
		log.Warn("no-show sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		log.Info("no-show sweep done", zap.Int("swept", swept))
	}
}
