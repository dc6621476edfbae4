package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/crdb"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/config"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/expiry"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/lifecycle"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "slots-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	sweeper := expiry.NewSweeper(repo, lifecycle.NewMachine(repo, logger), cfg.PaymentHoldTTL, logger)

	logger.WithFields(map[string]interface{}{
		"hold_ttl": cfg.PaymentHoldTTL.String(),
		"interval": cfg.SweepInterval.String(),
	}).Info("expiry worker started")
	sweeper.Run(ctx, cfg.SweepInterval)
	logger.Info("Shutdown expiry worker")
}
