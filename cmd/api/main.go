package main

import (
	"context"
	"crypto/rsa"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/crdb"
	mongoadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/mongo"
	redisadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/redis"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/config"
	httphandler "github.com/abhayrajpersonal/Turfex-sub001/internal/http"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/idempotency"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/lifecycle"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/rateLimit"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/reservation"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/settlement"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/slotindex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "slots-api")
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
	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	fallback, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		log.Fatalf("invalid DEFAULT_TIMEZONE: %v", err)
	}

	var (
		locator slotindex.Locator
		audit   httphandler.PaymentAudit
	)
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		mongoDB := mongoClient.Database(cfg.MongoDB)
		locator = mongoadapter.NewVenueDirectory(mongoDB, logger)
		audit = mongoadapter.NewAuditLogger(mongoDB, logger)
	}

	var (
		idemp *idempotency.Idempotency
		rl    *rateLimit.RateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), 24*time.Hour)
		rl = rateLimit.NewRateLimiter(redisadapter.NewCache(redisClient), logger)
	} else {
		logger.Warn("REDIS_ADDR not set: idempotent replay and rate limiting are disabled")
	}

	var jwtKey *rsa.PublicKey
	if cfg.JWTPublicKey != "" {
		jwtKey, err = jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			log.Fatalf("invalid JWT_PUBLIC_KEY: %v", err)
		}
	}

	verifier := settlement.NewVerifier(cfg.PaymentSecret, logger)
	if cfg.DemoPayments() {
		logger.WithField("verification_mode", string(settlement.DemoBypass)).
			Warn("PAYMENT_WEBHOOK_SECRET not set: payment signatures will not be checked")
	}

	handlers := httphandler.NewHandlers(
		slotindex.NewIndex(repo, locator, fallback),
		reservation.NewCoordinator(repo, logger),
		verifier,
		lifecycle.NewMachine(repo, logger),
		repo,
		audit,
		logger,
	)
	r := httphandler.SetupRouter(handlers, httphandler.RouterOptions{
		Logger:         logger,
		RateLimiter:    rl,
		Idempotency:    idemp,
		JWTKey:         jwtKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StoreTimeout:   cfg.StoreTimeout,
		PerIPLimit:     cfg.RateLimitPerIP,
		PerUserLimit:   cfg.RateLimitPerUser,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	logger.Info("Server exiting")
}
