package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/crdb"
	mongoadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/mongo"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/rabbit"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/audit"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/config"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/outbox"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const auditQueue = "bookings.audit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "slots-outbox-publisher")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn, cfg.RabbitExchange)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outbox.NewPublisher(repo, rabbitPub, logger).Run(gctx, cfg.OutboxInterval)
		return nil
	})

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()

		consumer, err := rabbit.NewConsumer(conn, cfg.RabbitExchange, auditQueue, "booking.#")
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		defer consumer.Close()
		deliveries, err := consumer.Consume(gctx)
		if err != nil {
			log.Fatalf("failed to consume %s: %v", auditQueue, err)
		}
		projector := audit.NewProjector(mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger), logger)
		g.Go(func() error {
			projector.Run(gctx, deliveries)
			return nil
		})
	}

	logger.WithField("exchange", cfg.RabbitExchange).Info("outbox publisher started")
	_ = g.Wait()
	logger.Info("Shutdown outbox publisher")
}
