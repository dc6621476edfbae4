package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/crdb"
	mongoadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/mongo"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/rabbit"
	redisadapter "github.com/abhayrajpersonal/Turfex-sub001/internal/adapters/redis"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/audit"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/expiry"
	httphandler "github.com/abhayrajpersonal/Turfex-sub001/internal/http"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/idempotency"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/lifecycle"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/outbox"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/rateLimit"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/reservation"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/settlement"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/slotindex"
)

const (
	webhookSecret = "integration-secret"
	exchange      = "bookings.events"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

func with(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

func TestIntegration_BookPayConfirmPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container integration test in -short mode")
	}
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	}, "6379")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672")

	logger := observability.NewLogger("debug")

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", crdbAddr))
	require.NoError(t, err)
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	require.NoError(t, err)
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	mongoDB := mongoClient.Database("bookings")
	venues := mongoadapter.NewVenueDirectory(mongoDB, logger)
	auditLog := mongoadapter.NewAuditLogger(mongoDB, logger)
	require.NoError(t, venues.UpsertVenue(ctx, mongoadapter.VenueDoc{ID: "venue-ktm", Name: "Kathmandu Futsal", Timezone: "Asia/Kathmandu"}))

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	defer redisClient.Close()

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	require.NoError(t, err)
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn, exchange)
	require.NoError(t, err)
	consumer, err := rabbit.NewConsumer(rabbitConn, exchange, "bookings.test", "booking.#")
	require.NoError(t, err)

	machine := lifecycle.NewMachine(repo, logger)
	handlers := httphandler.NewHandlers(
		slotindex.NewIndex(repo, venues, time.UTC),
		reservation.NewCoordinator(repo, logger),
		settlement.NewVerifier(webhookSecret, logger),
		machine,
		repo,
		auditLog,
		logger,
	)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, httphandler.RouterOptions{
		Logger:       logger,
		RateLimiter:  rateLimit.NewRateLimiter(redisadapter.NewCache(redisClient), logger),
		Idempotency:  idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
		StoreTimeout: 5 * time.Second,
		PerIPLimit:   1000,
		PerUserLimit: 1000,
	}))
	defer srv.Close()

	post := func(path string, body any, key string) *http.Response {
		t.Helper()
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	// 18:00 in Kathmandu (UTC+05:45) on 2026-10-14.
	bookingReq := map[string]any{
		"venue_id":     "venue-ktm",
		"start_time":   "2026-10-14T12:15:00Z",
		"user_id":      "user-1",
		"price":        200000,
		"sport":        "futsal",
		"payment_mode": "ONLINE",
	}
	key := uuid.NewString()
	resp := post("/v1/bookings", bookingReq, key)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var pending domain.Booking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.Equal(t, domain.StatusPendingPayment, pending.Status)

	replay := post("/v1/bookings", bookingReq, key)
	require.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.Equal(t, "true", replay.Header.Get("Idempotent-Replayed"))

	bad := post("/v1/payments/verify", map[string]string{
		"order_id": pending.PaymentOrderID, "payment_id": "pay_1", "signature": "00",
	}, "")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	ok := post("/v1/payments/verify", map[string]string{
		"order_id":   pending.PaymentOrderID,
		"payment_id": "pay_1",
		"signature":  settlement.Sign([]byte(webhookSecret), pending.PaymentOrderID, "pay_1"),
	}, "")
	require.Equal(t, http.StatusOK, ok.StatusCode)

	walkIn := with(bookingReq, "payment_mode", "ON_SITE")
	conflict := post("/v1/bookings", walkIn, uuid.NewString())
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)

	avail, err := http.Get(srv.URL + "/v1/venues/venue-ktm/availability?date=2026-10-14")
	require.NoError(t, err)
	defer avail.Body.Close()
	require.Equal(t, http.StatusOK, avail.StatusCode)
	var snapshot domain.Availability
	require.NoError(t, json.NewDecoder(avail.Body).Decode(&snapshot))
	require.Len(t, snapshot.BookedSlots, 1)
	assert.Equal(t, domain.StatusConfirmed, snapshot.BookedSlots[0].Status)

	// An abandoned online booking is reclaimed by the sweeper.
	abandoned := with(bookingReq, "start_time", "2026-10-14T13:15:00Z")
	resp = post("/v1/bookings", abandoned, uuid.NewString())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sweeper := expiry.NewSweeper(repo, machine, 0, logger)
	n, err := sweeper.SweepOnce(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	published, err := outbox.NewPublisher(repo, rabbitPub, logger).PublishOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, published)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	deliveries, err := consumer.Consume(cctx)
	require.NoError(t, err)
	projector := audit.NewProjector(auditLog, logger)

	var events []string
	for len(events) < 4 {
		select {
		case d := <-deliveries:
			events = append(events, d.RoutingKey)
			require.NoError(t, projector.Handle(cctx, d.MessageId, d.RoutingKey, d.Body))
			require.NoError(t, d.Ack(false))
		case <-cctx.Done():
			t.Fatalf("timed out waiting for events, got %v", events)
		}
	}
	assert.ElementsMatch(t, []string{"booking.created", "booking.confirmed", "booking.created", "booking.expired"}, events)

	count, err := mongoDB.Collection("audit_logs").CountDocuments(ctx, bson.M{"booking_id": pending.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	rejected, err := mongoDB.Collection("audit_logs").CountDocuments(ctx, bson.M{"action": "payment.rejected"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rejected)
}
