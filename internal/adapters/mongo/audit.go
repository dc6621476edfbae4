package mongo

import (
	"context"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger.WithField("component", "audit"),
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID string    `bson:"booking_id,omitempty"`
	UserID    string    `bson:"user_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// LogEvent stores one audit entry. A non-empty id makes the write idempotent,
// so redelivered messages do not duplicate entries.
func (a *AuditLogger) LogEvent(ctx context.Context, id, action string, b *domain.Booking, data map[string]interface{}) error {
	if id == "" {
		id = uuid.NewString()
	}
	entry := AuditLog{
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	if b != nil {
		entry.BookingID = b.ID.String()
		entry.UserID = b.UserID
	}
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": id}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return domain.Unavailable(err, "insert audit log")
	}
	return nil
}

// LogBooking records a booking lifecycle event.
func (a *AuditLogger) LogBooking(ctx context.Context, id, action string, b domain.Booking) error {
	data := map[string]interface{}{
		"venue_id":     b.VenueID,
		"start_time":   b.StartTime.UTC().Format(time.RFC3339),
		"status":       string(b.Status),
		"payment_mode": string(b.PaymentMode),
		"price":        b.Price,
	}
	if b.PaymentID != "" {
		data["payment_id"] = b.PaymentID
	}
	if b.CancelReason != "" {
		data["cancel_reason"] = b.CancelReason
	}
	return a.LogEvent(ctx, id, action, &b, data)
}

// LogPaymentRejected records a callback that failed verification.
func (a *AuditLogger) LogPaymentRejected(ctx context.Context, orderID, paymentID, reason string) error {
	return a.LogEvent(ctx, "", "payment.rejected", nil, map[string]interface{}{
		"order_id":   orderID,
		"payment_id": paymentID,
		"reason":     reason,
	})
}
