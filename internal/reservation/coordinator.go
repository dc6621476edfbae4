// Package reservation decides whether a slot may be booked and records the
// decision.
package reservation

import (
	"context"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Store is the durable side of a reservation. InsertBooking must reject a
// second CONFIRMED booking for the same slot with domain.ErrConflict; that
// rejection, not ConfirmedExists, is what keeps a slot single-booked.
type Store interface {
	ConfirmedExists(ctx context.Context, slot domain.Slot) (bool, error)
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
}

type Coordinator struct {
	store  Store
	logger observability.Logger
}

func NewCoordinator(store Store, logger observability.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger.WithField("component", "reservation")}
}

// Reserve books req's slot. ONLINE bookings start PENDING_PAYMENT, ON_SITE
// bookings start CONFIRMED. On any error nothing has been written.
func (c *Coordinator) Reserve(ctx context.Context, req domain.ReservationRequest) (domain.Booking, error) {
	ctx, span := otel.Tracer("reservation").Start(ctx, "reservation.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.venue_id", req.VenueID),
		attribute.String("booking.start_time", req.StartTime.UTC().Format(time.RFC3339)),
		attribute.String("booking.payment_mode", string(req.PaymentMode)),
	)

	b, err := c.reserve(ctx, req)
	outcome := outcomeOf(err)
	observability.ReservationsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return domain.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	return b, nil
}

func (c *Coordinator) reserve(ctx context.Context, req domain.ReservationRequest) (domain.Booking, error) {
	if err := req.Validate(); err != nil {
		return domain.Booking{}, err
	}
	b := domain.NewBooking(req)
	log := c.logger.WithFields(map[string]interface{}{
		"venue_id":   b.VenueID,
		"start_time": b.StartTime.Format(time.RFC3339),
		"user_id":    b.UserID,
	})

	taken, err := c.store.ConfirmedExists(ctx, b.Slot())
	if err != nil {
		log.WithError(err).Error("check slot")
		return domain.Booking{}, asStorageError(err, "check slot")
	}
	if taken {
		log.Info("slot already confirmed")
		return domain.Booking{}, errors.Wrapf(domain.ErrConflict, "venue %s at %s", b.VenueID, b.StartTime.Format(time.RFC3339))
	}

	created, err := c.store.InsertBooking(ctx, b)
	switch {
	case errors.Is(err, domain.ErrConflict):
		log.Info("slot confirmed by a concurrent reservation")
		return domain.Booking{}, err
	case errors.Is(err, domain.ErrInvalidArgument):
		return domain.Booking{}, err
	case err != nil:
		log.WithError(err).Error("insert booking")
		return domain.Booking{}, asStorageError(err, "insert booking")
	}

	log.WithFields(map[string]interface{}{
		"booking_id": created.ID.String(),
		"status":     string(created.Status),
	}).Info("booking created")
	return created, nil
}

func asStorageError(err error, op string) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return domain.Unavailable(err, op)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	default:
		return "storage_error"
	}
}
