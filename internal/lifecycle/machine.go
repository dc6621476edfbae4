// Package lifecycle is the only code path that changes a booking's status
// after creation.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/settlement"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	EventConfirmed = "booking.confirmed"
	EventCancelled = "booking.cancelled"
	EventExpired   = "booking.expired"
)

// Store applies a transition only while the booking is still in tr.From.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error)
	ApplyTransition(ctx context.Context, tr domain.Transition) (domain.Booking, error)
}

type Machine struct {
	store  Store
	logger observability.Logger
	now    func() time.Time
}

func NewMachine(store Store, logger observability.Logger) *Machine {
	return &Machine{store: store, logger: logger.WithField("component", "lifecycle"), now: time.Now}
}

// Confirm moves the booking behind receipt.OrderID from PENDING_PAYMENT to
// CONFIRMED. It refuses receipts that did not come from settlement.Verifier.
func (m *Machine) Confirm(ctx context.Context, receipt settlement.Receipt) (domain.Booking, error) {
	if !receipt.Valid() {
		return domain.Booking{}, errors.Wrap(domain.ErrInvalidStateTransition, "confirmation requires a verified payment")
	}
	b, err := m.store.GetBookingByOrderID(ctx, receipt.OrderID)
	if err != nil {
		return domain.Booking{}, err
	}

	confirmed, err := m.apply(ctx, b, domain.StatusConfirmed, EventConfirmed, receipt.PaymentID, "")
	if err != nil {
		return domain.Booking{}, err
	}
	m.logger.WithFields(map[string]interface{}{
		"booking_id":        confirmed.ID.String(),
		"order_id":          receipt.OrderID,
		"verification_mode": string(receipt.Outcome),
	}).Info("booking confirmed")
	return confirmed, nil
}

// Cancel moves a pending or confirmed booking to CANCELLED, freeing its slot.
func (m *Machine) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Booking, error) {
	b, err := m.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.ReasonUserCancelled
	}
	cancelled, err := m.apply(ctx, b, domain.StatusCancelled, EventCancelled, "", reason)
	if err != nil {
		return domain.Booking{}, err
	}
	m.logger.WithFields(map[string]interface{}{
		"booking_id": cancelled.ID.String(),
		"reason":     reason,
	}).Info("booking cancelled")
	return cancelled, nil
}

// Expire releases a booking whose payment hold ran out. Only PENDING_PAYMENT
// bookings can expire.
func (m *Machine) Expire(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if b.Status != domain.StatusPendingPayment {
		return domain.Booking{}, errors.Wrapf(domain.ErrInvalidStateTransition, "booking %s is %s and cannot expire", b.ID, b.Status)
	}
	return m.apply(ctx, b, domain.StatusCancelled, EventExpired, "", domain.ReasonPaymentHoldExpired)
}

func (m *Machine) apply(ctx context.Context, b domain.Booking, to domain.Status, event, paymentID, reason string) (domain.Booking, error) {
	if err := domain.CheckTransition(b.Status, to); err != nil {
		m.logger.WithFields(map[string]interface{}{
			"booking_id": b.ID.String(),
			"from":       string(b.Status),
			"to":         string(to),
		}).Warn("rejected booking transition")
		return domain.Booking{}, err
	}
	return m.store.ApplyTransition(ctx, domain.Transition{
		BookingID: b.ID,
		From:      b.Status,
		To:        to,
		PaymentID: paymentID,
		Reason:    reason,
		Event:     event,
		At:        m.now().UTC(),
	})
}
