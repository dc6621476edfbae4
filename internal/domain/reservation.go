package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReservationRequest struct {
	VenueID     string
	StartTime   time.Time
	EndTime     *time.Time
	UserID      string
	Price       int64
	Sport       string
	PaymentMode PaymentMode
}

// Validate checks the request the same way whether or not the caller already did.
func (r ReservationRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.VenueID) == "":
		return InvalidArgument("venue_id is required")
	case strings.TrimSpace(r.UserID) == "":
		return InvalidArgument("user_id is required")
	case r.StartTime.IsZero():
		return InvalidArgument("start_time is required")
	case r.EndTime != nil && !r.EndTime.After(r.StartTime):
		return InvalidArgument("end_time must be after start_time")
	case r.Price < 0:
		return InvalidArgument("price must not be negative")
	case !r.PaymentMode.Valid():
		return InvalidArgument("payment_mode must be ONLINE or ON_SITE")
	}
	return nil
}

// InitialStatus is the only place a booking's first status is decided.
func InitialStatus(mode PaymentMode) Status {
	if mode == PaymentOnline {
		return StatusPendingPayment
	}
	return StatusConfirmed
}

// NewBooking materialises a booking for req. CreatedAt and UpdatedAt are
// left for the store to assign.
func NewBooking(req ReservationRequest) Booking {
	b := Booking{
		ID:          uuid.New(),
		VenueID:     strings.TrimSpace(req.VenueID),
		UserID:      strings.TrimSpace(req.UserID),
		Sport:       req.Sport,
		StartTime:   req.StartTime.UTC(),
		Price:       req.Price,
		PaymentMode: req.PaymentMode,
		Status:      InitialStatus(req.PaymentMode),
	}
	if req.EndTime != nil {
		end := req.EndTime.UTC()
		b.EndTime = &end
	}
	if req.PaymentMode == PaymentOnline {
		b.PaymentOrderID = NewPaymentOrderID()
	}
	return b
}

func NewPaymentOrderID() string {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
