package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusConfirmed      Status = "CONFIRMED"
	StatusCancelled      Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type PaymentMode string

const (
	PaymentOnline PaymentMode = "ONLINE"
	PaymentOnSite PaymentMode = "ON_SITE"
)

func (m PaymentMode) Valid() bool {
	return m == PaymentOnline || m == PaymentOnSite
}

const (
	ReasonUserCancelled      = "user_cancelled"
	ReasonPaymentHoldExpired = "payment_hold_expired"
)

// Booking is one reservation of a slot. VenueID, StartTime and EndTime never
// change after creation; only Status and the audit fields do.
type Booking struct {
	ID             uuid.UUID   `json:"id"`
	VenueID        string      `json:"venue_id"`
	UserID         string      `json:"user_id"`
	Sport          string      `json:"sport"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        *time.Time  `json:"end_time,omitempty"`
	Price          int64       `json:"price"`
	PaymentMode    PaymentMode `json:"payment_mode"`
	Status         Status      `json:"status"`
	PaymentOrderID string      `json:"payment_order_id,omitempty"`
	PaymentID      string      `json:"payment_id,omitempty"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasEndTime reports whether the booking was created with an explicit end.
func (b Booking) HasEndTime() bool {
	return b.EndTime != nil
}

// Slot is the (venue, start_time) pair a confirmed booking occupies.
type Slot struct {
	VenueID   string
	StartTime time.Time
}

func (b Booking) Slot() Slot {
	return Slot{VenueID: b.VenueID, StartTime: b.StartTime.UTC()}
}

// Transition describes one status change applied by the store as a
// compare-and-swap on From.
type Transition struct {
	BookingID uuid.UUID
	From      Status
	To        Status
	PaymentID string
	Reason    string
	Event     string
	At        time.Time
}
