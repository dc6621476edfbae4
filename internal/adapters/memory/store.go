// Package memory is a process-local booking store with the same slot
// uniqueness and compare-and-swap semantics as the crdb adapter.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/outbox"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]domain.Booking
	confirmed map[domain.Slot]uuid.UUID
	orders    map[string]uuid.UUID
	outbox    []outbox.Record

	// Now stamps created_at and updated_at.
	Now func() time.Time
	// FailInsert, when set, is consulted before every insert; a non-nil
	// result aborts the insert with nothing written.
	FailInsert func(domain.Booking) error
}

func NewStore() *Store {
	return &Store{
		bookings:  make(map[uuid.UUID]domain.Booking),
		confirmed: make(map[domain.Slot]uuid.UUID),
		orders:    make(map[string]uuid.UUID),
		Now:       time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, domain.Unavailable(err, "insert booking")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsert != nil {
		if err := s.FailInsert(b); err != nil {
			return domain.Booking{}, err
		}
	}
	if b.Status.OccupiesSlot() {
		if _, taken := s.confirmed[b.Slot()]; taken {
			return domain.Booking{}, errors.Wrapf(domain.ErrConflict, "venue %s at %s", b.VenueID, b.StartTime.Format(time.RFC3339))
		}
	}
	if _, dup := s.bookings[b.ID]; dup {
		return domain.Booking{}, domain.InvalidArgument("duplicate booking id")
	}

	now := s.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = b
	if b.Status.OccupiesSlot() {
		s.confirmed[b.Slot()] = b.ID
	}
	if b.PaymentOrderID != "" {
		s.orders[b.PaymentOrderID] = b.ID
	}
	s.appendEvent("booking.created", b)
	return b, nil
}

func (s *Store) ConfirmedExists(ctx context.Context, slot domain.Slot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.Unavailable(err, "check confirmed slot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.StartTime = slot.StartTime.UTC()
	_, ok := s.confirmed[slot]
	return ok, nil
}

func (s *Store) ListActiveBetween(ctx context.Context, venueID string, from, to time.Time) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable(err, "list bookings")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.VenueID != venueID || b.Status == domain.StatusCancelled {
			continue
		}
		if b.StartTime.Before(from) || !b.StartTime.Before(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, domain.Unavailable(err, "get booking")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b, nil
}

func (s *Store) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, domain.Unavailable(err, "get booking by order")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orders[orderID]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "payment order %s", orderID)
	}
	return s.bookings[id], nil
}

func (s *Store) ApplyTransition(ctx context.Context, tr domain.Transition) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, domain.Unavailable(err, "update booking status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[tr.BookingID]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", tr.BookingID)
	}
	if b.Status != tr.From {
		return domain.Booking{}, errors.Wrapf(domain.ErrInvalidStateTransition, "booking %s is %s, not %s", b.ID, b.Status, tr.From)
	}
	if tr.To.OccupiesSlot() {
		if holder, taken := s.confirmed[b.Slot()]; taken && holder != b.ID {
			return domain.Booking{}, errors.Wrapf(domain.ErrConflict, "venue %s at %s", b.VenueID, b.StartTime.Format(time.RFC3339))
		}
	}

	if b.Status.OccupiesSlot() && !tr.To.OccupiesSlot() {
		delete(s.confirmed, b.Slot())
	}
	b.Status = tr.To
	if tr.PaymentID != "" {
		b.PaymentID = tr.PaymentID
	}
	if tr.Reason != "" {
		b.CancelReason = tr.Reason
	}
	b.UpdatedAt = tr.At.UTC()
	s.bookings[b.ID] = b
	if b.Status.OccupiesSlot() {
		s.confirmed[b.Slot()] = b.ID
	}
	s.appendEvent(tr.Event, b)
	return b, nil
}

func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable(err, "list stale pending")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.Status == domain.StatusPendingPayment && !b.CreatedAt.After(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetUnpublishedOutbox(_ context.Context, limit int) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Record
	for _, rec := range s.outbox {
		if rec.Status == "NEW" && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			at := publishedAt
			s.outbox[i].Status = "PUBLISHED"
			s.outbox[i].PublishedAt = &at
		}
	}
	return nil
}

// Bookings returns every stored booking, cancelled ones included.
func (s *Store) Bookings() []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	return out
}

// Events returns the event types written to the outbox, in order.
func (s *Store) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.outbox))
	for _, rec := range s.outbox {
		out = append(out, rec.EventType)
	}
	return out
}

// SetCreatedAt rewrites a booking's creation time; used to age pending bookings.
func (s *Store) SetCreatedAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.CreatedAt = at.UTC()
		s.bookings[id] = b
	}
}

func (s *Store) appendEvent(eventType string, b domain.Booking) {
	payload, _ := json.Marshal(b)
	s.outbox = append(s.outbox, outbox.Record{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     s.Now().UTC(),
		Status:        "NEW",
		DedupeKey:     eventType + ":" + b.ID.String() + ":" + string(b.Status),
	})
}
