package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/outbox"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, venue_id, user_id, sport, start_time, end_time, price, payment_mode, status,
	payment_order_id, payment_id, cancel_reason, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return storeError(r.pool.Ping(ctx), "ping")
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeError(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return storeError(err, "set isolation")
	}

	if err := fn(tx); err != nil {
		return err
	}

	return storeError(tx.Commit(ctx), "commit")
}

// InsertBooking writes b and its booking.created outbox event in one
// transaction. A second CONFIRMED row for the same venue and start time is
// rejected by bookings_confirmed_slot_idx and reported as domain.ErrConflict.
func (r *Repository) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO bookings (id, venue_id, user_id, sport, start_time, end_time, price, payment_mode, status, payment_order_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (venue_id, start_time) WHERE status = 'CONFIRMED' DO NOTHING
			RETURNING created_at, updated_at
		`, b.ID, b.VenueID, b.UserID, b.Sport, b.StartTime, b.EndTime, b.Price, string(b.PaymentMode),
			string(b.Status), nullable(b.PaymentOrderID)).Scan(&b.CreatedAt, &b.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(domain.ErrConflict, "venue %s at %s", b.VenueID, b.StartTime.Format(time.RFC3339))
		}
		if err != nil {
			return storeError(err, "insert booking")
		}
		return r.insertBookingEvent(ctx, tx, "booking.created", b)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repository) ConfirmedExists(ctx context.Context, slot domain.Slot) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE venue_id = $1 AND start_time = $2 AND status = 'CONFIRMED'
		)
	`, slot.VenueID, slot.StartTime).Scan(&exists)
	if err != nil {
		return false, storeError(err, "check confirmed slot")
	}
	return exists, nil
}

// ListActiveBetween returns non-cancelled bookings of venueID starting in [from, to).
func (r *Repository) ListActiveBetween(ctx context.Context, venueID string, from, to time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE venue_id = $1 AND start_time >= $2 AND start_time < $3 AND status <> 'CANCELLED'
		ORDER BY start_time
	`, venueID, from, to)
	if err != nil {
		return nil, storeError(err, "list bookings")
	}
	return collectBookings(rows)
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b, storeError(err, "get booking")
}

func (r *Repository) GetBookingByOrderID(ctx context.Context, orderID string) (domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_order_id = $1`, orderID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "payment order %s", orderID)
	}
	return b, storeError(err, "get booking by order")
}

// ApplyTransition moves a booking from tr.From to tr.To only if it is still in
// tr.From, and records tr.Event in the outbox within the same transaction.
func (r *Repository) ApplyTransition(ctx context.Context, tr domain.Transition) (domain.Booking, error) {
	var out domain.Booking
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $3,
				payment_id = COALESCE($4, payment_id),
				cancel_reason = COALESCE($5, cancel_reason),
				updated_at = $6
			WHERE id = $1 AND status = $2
			RETURNING `+bookingColumns,
			tr.BookingID, string(tr.From), string(tr.To), nullable(tr.PaymentID), nullable(tr.Reason), tr.At)
		b, err := scanBooking(row)
		if errors.Is(err, pgx.ErrNoRows) {
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, tr.BookingID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Wrapf(domain.ErrNotFound, "booking %s", tr.BookingID)
			}
			if err != nil {
				return storeError(err, "read booking status")
			}
			return errors.Wrapf(domain.ErrInvalidStateTransition, "booking %s is %s, not %s", tr.BookingID, current, tr.From)
		}
		if err != nil {
			return storeError(err, "update booking status")
		}
		out = b
		return r.insertBookingEvent(ctx, tx, tr.Event, b)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// ListStalePending returns up to limit PENDING_PAYMENT bookings created at or before cutoff.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING_PAYMENT' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, storeError(err, "list stale pending")
	}
	return collectBookings(rows)
}

func (r *Repository) insertBookingEvent(ctx context.Context, tx pgx.Tx, eventType string, b domain.Booking) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode booking event")
	}
	return storeError(r.InsertOutbox(ctx, tx, outbox.Record{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + b.ID.String() + ":" + string(b.Status),
	}), "insert outbox")
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storeError(err, "scan booking")
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterate bookings")
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b                          domain.Booking
		mode, status               string
		orderID, paymentID, reason *string
	)
	err := row.Scan(&b.ID, &b.VenueID, &b.UserID, &b.Sport, &b.StartTime, &b.EndTime, &b.Price, &mode, &status,
		&orderID, &paymentID, &reason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.Booking{}, err
	}
	b.PaymentMode = domain.PaymentMode(mode)
	b.Status = domain.Status(status)
	b.PaymentOrderID = deref(orderID)
	b.PaymentID = deref(paymentID)
	b.CancelReason = deref(reason)
	b.StartTime = b.StartTime.UTC()
	if b.EndTime != nil {
		end := b.EndTime.UTC()
		b.EndTime = &end
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
