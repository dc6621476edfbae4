package crdb

import (
	"context"
	"strings"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"

	ConfirmedSlotIndex = "bookings_confirmed_slot_idx"
	bookingsTable      = "bookings"

	rejectedMessage = "booking rejected by store constraints"
)

// storeError classifies a pgx failure into the domain error kinds.
func storeError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidStateTransition) || errors.Is(err, domain.ErrStorageUnavailable) ||
		errors.Is(err, domain.ErrInvalidArgument) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Unavailable(err, op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == UniqueViolationCode && slotViolation(pgErr):
			return errors.Wrap(domain.ErrConflict, op)
		case pgErr.Code == SerializationFailureCode:
			return domain.Unavailable(err, op)
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			// The driver error stays attached for logs but never becomes the client message.
			return errors.Wrap(errors.WithSecondaryError(domain.InvalidArgument(rejectedMessage), err), op)
		}
	}
	return domain.Unavailable(err, op)
}

// slotViolation reports whether a unique violation is a second booking for a
// slot. Some servers leave ConstraintName empty, so the message and table are
// checked too.
func slotViolation(pgErr *pgconn.PgError) bool {
	return pgErr.ConstraintName == ConfirmedSlotIndex ||
		strings.Contains(pgErr.Message, ConfirmedSlotIndex) ||
		pgErr.TableName == bookingsTable
}
