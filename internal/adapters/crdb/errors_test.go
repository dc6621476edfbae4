package crdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
)

func TestStoreError_SlotViolationIsConflict(t *testing.T) {
	for name, pgErr := range map[string]*pgconn.PgError{
		"constraint name": {Code: UniqueViolationCode, ConstraintName: ConfirmedSlotIndex},
		"message only": {
			Code:    UniqueViolationCode,
			Message: `duplicate key value violates unique constraint "bookings_confirmed_slot_idx"`,
		},
		"table only": {Code: UniqueViolationCode, TableName: "bookings"},
	} {
		t.Run(name, func(t *testing.T) {
			err := storeError(pgErr, "confirm booking")
			assert.True(t, errors.Is(err, domain.ErrConflict), "%v", err)
			assert.Equal(t, domain.ErrConflict.Error(), errors.UnwrapAll(err).Error())
		})
	}
}

func TestStoreError_ConstraintFailureHidesDriverDetail(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		Message:        `failed to satisfy CHECK constraint (price >= 0:::INT8)`,
		ConstraintName: "bookings_price_check",
	}

	err := storeError(pgErr, "insert booking")

	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	msg := errors.UnwrapAll(err).Error()
	assert.Equal(t, rejectedMessage, msg)
	assert.NotContains(t, msg, "23514")
	assert.NotContains(t, msg, "CHECK")
	assert.Contains(t, fmt.Sprintf("%+v", err), "SQLSTATE 23514", "driver error stays attached for logs")
}

func TestStoreError_Classification(t *testing.T) {
	assert.Nil(t, storeError(nil, "op"))
	assert.True(t, errors.Is(storeError(context.DeadlineExceeded, "op"), domain.ErrStorageUnavailable))
	assert.True(t, errors.Is(storeError(&pgconn.PgError{Code: SerializationFailureCode}, "op"), domain.ErrStorageUnavailable))
	assert.True(t, errors.Is(storeError(errors.New("conn reset"), "op"), domain.ErrStorageUnavailable))
	notFound := errors.Wrap(domain.ErrNotFound, "booking")
	assert.Equal(t, notFound, storeError(notFound, "op"))
}
