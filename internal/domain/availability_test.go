package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
)

func TestNewAvailability_ExcludesCancelledAndDeduplicates(t *testing.T) {
	t1 := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

	av := domain.NewAvailability("venue-1", "2026-10-14", []domain.Booking{
		{StartTime: t1, Status: domain.StatusConfirmed},
		{StartTime: t2, Status: domain.StatusCancelled},
		{StartTime: t3, Status: domain.StatusPendingPayment},
		{StartTime: t3, Status: domain.StatusPendingPayment},
	})

	assert.Equal(t, []domain.SlotState{
		{StartTime: t3, Status: domain.StatusPendingPayment},
		{StartTime: t1, Status: domain.StatusConfirmed},
	}, av.BookedSlots)
}

func TestNewAvailability_EmptyIsNotNil(t *testing.T) {
	av := domain.NewAvailability("venue-1", "2026-10-14", nil)
	assert.NotNil(t, av.BookedSlots)
	assert.Empty(t, av.BookedSlots)
}
