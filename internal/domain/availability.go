package domain

import (
	"sort"
	"time"
)

type SlotState struct {
	StartTime time.Time `json:"start_time"`
	Status    Status    `json:"status"`
}

// Availability is the per-request view of what is booked for a venue on one day.
type Availability struct {
	VenueID     string      `json:"venue_id"`
	Date        string      `json:"date"`
	BookedSlots []SlotState `json:"booked_slots"`
}

// NewAvailability drops cancelled bookings and duplicate (start_time, status)
// pairs and orders the rest by start time.
func NewAvailability(venueID, date string, bookings []Booking) Availability {
	type key struct {
		start  int64
		status Status
	}
	seen := make(map[key]struct{}, len(bookings))
	slots := make([]SlotState, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == StatusCancelled {
			continue
		}
		st := SlotState{StartTime: b.StartTime.UTC(), Status: b.Status}
		k := key{start: st.StartTime.UnixNano(), status: st.Status}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		slots = append(slots, st)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].Status < slots[j].Status
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return Availability{VenueID: venueID, Date: date, BookedSlots: slots}
}
