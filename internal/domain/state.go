package domain

import "github.com/cockroachdb/errors"

var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCancelled},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidStateTransition for any edge outside the
// lifecycle table.
func CheckTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return errors.Wrapf(ErrInvalidStateTransition, "%s -> %s", from, to)
	}
	return nil
}

// OccupiesSlot reports whether a booking in status s blocks re-booking its slot.
func (s Status) OccupiesSlot() bool {
	return s == StatusConfirmed
}
