package domain

import "github.com/cockroachdb/errors"

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConflict               = errors.New("slot already booked")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrSignatureMismatch      = errors.New("payment signature mismatch")
	ErrInvalidStateTransition = errors.New("invalid booking state transition")
	ErrNotFound               = errors.New("not found")
)

// InvalidArgument returns an error of kind ErrInvalidArgument carrying msg verbatim.
func InvalidArgument(msg string) error {
	return errors.Mark(errors.New(msg), ErrInvalidArgument)
}

// Unavailable marks a store failure as ErrStorageUnavailable, keeping the cause.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrStorageUnavailable)
}
