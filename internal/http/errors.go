package http

import (
	"net/http"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/cockroachdb/errors"
)

// statusFor maps an error kind to its HTTP status and the message safe to
// show the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, clientMessage(err)
	case errors.Is(err, domain.ErrSignatureMismatch):
		return http.StatusBadRequest, "payment signature verification failed"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, clientMessage(err)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// clientMessage strips wrapping context so only the innermost message of an
// argument or conflict error reaches the client.
func clientMessage(err error) string {
	return errors.UnwrapAll(err).Error()
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	log := loggerFrom(r.Context(), h.logger).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	_ = writeJSONError(w, status, msg)
}
