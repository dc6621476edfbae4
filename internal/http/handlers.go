package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/settlement"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SlotIndex interface {
	Query(ctx context.Context, venueID, date string) (domain.Availability, error)
}

type Reserver interface {
	Reserve(ctx context.Context, req domain.ReservationRequest) (domain.Booking, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, orderID, paymentID, signature string) (settlement.Receipt, error)
}

type Lifecycle interface {
	Confirm(ctx context.Context, receipt settlement.Receipt) (domain.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Booking, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	Ping(ctx context.Context) error
}

// PaymentAudit records rejected payment callbacks. Optional.
type PaymentAudit interface {
	LogPaymentRejected(ctx context.Context, orderID, paymentID, reason string) error
}

type Handlers struct {
	slots     SlotIndex
	reserver  Reserver
	verifier  PaymentVerifier
	lifecycle Lifecycle
	bookings  BookingStore
	audit     PaymentAudit
	logger    observability.Logger
}

func NewHandlers(slots SlotIndex, reserver Reserver, verifier PaymentVerifier, lifecycle Lifecycle, bookings BookingStore, audit PaymentAudit, logger observability.Logger) *Handlers {
	return &Handlers{
		slots:     slots,
		reserver:  reserver,
		verifier:  verifier,
		lifecycle: lifecycle,
		bookings:  bookings,
		audit:     audit,
		logger:    logger,
	}
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	avail, err := h.slots.Query(r.Context(), chi.URLParam(r, "venueID"), r.URL.Query().Get("date"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, avail)
}

type createBookingRequest struct {
	VenueID     string     `json:"venue_id" validate:"required"`
	StartTime   *time.Time `json:"start_time" validate:"required"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	UserID      string     `json:"user_id" validate:"required"`
	Price       int64      `json:"price" validate:"gte=0"`
	Sport       string     `json:"sport" validate:"max=64"`
	PaymentMode string     `json:"payment_mode" validate:"required,oneof=ONLINE ON_SITE"`
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := readJSON(w, r, &req); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if err := Validate.Struct(req); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if sub := SubjectFrom(r.Context()); sub != "" && sub != req.UserID {
		_ = writeJSONError(w, http.StatusForbidden, "user_id does not match the authenticated user")
		return
	}

	booking, err := h.reserver.Reserve(r.Context(), domain.ReservationRequest{
		VenueID:     req.VenueID,
		StartTime:   *req.StartTime,
		EndTime:     req.EndTime,
		UserID:      req.UserID,
		Price:       req.Price,
		Sport:       req.Sport,
		PaymentMode: domain.PaymentMode(req.PaymentMode),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, booking)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature"`
}

type verifyPaymentResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Booking *domain.Booking `json:"booking,omitempty"`
}

// VerifyPayment authenticates a provider callback and, when it checks out,
// confirms the booking the order belongs to.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := readJSON(w, r, &req); err != nil {
		_ = writeJSON(w, http.StatusBadRequest, verifyPaymentResponse{Message: "malformed request body"})
		return
	}
	if err := Validate.Struct(req); err != nil {
		_ = writeJSON(w, http.StatusBadRequest, verifyPaymentResponse{Message: validationMessage(err)})
		return
	}

	receipt, err := h.verifier.Verify(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) && h.audit != nil {
			if auditErr := h.audit.LogPaymentRejected(r.Context(), req.OrderID, req.PaymentID, "signature_mismatch"); auditErr != nil {
				loggerFrom(r.Context(), h.logger).WithError(auditErr).Warn("audit payment rejection")
			}
		}
		h.respondPayment(w, r, err)
		return
	}

	booking, err := h.lifecycle.Confirm(r.Context(), receipt)
	if err != nil {
		h.respondPayment(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, verifyPaymentResponse{
		Success: true,
		Message: "payment verified, booking confirmed",
		Booking: &booking,
	})
}

func (h *Handlers) respondPayment(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	log := loggerFrom(r.Context(), h.logger).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("payment verification failed")
	} else {
		log.Info("payment verification rejected")
	}
	_ = writeJSON(w, status, verifyPaymentResponse{Message: msg})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	_ = writeJSON(w, http.StatusOK, booking)
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	// The body is optional.
	if err := readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		_ = writeJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if err := Validate.Struct(req); err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	booking, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}
	cancelled, err := h.lifecycle.Cancel(r.Context(), booking.ID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, cancelled)
}

// ownedBooking loads the booking named in the URL. Authenticated callers may
// only see their own bookings; others get a 404.
func (h *Handlers) ownedBooking(w http.ResponseWriter, r *http.Request) (domain.Booking, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = writeJSONError(w, http.StatusBadRequest, "invalid booking id")
		return domain.Booking{}, false
	}
	booking, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return domain.Booking{}, false
	}
	if sub := SubjectFrom(r.Context()); sub != "" && sub != booking.UserID {
		_ = writeJSONError(w, http.StatusNotFound, "not found")
		return domain.Booking{}, false
	}
	return booking, true
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.Ping(r.Context()); err != nil {
		loggerFrom(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
		_ = writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
