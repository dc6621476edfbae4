// Package settlement authenticates payment provider callbacks. It never
// touches booking state; a successful check yields a Receipt that the
// lifecycle package requires before it confirms anything.
package settlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Outcome string

const (
	Verified   Outcome = "verified"
	DemoBypass Outcome = "demo_bypass"
)

// Receipt proves that a callback for OrderID passed Verify. Only this package
// can produce a valid one.
type Receipt struct {
	OrderID   string
	PaymentID string
	Outcome   Outcome
	issued    bool
}

func (r Receipt) Valid() bool {
	return r.issued && r.OrderID != "" && r.PaymentID != ""
}

type Verifier struct {
	secret []byte
	logger observability.Logger
}

// NewVerifier returns a verifier keyed by secret. An empty secret puts the
// verifier in demo mode, where every callback is accepted as DemoBypass.
func NewVerifier(secret string, logger observability.Logger) *Verifier {
	v := &Verifier{logger: logger.WithField("component", "settlement")}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

func (v *Verifier) DemoMode() bool {
	return len(v.secret) == 0
}

// Verify checks signature against the lowercase hex HMAC-SHA256 of
// orderID + "|" + paymentID.
func (v *Verifier) Verify(ctx context.Context, orderID, paymentID, signature string) (Receipt, error) {
	_, span := otel.Tracer("settlement").Start(ctx, "settlement.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.order_id", orderID))

	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	if orderID == "" || paymentID == "" {
		span.SetStatus(codes.Error, "missing identifiers")
		return Receipt{}, domain.InvalidArgument("order_id and payment_id are required")
	}

	log := v.logger.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"payment_id": paymentID,
	})

	if v.DemoMode() {
		observability.PaymentVerificationsTotal.WithLabelValues(string(DemoBypass)).Inc()
		span.SetAttributes(attribute.String("payment.verification_mode", string(DemoBypass)))
		log.WithField("verification_mode", string(DemoBypass)).
			Warn("payment signature not checked: no webhook secret configured")
		return Receipt{OrderID: orderID, PaymentID: paymentID, Outcome: DemoBypass, issued: true}, nil
	}

	expected := Sign(v.secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		observability.PaymentVerificationsTotal.WithLabelValues("signature_mismatch").Inc()
		span.SetStatus(codes.Error, "signature mismatch")
		log.WithField("verification_mode", string(Verified)).Error("payment signature mismatch")
		return Receipt{}, errors.Wrapf(domain.ErrSignatureMismatch, "order %s", orderID)
	}

	observability.PaymentVerificationsTotal.WithLabelValues(string(Verified)).Inc()
	span.SetAttributes(attribute.String("payment.verification_mode", string(Verified)))
	log.WithField("verification_mode", string(Verified)).Info("payment signature verified")
	return Receipt{OrderID: orderID, PaymentID: paymentID, Outcome: Verified, issued: true}, nil
}

// Sign computes the signature a provider sends for the given order and payment.
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
