package settlement_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/domain"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/settlement"
)

const secret = "test-webhook-secret"

func expectedSignature() string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("order_1|pay_1"))
	return hex.EncodeToString(mac.Sum(nil))
}

func newVerifier(key string) (*settlement.Verifier, *test.Hook) {
	base, hook := test.NewNullLogger()
	return settlement.NewVerifier(key, observability.NewLogrusLogger(base)), hook
}

func TestVerify_AcceptsHexHMAC(t *testing.T) {
	v, _ := newVerifier(secret)
	sig := expectedSignature()
	assert.Equal(t, sig, settlement.Sign([]byte(secret), "order_1", "pay_1"))
	assert.Equal(t, strings.ToLower(sig), sig)

	receipt, err := v.Verify(context.Background(), "order_1", "pay_1", sig)
	require.NoError(t, err)
	assert.Equal(t, settlement.Verified, receipt.Outcome)
	assert.True(t, receipt.Valid())
	assert.Equal(t, "order_1", receipt.OrderID)
	assert.Equal(t, "pay_1", receipt.PaymentID)
}

func TestVerify_AnySingleCharacterMutationIsRejected(t *testing.T) {
	v, _ := newVerifier(secret)
	sig := expectedSignature()

	for i := range sig {
		replacement := byte('0')
		if sig[i] == '0' {
			replacement = '1'
		}
		mutated := sig[:i] + string(replacement) + sig[i+1:]
		t.Run(fmt.Sprintf("position_%d", i), func(t *testing.T) {
			receipt, err := v.Verify(context.Background(), "order_1", "pay_1", mutated)
			assert.True(t, errors.Is(err, domain.ErrSignatureMismatch), "got %v", err)
			assert.False(t, receipt.Valid())
		})
	}
}

func TestVerify_UppercaseAndTruncatedSignaturesAreRejected(t *testing.T) {
	v, _ := newVerifier(secret)
	sig := expectedSignature()

	for _, bad := range []string{strings.ToUpper(sig), sig[:len(sig)-1], sig + "0", ""} {
		_, err := v.Verify(context.Background(), "order_1", "pay_1", bad)
		assert.True(t, errors.Is(err, domain.ErrSignatureMismatch), "signature %q", bad)
	}
}

func TestVerify_MismatchLoggedAsErrorWithoutSecret(t *testing.T) {
	v, hook := newVerifier(secret)

	_, err := v.Verify(context.Background(), "order_1", "pay_1", "deadbeef")
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	for _, e := range hook.AllEntries() {
		line, _ := e.String()
		assert.NotContains(t, line, secret)
	}
	assert.NotContains(t, err.Error(), secret)
}

func TestVerify_DemoBypassIsDistinguishable(t *testing.T) {
	v, hook := newVerifier("")
	require.True(t, v.DemoMode())

	receipt, err := v.Verify(context.Background(), "order_1", "pay_1", "anything")
	require.NoError(t, err)
	assert.Equal(t, settlement.DemoBypass, receipt.Outcome)
	assert.True(t, receipt.Valid())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "demo_bypass", entry.Data["verification_mode"])
}

func TestVerify_MissingIdentifiers(t *testing.T) {
	v, _ := newVerifier(secret)

	_, err := v.Verify(context.Background(), "", "pay_1", expectedSignature())
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = v.Verify(context.Background(), "order_1", " ", expectedSignature())
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestReceipt_ZeroValueIsInvalid(t *testing.T) {
	assert.False(t, settlement.Receipt{}.Valid())
	assert.False(t, settlement.Receipt{OrderID: "order_1", PaymentID: "pay_1", Outcome: settlement.Verified}.Valid())
}
