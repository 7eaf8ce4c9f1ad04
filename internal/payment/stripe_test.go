package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

const testWebhookSecret = "whsec_test"

func signedStripeEvent(t *testing.T, body string) (payload []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestParseStripeEvent(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   Notification
		wantOK bool
	}{
		{
			name:   "completed and paid",
			body:   `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid","status":"complete"}}}`,
			want:   Notification{Event: "checkout.session.completed", PaymentID: "cs_1", Status: "succeeded"},
			wantOK: true,
		},
		{
			name:   "completed but unpaid",
			body:   `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid","status":"complete"}}}`,
			want:   Notification{Event: "checkout.session.completed", PaymentID: "cs_2", Status: "pending"},
			wantOK: true,
		},
		{
			name:   "expired",
			body:   `{"id":"evt_3","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_3","object":"checkout.session","status":"expired"}}}`,
			want:   Notification{Event: "checkout.session.expired", PaymentID: "cs_3", Status: "canceled"},
			wantOK: true,
		},
		{
			name: "unrelated event",
			body: `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signedStripeEvent(t, tt.body)
			got, ok, err := ParseStripeEvent(payload, header, testWebhookSecret)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseStripeEvent_BadSignature(t *testing.T) {
	payload, header := signedStripeEvent(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	_, _, err := ParseStripeEvent(payload, header, "whsec_other")
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func TestCheckoutPayment(t *testing.T) {
	assert.Equal(t, "succeeded", checkoutPayment(&stripe.CheckoutSession{ID: "cs", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}).Status)
	assert.Equal(t, "canceled", checkoutPayment(&stripe.CheckoutSession{ID: "cs", Status: stripe.CheckoutSessionStatusExpired}).Status)

	open := checkoutPayment(&stripe.CheckoutSession{ID: "cs", URL: "https://checkout.stripe.com/c/pay/cs", Status: stripe.CheckoutSessionStatusOpen})
	assert.Equal(t, "pending", open.Status)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs", open.ConfirmationURL)
}
