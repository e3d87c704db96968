package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/services"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

func TestIntentStatus(t *testing.T) {
	tests := []struct {
		name       string
		intent     stripe.PaymentIntent
		wantStatus services.IntentStatus
		wantReason string
	}{
		{"succeeded", stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}, services.IntentSucceeded, ""},
		{"processing", stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing}, services.IntentProcessing, ""},
		{"canceled", stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled, CancellationReason: "abandoned"}, services.IntentCanceled, "abandoned"},
		{"not yet attempted", stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, services.IntentRequiresAction, ""},
		{
			"declined",
			stripe.PaymentIntent{
				Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
			},
			services.IntentFailed, "Your card was declined.",
		},
		{
			"declined without message",
			stripe.PaymentIntent{
				Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{DeclineCode: "insufficient_funds"},
			},
			services.IntentFailed, "insufficient_funds",
		},
		{"requires action", stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresAction}, services.IntentRequiresAction, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := intentStatus(&tt.intent)
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("intentStatus() = %s, %q; want %s, %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestMethodType(t *testing.T) {
	tests := map[models.PaymentMethod]string{
		models.MethodCard:      "card",
		models.MethodApplePay:  "card",
		models.MethodGooglePay: "card",
		models.MethodPayPal:    "paypal",
	}
	for method, want := range tests {
		if got := methodType(method); got != want {
			t.Errorf("methodType(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("connection reset"), true},
		{"rate limited", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &stripe.Error{HTTPStatusCode: http.StatusBadGateway}, true},
		{"card error", &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard}, false},
		{"bad request", &stripe.Error{HTTPStatusCode: http.StatusBadRequest}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapError("op", tt.err)
			var pe *ProviderError
			if !errors.As(wrapped, &pe) {
				t.Fatalf("wrapError() returned %T", wrapped)
			}
			if pe.Retryable() != tt.want {
				t.Errorf("Retryable() = %v, want %v", pe.Retryable(), tt.want)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Error("cause not unwrapped")
			}
		})
	}
}

func TestUnconfiguredProviderIsTerminal(t *testing.T) {
	_, err := UnconfiguredProvider{}.CreateIntent(context.Background(), services.IntentRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Retryable() {
		t.Error("unconfigured provider error must not be retryable")
	}
}

const testWebhookSecret = "whsec_test_secret"

func signedPayload(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

func TestParseWebhook(t *testing.T) {
	provider := NewStripeProvider("sk_test_unused", testWebhookSecret)
	body, header := signedPayload(t, `{
		"id": "evt_123",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"status": "succeeded",
			"metadata": {"reference": "PAY-1700000000000-ABC123", "orderId": "7"}
		}}
	}`)

	event, err := provider.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	want := services.WebhookEvent{
		ID: "evt_123", Type: services.WebhookPaymentSucceeded, IntentID: "pi_123", Reference: "PAY-1700000000000-ABC123",
	}
	if *event != want {
		t.Errorf("event = %+v, want %+v", *event, want)
	}
}

func TestParseWebhook_IgnoredAndInvalid(t *testing.T) {
	provider := NewStripeProvider("sk_test_unused", testWebhookSecret)

	body, header := signedPayload(t, `{"id": "evt_9", "object": "event", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)
	event, err := provider.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.Type != services.WebhookIgnored {
		t.Errorf("type = %s, want ignored", event.Type)
	}

	if _, err := provider.ParseWebhook(body, "t=1,v1=deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered signature error = %v, want ErrInvalidSignature", err)
	}
}
