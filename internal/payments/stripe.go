package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/services"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrInvalidSignature is returned for webhook payloads that fail signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNotConfigured is returned by every call when no provider credentials are set.
	ErrNotConfigured = errors.New("payment provider not configured")
)

// ProviderError wraps a failed provider call with the HTTP status the provider returned.
// StatusCode is zero when the request never got a response.
type ProviderError struct {
	Op         string
	StatusCode int
	Type       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stripe %s: %d %s: %v", e.Op, e.StatusCode, e.Type, e.Err)
	}
	return fmt.Sprintf("stripe %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later: network failures,
// rate limiting and provider-side errors.
func (e *ProviderError) Retryable() bool {
	if errors.Is(e.Err, ErrNotConfigured) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProviderError{Op: op, StatusCode: se.HTTPStatusCode, Type: string(se.Type), Err: err}
	}
	return &ProviderError{Op: op, Err: err}
}

// StripeProvider implements services.PaymentProvider on top of the Stripe API.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

// NewStripeProvider creates a provider authenticated with secretKey. webhookSecret is the
// endpoint signing secret used by ParseWebhook.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		client:        client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// methodType maps a payment method to a Stripe payment_method_types entry. Wallets are
// card payments on Stripe's side.
func methodType(m models.PaymentMethod) string {
	if m == models.MethodPayPal {
		return "paypal"
	}
	return "card"
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req services.IntentRequest) (*services.ProviderIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{methodType(req.Method)}),
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapError("create payment intent", err)
	}
	return toProviderIntent(pi), nil
}

func (p *StripeProvider) RetrieveIntent(ctx context.Context, intentID string) (*services.ProviderIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, wrapError("retrieve payment intent", err)
	}
	return toProviderIntent(pi), nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, req services.RefundRequest) (*services.ProviderRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderTransactionID),
		Amount:        stripe.Int64(req.Amount),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, wrapError("create refund", err)
	}
	return &services.ProviderRefund{ID: r.ID, Status: string(r.Status)}, nil
}

func toProviderIntent(pi *stripe.PaymentIntent) *services.ProviderIntent {
	status, reason := intentStatus(pi)
	return &services.ProviderIntent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		Status:        status,
		FailureReason: reason,
	}
}

// intentStatus collapses Stripe's intent lifecycle. A requires_payment_method intent that
// carries a last payment error is a failed attempt; without one it has not been attempted yet.
func intentStatus(pi *stripe.PaymentIntent) (services.IntentStatus, string) {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return services.IntentSucceeded, ""
	case stripe.PaymentIntentStatusProcessing:
		return services.IntentProcessing, ""
	case stripe.PaymentIntentStatusCanceled:
		return services.IntentCanceled, string(pi.CancellationReason)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return services.IntentFailed, lastErrorReason(pi.LastPaymentError)
		}
	}
	return services.IntentRequiresAction, ""
}

func lastErrorReason(e *stripe.Error) string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.DeclineCode != "":
		return string(e.DeclineCode)
	case e.Code != "":
		return string(e.Code)
	}
	return "payment failed"
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*services.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normalizeEvent(event)
}

func webhookType(t string) services.WebhookEventType {
	switch t {
	case "payment_intent.succeeded":
		return services.WebhookPaymentSucceeded
	case "payment_intent.payment_failed":
		return services.WebhookPaymentFailed
	case "payment_intent.canceled":
		return services.WebhookPaymentCanceled
	case "payment_intent.processing":
		return services.WebhookPaymentProcessing
	}
	return services.WebhookIgnored
}

func normalizeEvent(event stripe.Event) (*services.WebhookEvent, error) {
	out := &services.WebhookEvent{ID: event.ID, Type: webhookType(string(event.Type))}
	if out.Type == services.WebhookIgnored || event.Data == nil {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decoding payment intent from event %s: %w", event.ID, err)
	}
	out.IntentID = pi.ID
	out.Reference = pi.Metadata["reference"]
	return out, nil
}

// UnconfiguredProvider rejects every call. It lets the service run without payment
// credentials; ordering and menu endpoints keep working.
type UnconfiguredProvider struct{}

func (UnconfiguredProvider) CreateIntent(context.Context, services.IntentRequest) (*services.ProviderIntent, error) {
	return nil, &ProviderError{Op: "create payment intent", StatusCode: http.StatusNotImplemented, Err: ErrNotConfigured}
}

func (UnconfiguredProvider) RetrieveIntent(context.Context, string) (*services.ProviderIntent, error) {
	return nil, &ProviderError{Op: "retrieve payment intent", StatusCode: http.StatusNotImplemented, Err: ErrNotConfigured}
}

func (UnconfiguredProvider) CreateRefund(context.Context, services.RefundRequest) (*services.ProviderRefund, error) {
	return nil, &ProviderError{Op: "create refund", StatusCode: http.StatusNotImplemented, Err: ErrNotConfigured}
}

func (UnconfiguredProvider) ParseWebhook([]byte, string) (*services.WebhookEvent, error) {
	return nil, ErrNotConfigured
}

var (
	_ services.PaymentProvider = (*StripeProvider)(nil)
	_ services.PaymentProvider = UnconfiguredProvider{}
)
