package services

import (
	"context"

	"restaurant_ordering_backend/internal/models"
)

// IntentStatus is the provider-agnostic state of a payment intent.
type IntentStatus string

const (
	IntentRequiresAction IntentStatus = "requires_action"
	IntentProcessing     IntentStatus = "processing"
	IntentSucceeded      IntentStatus = "succeeded"
	IntentFailed         IntentStatus = "failed"
	IntentCanceled       IntentStatus = "canceled"
)

// IntentRequest is sent to the provider to open a payment intent.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Method         models.PaymentMethod
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// ProviderIntent is the provider's view of a payment intent.
type ProviderIntent struct {
	ID            string
	ClientSecret  string
	Status        IntentStatus
	FailureReason string
}

// RefundRequest refunds a settled provider transaction.
type RefundRequest struct {
	ProviderTransactionID string
	Amount                int64
	Metadata              map[string]string
	IdempotencyKey        string
}

// ProviderRefund is the provider's view of a refund.
type ProviderRefund struct {
	ID     string
	Status string
}

// PaymentProvider is the external payment processor.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*ProviderIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*ProviderIntent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*ProviderRefund, error)
}

// WebhookEventType is the normalized kind of a provider webhook.
type WebhookEventType string

const (
	WebhookPaymentSucceeded  WebhookEventType = "payment.succeeded"
	WebhookPaymentFailed     WebhookEventType = "payment.failed"
	WebhookPaymentCanceled   WebhookEventType = "payment.canceled"
	WebhookPaymentProcessing WebhookEventType = "payment.processing"
	WebhookIgnored           WebhookEventType = "ignored"
)

// WebhookEvent is a signature-verified provider notification.
type WebhookEvent struct {
	ID        string
	Type      WebhookEventType
	IntentID  string
	Reference string // payment reference recovered from intent metadata, may be empty
}

// EventDeduplicator remembers processed webhook event ids.
type EventDeduplicator interface {
	// Seen marks key as processed and reports whether it had already been marked.
	Seen(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed event can be processed again on redelivery.
	Release(ctx context.Context, key string) error
}

// MenuCache caches the public (available) menu.
type MenuCache interface {
	GetMenu(ctx context.Context) ([]models.MenuItem, bool, error)
	SetMenu(ctx context.Context, items []models.MenuItem) error
	Invalidate(ctx context.Context) error
}
