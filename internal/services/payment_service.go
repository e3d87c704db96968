package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/repositories"
	"restaurant_ordering_backend/pkg/utils"
)

// CreatePaymentIntentRequest opens a provider payment for an order.
type CreatePaymentIntentRequest struct {
	OrderID       int64                `json:"order_id" binding:"required"`
	Amount        int64                `json:"amount" binding:"required,gt=0"`
	Currency      string               `json:"currency"`
	Method        models.PaymentMethod `json:"payment_method" binding:"required"`
	CustomerEmail *string              `json:"customer_email"`
}

// PaymentIntentResult is returned to the client so it can complete the payment with the provider.
type PaymentIntentResult struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// PaymentConfig holds provider-facing settings.
type PaymentConfig struct {
	Currency        string
	ProviderTimeout time.Duration
}

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, req CreatePaymentIntentRequest) (*PaymentIntentResult, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Payment, error)
	RefundPayment(ctx context.Context, paymentID int64) (*models.Payment, error)
	GetPaymentStats(ctx context.Context) (*models.PaymentStats, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	// HandleWebhook applies a verified provider event. It returns nil, nil for duplicate or
	// irrelevant events.
	HandleWebhook(ctx context.Context, event WebhookEvent) (*models.Payment, error)
}

type paymentService struct {
	paymentRepo repositories.PaymentRepository
	orderRepo   repositories.OrderRepository
	orders      OrderService
	tx          repositories.Transactor
	provider    PaymentProvider
	dedup       EventDeduplicator
	cfg         PaymentConfig
	now         func() time.Time
}

// NewPaymentService creates a new instance of PaymentService. dedup may be nil.
func NewPaymentService(
	pr repositories.PaymentRepository,
	or repositories.OrderRepository,
	orders OrderService,
	tx repositories.Transactor,
	provider PaymentProvider,
	dedup EventDeduplicator,
	cfg PaymentConfig,
) PaymentService {
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	return &paymentService{
		paymentRepo: pr,
		orderRepo:   or,
		orders:      orders,
		tx:          tx,
		provider:    provider,
		dedup:       dedup,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, req CreatePaymentIntentRequest) (*PaymentIntentResult, error) {
	if !req.Method.IsValid() {
		return nil, validationError("unknown payment method %q", req.Method)
	}
	if req.Method == models.MethodCash {
		return nil, ErrCashNotSupported
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	if currency != s.cfg.Currency {
		return nil, validationError("currency must be %s", s.cfg.Currency)
	}
	email := strings.TrimSpace(derefString(req.CustomerEmail))
	if email != "" && !utils.IsValidEmail(email) {
		return nil, validationError("customer email is invalid")
	}

	// The order row lock serializes intent creation per order, so two requests cannot both
	// pass the open-payment check.
	var (
		order   *models.Order
		payment *models.Payment
	)
	err := s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		order, err = s.orderRepo.LockOrderByID(ctx, exec, req.OrderID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status != models.OrderPending {
			return withDetail(ErrOrderNotPayable, "order %s is %s", order.OrderNumber, order.Status)
		}
		if req.Amount != order.Total {
			return withDetail(ErrPaymentAmountMismatch, "requested %d, order total %d", req.Amount, order.Total)
		}
		existing, err := s.paymentRepo.ListByOrderID(ctx, exec, order.ID)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.Status == models.PaymentProcessing || p.Status == models.PaymentCompleted {
				return withDetail(ErrPaymentInProgress, "payment %s is %s", p.Reference, p.Status)
			}
		}

		payment = &models.Payment{
			OrderID:   order.ID,
			Amount:    order.Total,
			Currency:  currency,
			Method:    req.Method,
			Status:    models.PaymentPending,
			Reference: models.GeneratePaymentReference(s.now()),
			Metadata: map[string]string{
				"orderNumber":  order.OrderNumber,
				"customerName": order.CustomerName,
			},
		}
		_, err = s.paymentRepo.Create(ctx, exec, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	if email == "" && order.CustomerEmail != nil {
		email = *order.CustomerEmail
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	intent, err := s.provider.CreateIntent(callCtx, IntentRequest{
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.Method,
		CustomerEmail: email,
		Metadata: map[string]string{
			"orderId":      utils.Int64ToStr(order.ID),
			"orderNumber":  order.OrderNumber,
			"reference":    payment.Reference,
			"customerName": order.CustomerName,
		},
		IdempotencyKey: payment.Reference,
	})
	if err != nil {
		utils.LogError(err, "Payment provider rejected intent creation", map[string]interface{}{
			"order_id": order.ID, "reference": payment.Reference,
		})
		return nil, providerError("create intent", err)
	}

	payment.TransactionID = &intent.ID
	payment.Metadata["paymentIntentId"] = intent.ID
	err = s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		return s.paymentRepo.Update(ctx, exec, payment)
	})
	if err != nil {
		return nil, fmt.Errorf("storing intent %s for payment %s: %w", intent.ID, payment.Reference, err)
	}

	utils.LogInfo("Payment intent created", map[string]interface{}{
		"order_id": order.ID, "reference": payment.Reference, "intent_id": intent.ID,
	})
	return &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Reference:       payment.Reference,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
	}, nil
}

// statusFromIntent maps provider state onto a payment status. An empty status means no change.
func statusFromIntent(intent *ProviderIntent) (models.PaymentStatus, string) {
	switch intent.Status {
	case IntentSucceeded:
		return models.PaymentCompleted, ""
	case IntentProcessing:
		return models.PaymentProcessing, ""
	case IntentFailed:
		reason := intent.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		return models.PaymentFailed, reason
	case IntentCanceled:
		reason := intent.FailureReason
		if reason == "" {
			reason = "payment canceled"
		}
		return models.PaymentFailed, reason
	}
	return "", ""
}

func (s *paymentService) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, validationError("payment reference is required")
	}
	payment, err := s.paymentRepo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, reference string) (*models.Payment, error) {
	payment, err := s.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentCompleted || payment.Status == models.PaymentRefunded {
		return payment, nil
	}
	if payment.TransactionID == nil {
		return payment, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	intent, err := s.provider.RetrieveIntent(callCtx, *payment.TransactionID)
	if err != nil {
		utils.LogError(err, "Payment provider lookup failed", map[string]interface{}{"reference": payment.Reference})
		return nil, providerError("retrieve intent", err)
	}

	next, reason := statusFromIntent(intent)
	if next == "" || next == payment.Status {
		return payment, nil
	}

	var result *models.Payment
	err = s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.paymentRepo.LockByID(ctx, exec, payment.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		// A concurrent verification may already have settled the payment.
		if locked.Status == models.PaymentCompleted || locked.Status == models.PaymentRefunded || locked.Status == next {
			result = locked
			return nil
		}
		from := locked.Status
		locked.Status = next
		if reason != "" {
			locked.FailureReason = &reason
		} else {
			locked.FailureReason = nil
		}
		if err := s.paymentRepo.Update(ctx, exec, locked); err != nil {
			return err
		}
		if next == models.PaymentCompleted {
			confirmed, err := s.orders.ConfirmPaidOrder(ctx, exec, locked.OrderID)
			if err != nil {
				return err
			}
			if !confirmed {
				if err := s.flagLateCapture(ctx, exec, locked); err != nil {
					return err
				}
			}
		}
		utils.LogInfo("Payment status changed", map[string]interface{}{
			"reference": locked.Reference, "from": from, "to": next,
		})
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// flagLateCapture records a payment that settled after its order had already left PENDING,
// either through another payment or a cancellation. Such money must be refunded by hand.
func (s *paymentService) flagLateCapture(ctx context.Context, exec repositories.SQLExecutor, payment *models.Payment) error {
	others, err := s.paymentRepo.ListByOrderID(ctx, exec, payment.OrderID)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"order_id": payment.OrderID, "reference": payment.Reference}
	if payment.Metadata == nil {
		payment.Metadata = map[string]string{}
	}
	payment.Metadata["requiresRefund"] = "true"
	for _, other := range others {
		if other.ID != payment.ID && other.Status == models.PaymentCompleted {
			payment.Metadata["duplicateOf"] = other.Reference
			fields["duplicate_of"] = other.Reference
			break
		}
	}
	utils.LogError(ErrOrderNotPayable, "Payment completed for an order that is no longer pending", fields)
	return s.paymentRepo.Update(ctx, exec, payment)
}

func (s *paymentService) RefundPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != models.PaymentCompleted {
		return nil, withDetail(ErrRefundNotAllowed, "payment %s is %s", payment.Reference, payment.Status)
	}
	if payment.TransactionID == nil {
		return nil, withDetail(ErrRefundNotAllowed, "payment %s has no provider transaction", payment.Reference)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	refund, err := s.provider.CreateRefund(callCtx, RefundRequest{
		ProviderTransactionID: *payment.TransactionID,
		Amount:                payment.Amount,
		Metadata: map[string]string{
			"orderId":   utils.Int64ToStr(payment.OrderID),
			"reference": payment.Reference,
		},
		IdempotencyKey: "refund-" + payment.Reference,
	})
	if err != nil {
		utils.LogError(err, "Payment provider refund failed", map[string]interface{}{"reference": payment.Reference})
		return nil, providerError("create refund", err)
	}

	var result *models.Payment
	err = s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.paymentRepo.LockByID(ctx, exec, paymentID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if locked.Status != models.PaymentCompleted {
			result = locked
			return nil
		}
		locked.Status = models.PaymentRefunded
		locked.RefundID = &refund.ID
		if err := s.paymentRepo.Update(ctx, exec, locked); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.LogInfo("Payment refunded", map[string]interface{}{"reference": result.Reference, "refund_id": refund.ID})
	return result, nil
}

func (s *paymentService) GetPaymentStats(ctx context.Context) (*models.PaymentStats, error) {
	return s.paymentRepo.GetStats(ctx)
}

func (s *paymentService) HandleWebhook(ctx context.Context, event WebhookEvent) (*models.Payment, error) {
	switch event.Type {
	case WebhookPaymentSucceeded, WebhookPaymentFailed, WebhookPaymentCanceled, WebhookPaymentProcessing:
	default:
		utils.LogDebug("Ignoring webhook event", map[string]interface{}{"event_id": event.ID})
		return nil, nil
	}

	key := "webhook:" + event.ID
	if s.dedup != nil && event.ID != "" {
		seen, err := s.dedup.Seen(ctx, key)
		if err != nil {
			// Verification is idempotent, so a broken store only costs an extra provider call.
			utils.LogWarn("Webhook de-duplication unavailable", map[string]interface{}{"error": err.Error()})
		} else if seen {
			utils.LogDebug("Duplicate webhook event", map[string]interface{}{"event_id": event.ID})
			return nil, nil
		}
	}

	payment, err := s.applyWebhook(ctx, event)
	if err != nil && s.dedup != nil && event.ID != "" {
		if relErr := s.dedup.Release(ctx, key); relErr != nil {
			utils.LogWarn("Failed to release webhook key", map[string]interface{}{"error": relErr.Error()})
		}
	}
	return payment, err
}

func (s *paymentService) applyWebhook(ctx context.Context, event WebhookEvent) (*models.Payment, error) {
	reference := event.Reference
	if reference == "" {
		if event.IntentID == "" {
			return nil, validationError("webhook event %s has no payment reference", event.ID)
		}
		payment, err := s.paymentRepo.GetByTransactionID(ctx, event.IntentID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, ErrPaymentNotFound
			}
			return nil, err
		}
		reference = payment.Reference
	} else if event.IntentID != "" {
		if err := s.attachIntent(ctx, reference, event.IntentID); err != nil {
			return nil, err
		}
	}
	return s.VerifyPayment(ctx, reference)
}

// attachIntent stores the provider intent on a payment whose intent id was never recorded,
// which happens when the provider accepted the intent but the creation response was lost.
func (s *paymentService) attachIntent(ctx context.Context, reference, intentID string) error {
	return s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		payment, err := s.paymentRepo.LockByReference(ctx, exec, reference)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if payment.TransactionID != nil {
			return nil
		}
		payment.TransactionID = &intentID
		if payment.Metadata == nil {
			payment.Metadata = map[string]string{}
		}
		payment.Metadata["paymentIntentId"] = intentID
		utils.LogInfo("Attached provider intent from webhook", map[string]interface{}{
			"reference": reference, "intent_id": intentID,
		})
		return s.paymentRepo.Update(ctx, exec, payment)
	})
}
