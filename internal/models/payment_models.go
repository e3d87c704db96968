package models

import "time"

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCard      PaymentMethod = "CARD"
	MethodApplePay  PaymentMethod = "APPLE_PAY"
	MethodGooglePay PaymentMethod = "GOOGLE_PAY"
	MethodPayPal    PaymentMethod = "PAYPAL"
	MethodCash      PaymentMethod = "CASH"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodApplePay, MethodGooglePay, MethodPayPal, MethodCash:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of a payment attempt.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

// Payment is one payment attempt for an order. Failed attempts accumulate; at most one
// attempt per order is expected to reach COMPLETED.
type Payment struct {
	ID            int64             `json:"id"`
	OrderID       int64             `json:"order_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        PaymentMethod     `json:"method"`
	Status        PaymentStatus     `json:"status"`
	TransactionID *string           `json:"transaction_id,omitempty"`
	Reference     string            `json:"reference"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	RefundID      *string           `json:"refund_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PaymentStats aggregates the payments table for the back-office dashboard.
type PaymentStats struct {
	TotalPayments             int64                   `json:"total_payments"`
	TotalRevenue              int64                   `json:"total_revenue"`
	SuccessfulPayments        int64                   `json:"successful_payments"`
	FailedPayments            int64                   `json:"failed_payments"`
	RefundedAmount            int64                   `json:"refunded_amount"`
	PaymentMethodDistribution map[PaymentMethod]int64 `json:"payment_method_distribution"`
}
