package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restaurant_ordering_backend/internal/models"
)

// PaymentRepository defines the interface for payment-related database operations.
type PaymentRepository interface {
	Create(ctx context.Context, executor SQLExecutor, payment *models.Payment) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListByOrderID(ctx context.Context, executor SQLExecutor, orderID int64) ([]models.Payment, error)
	// LockByID and LockByReference read with SELECT ... FOR UPDATE inside the caller's transaction.
	LockByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Payment, error)
	LockByReference(ctx context.Context, executor SQLExecutor, reference string) (*models.Payment, error)
	Update(ctx context.Context, executor SQLExecutor, payment *models.Payment) error
	GetStats(ctx context.Context) (*models.PaymentStats, error)
}

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a new instance of PaymentRepository.
func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, order_id, amount, currency, method, status, transaction_id, reference,
	metadata, failure_reason, refund_id, created_at, updated_at`

func scanPayment(s scanner) (*models.Payment, error) {
	p := &models.Payment{}
	var metadata []byte
	err := s.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Method, &p.Status, &p.TransactionID, &p.Reference,
		&metadata, &p.FailureReason, &p.RefundID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decoding payment metadata: %w", err)
		}
	}
	return p, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func (r *paymentRepository) getOne(ctx context.Context, executor SQLExecutor, where string, arg interface{}, action string) (*models.Payment, error) {
	payment, err := scanPayment(executor.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDatabaseError, action, err)
	}
	return payment, nil
}

func (r *paymentRepository) Create(ctx context.Context, executor SQLExecutor, payment *models.Payment) (int64, error) {
	query := `INSERT INTO payments
	            (order_id, amount, currency, method, status, transaction_id, reference, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id`
	metadata, err := marshalMetadata(payment.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encoding payment metadata: %w", err)
	}
	now := time.Now().UTC()
	err = executor.QueryRowContext(ctx, query,
		payment.OrderID, payment.Amount, payment.Currency, payment.Method, payment.Status,
		payment.TransactionID, payment.Reference, metadata, now, now,
	).Scan(&payment.ID)
	if err != nil {
		return 0, classifyPQError(err, "creating payment "+payment.Reference)
	}
	payment.CreatedAt, payment.UpdatedAt = now, now
	return payment.ID, nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.getOne(ctx, r.db, "id = $1", id, fmt.Sprintf("getting payment by ID %d", id))
}

func (r *paymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.getOne(ctx, r.db, "reference = $1", reference, "getting payment by reference "+reference)
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.getOne(ctx, r.db, "transaction_id = $1", transactionID, "getting payment by transaction "+transactionID)
}

func (r *paymentRepository) LockByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Payment, error) {
	return r.getOne(ctx, executor, "id = $1 FOR UPDATE", id, fmt.Sprintf("locking payment %d", id))
}

func (r *paymentRepository) LockByReference(ctx context.Context, executor SQLExecutor, reference string) (*models.Payment, error) {
	return r.getOne(ctx, executor, "reference = $1 FOR UPDATE", reference, "locking payment "+reference)
}

func (r *paymentRepository) ListByOrderID(ctx context.Context, executor SQLExecutor, orderID int64) ([]models.Payment, error) {
	payments := []models.Payment{}
	rows, err := executor.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying payments for order %d: %v", ErrDatabaseError, orderID, err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning payment: %v", ErrDatabaseError, err)
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating payments: %v", ErrDatabaseError, err)
	}
	return payments, nil
}

func (r *paymentRepository) Update(ctx context.Context, executor SQLExecutor, payment *models.Payment) error {
	query := `UPDATE payments
	          SET status = $1, transaction_id = $2, metadata = $3, failure_reason = $4, refund_id = $5, updated_at = $6
	          WHERE id = $7`
	metadata, err := marshalMetadata(payment.Metadata)
	if err != nil {
		return fmt.Errorf("encoding payment metadata: %w", err)
	}
	now := time.Now().UTC()
	result, err := executor.ExecContext(ctx, query,
		payment.Status, payment.TransactionID, metadata, payment.FailureReason, payment.RefundID, now, payment.ID,
	)
	if err != nil {
		return classifyPQError(err, fmt.Sprintf("updating payment %d", payment.ID))
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	payment.UpdatedAt = now
	return nil
}

func (r *paymentRepository) GetStats(ctx context.Context) (*models.PaymentStats, error) {
	stats := &models.PaymentStats{PaymentMethodDistribution: map[models.PaymentMethod]int64{}}

	query := `SELECT
	            COUNT(*),
	            COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0),
	            COUNT(*) FILTER (WHERE status = 'COMPLETED'),
	            COUNT(*) FILTER (WHERE status = 'FAILED'),
	            COALESCE(SUM(amount) FILTER (WHERE status = 'REFUNDED'), 0)
	          FROM payments`
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalPayments, &stats.TotalRevenue, &stats.SuccessfulPayments, &stats.FailedPayments, &stats.RefundedAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregating payments: %v", ErrDatabaseError, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT method, COUNT(*) FROM payments GROUP BY method`)
	if err != nil {
		return nil, fmt.Errorf("%w: grouping payments by method: %v", ErrDatabaseError, err)
	}
	defer rows.Close()
	for rows.Next() {
		var method models.PaymentMethod
		var count int64
		if err := rows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("%w: scanning payment method distribution: %v", ErrDatabaseError, err)
		}
		stats.PaymentMethodDistribution[method] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating payment method distribution: %v", ErrDatabaseError, err)
	}
	return stats, nil
}
