package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/models"

	"github.com/lib/pq"
)

// OrderRepository defines the interface for order-related database operations.
type OrderRepository interface {
	// Order methods
	CreateOrder(ctx context.Context, executor SQLExecutor, order *models.Order) (int64, error)
	GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error) // Basic order details
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	// LockOrderByID reads an order with SELECT ... FOR UPDATE inside the caller's transaction.
	LockOrderByID(ctx context.Context, executor SQLExecutor, orderID int64) (*models.Order, error)
	GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) // orders, total count, error
	UpdateOrderStatus(ctx context.Context, executor SQLExecutor, orderID int64, newStatus models.OrderStatus, reason *string, updatedAt time.Time) error
	CountActiveOrders(ctx context.Context, executor SQLExecutor) (int, error)

	// OrderItem methods
	CreateOrderItems(ctx context.Context, executor SQLExecutor, orderID int64, items []models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, customer_name, customer_phone, customer_email, order_type,
	delivery_street, delivery_city, delivery_postal_code, delivery_instructions,
	subtotal, tax, delivery_fee, total, status, estimated_ready_time, special_instructions,
	cancellation_reason, created_at, updated_at`

func scanOrder(s scanner, extra ...interface{}) (*models.Order, error) {
	o := &models.Order{}
	var street, city, postalCode, instructions sql.NullString
	dest := []interface{}{
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.OrderType,
		&street, &city, &postalCode, &instructions,
		&o.Subtotal, &o.Tax, &o.DeliveryFee, &o.Total, &o.Status, &o.EstimatedReadyTime, &o.SpecialInstructions,
		&o.CancellationReason, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if street.Valid {
		o.DeliveryAddress = &models.DeliveryAddress{
			Street:     street.String,
			City:       city.String,
			PostalCode: postalCode.String,
		}
		if instructions.Valid {
			text := instructions.String
			o.DeliveryAddress.Instructions = &text
		}
	}
	return o, nil
}

// --- Order Methods ---

func (r *orderRepository) CreateOrder(ctx context.Context, executor SQLExecutor, order *models.Order) (int64, error) {
	query := `INSERT INTO orders
	            (order_number, customer_name, customer_phone, customer_email, order_type,
	             delivery_street, delivery_city, delivery_postal_code, delivery_instructions,
	             subtotal, tax, delivery_fee, total, status, estimated_ready_time, special_instructions,
	             created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	          RETURNING id`

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	var street, city, postalCode, instructions *string
	if a := order.DeliveryAddress; a != nil {
		street, city, postalCode, instructions = &a.Street, &a.City, &a.PostalCode, a.Instructions
	}

	err := executor.QueryRowContext(ctx, query,
		order.OrderNumber, order.CustomerName, order.CustomerPhone, order.CustomerEmail, order.OrderType,
		street, city, postalCode, instructions,
		order.Subtotal, order.Tax, order.DeliveryFee, order.Total, order.Status, order.EstimatedReadyTime,
		order.SpecialInstructions, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return 0, classifyPQError(err, "creating order "+order.OrderNumber)
	}
	return order.ID, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order by ID %d: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order by number %s: %v", ErrDatabaseError, orderNumber, err)
	}
	return order, nil
}

func (r *orderRepository) LockOrderByID(ctx context.Context, executor SQLExecutor, orderID int64) (*models.Order, error) {
	order, err := scanOrder(executor.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: locking order %d: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	orders := []models.Order{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + orderColumns + `, COUNT(*) OVER() AS total_count FROM orders`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCounter))
		args = append(args, *filters.Status)
		argCounter++
	}
	if filters.OrderType != nil && *filters.OrderType != "" {
		conditions = append(conditions, fmt.Sprintf("order_type = $%d", argCounter))
		args = append(args, *filters.OrderType)
		argCounter++
	}
	if filters.CustomerPhone != nil && *filters.CustomerPhone != "" {
		conditions = append(conditions, fmt.Sprintf("customer_phone = $%d", argCounter))
		args = append(args, *filters.CustomerPhone)
		argCounter++
	}
	if filters.Date != nil && *filters.Date != "" {
		parsedDate, err := time.Parse("2006-01-02", *filters.Date)
		if err == nil {
			startOfDay := time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(), 0, 0, 0, 0, time.UTC)
			endOfDay := startOfDay.AddDate(0, 0, 1)
			conditions = append(conditions, fmt.Sprintf("created_at >= $%d AND created_at < $%d", argCounter, argCounter+1))
			args = append(args, startOfDay, endOfDay)
			argCounter += 2
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	filterArgs := append([]interface{}(nil), args...)
	queryBuilder.WriteString(where)
	queryBuilder.WriteString(" ORDER BY created_at DESC")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, filters.PageSize)
		argCounter++
		if filters.Page > 0 {
			queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
			args = append(args, (filters.Page-1)*filters.PageSize)
		}
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying orders: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning order: %v", ErrDatabaseError, err)
		}
		orders = append(orders, *o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating order rows: %v", ErrDatabaseError, err)
	}

	// A page past the end carries no window count.
	if len(orders) == 0 && filters.Page > 1 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, filterArgs...).Scan(&totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: counting orders: %v", ErrDatabaseError, err)
		}
	}
	return orders, totalCount, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, executor SQLExecutor, orderID int64, newStatus models.OrderStatus, reason *string, updatedAt time.Time) error {
	query := `UPDATE orders
	          SET status = $1, cancellation_reason = COALESCE($2, cancellation_reason), updated_at = $3
	          WHERE id = $4`
	result, err := executor.ExecContext(ctx, query, newStatus, reason, updatedAt, orderID)
	if err != nil {
		return fmt.Errorf("%w: updating order status for ID %d: %v", ErrDatabaseError, orderID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: getting rows affected for order status update ID %d: %v", ErrDatabaseError, orderID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepository) CountActiveOrders(ctx context.Context, executor SQLExecutor) (int, error) {
	statuses := make([]string, len(models.ActiveQueueStatuses))
	for i, s := range models.ActiveQueueStatuses {
		statuses[i] = string(s)
	}
	var count int
	err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = ANY($1)`, pq.Array(statuses)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting active orders: %v", ErrDatabaseError, err)
	}
	return count, nil
}

// --- OrderItem Methods ---

// CreateOrderItems inserts all items of an order with one multi-row INSERT.
func (r *orderRepository) CreateOrderItems(ctx context.Context, executor SQLExecutor, orderID int64, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`INSERT INTO order_items
	    (order_id, menu_item_id, menu_item_name, quantity, unit_price, subtotal, customizations, created_at)
	    VALUES `)

	const cols = 8
	now := time.Now().UTC()
	args := make([]interface{}, 0, len(items)*cols)
	for i := range items {
		if i > 0 {
			queryBuilder.WriteString(", ")
		}
		base := i * cols
		queryBuilder.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		item := &items[i]
		item.OrderID = orderID
		item.CreatedAt = now
		args = append(args, orderID, item.MenuItemID, item.MenuItemName, item.Quantity, item.UnitPrice,
			item.Subtotal, pq.Array(item.Customizations), now)
	}
	queryBuilder.WriteString(" RETURNING id")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return classifyPQError(err, fmt.Sprintf("creating items for order %d", orderID))
	}
	defer rows.Close()

	// RETURNING preserves VALUES order for a single INSERT statement.
	i := 0
	for rows.Next() {
		if i >= len(items) {
			break
		}
		if err := rows.Scan(&items[i].ID); err != nil {
			return fmt.Errorf("%w: scanning order item id: %v", ErrDatabaseError, err)
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return classifyPQError(err, fmt.Sprintf("creating items for order %d", orderID))
	}
	return nil
}

func (r *orderRepository) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	query := `
		SELECT id, order_id, menu_item_id, menu_item_name, quantity, unit_price, subtotal, customizations, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying order items for order ID %d: %v", ErrDatabaseError, orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.MenuItemID, &item.MenuItemName, &item.Quantity, &item.UnitPrice,
			&item.Subtotal, pq.Array(&item.Customizations), &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning order item for order ID %d: %v", ErrDatabaseError, orderID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order item rows for order ID %d: %v", ErrDatabaseError, orderID, err)
	}
	return items, nil
}
