package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/pricing"
	"restaurant_ordering_backend/internal/repositories"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

const maxOrderNumberAttempts = 3

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var dateFilterPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// --- Data Transfer Objects (DTOs) ---

// CreateOrderItemRequest is one cart line of a new order.
type CreateOrderItemRequest struct {
	MenuItemID     int64    `json:"menu_item_id" binding:"required"`
	Quantity       int      `json:"quantity" binding:"required,min=1,max=10"`
	Customizations []string `json:"customizations"`
}

// CreateOrderRequest is used for placing a new order.
type CreateOrderRequest struct {
	Customer            models.CustomerInfo      `json:"customer" binding:"required"`
	OrderType           models.OrderType         `json:"order_type" binding:"required"`
	DeliveryAddress     *models.DeliveryAddress  `json:"delivery_address"`
	Items               []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	SpecialInstructions *string                  `json:"special_instructions"`
}

// UpdateOrderStatusRequest is used for updating the status of an order.
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// CancelOrderRequest carries an optional cancellation reason. Phone is required when a
// customer cancels through the public tracking endpoint.
type CancelOrderRequest struct {
	Reason *string `json:"reason"`
	Phone  string  `json:"phone"`
}

// OrderConfig holds the pricing knobs applied to new orders.
type OrderConfig struct {
	TaxRate      decimal.Decimal
	DeliveryFee  int64
	MinimumOrder int64
}

// --- OrderService Interface ---
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error)
	GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	TrackOrder(ctx context.Context, orderNumber string) (*models.OrderTracking, error)
	GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, newStatus models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID int64, reason *string) (*models.Order, error)
	// ConfirmPaidOrder moves a PENDING order to CONFIRMED inside the caller's transaction.
	// It reports whether the order changed; orders already past PENDING are left alone.
	ConfirmPaidOrder(ctx context.Context, exec repositories.SQLExecutor, orderID int64) (bool, error)
}

type orderService struct {
	orderRepo repositories.OrderRepository
	menuRepo  repositories.MenuRepository
	tx        repositories.Transactor
	cfg       OrderConfig
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(or repositories.OrderRepository, mr repositories.MenuRepository, tx repositories.Transactor, cfg OrderConfig) OrderService {
	return &orderService{
		orderRepo: or,
		menuRepo:  mr,
		tx:        tx,
		cfg:       cfg,
		now:       time.Now,
	}
}

func validateCreateOrder(req *CreateOrderRequest) error {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	if utils.IsEmpty(req.Customer.Name) {
		return validationError("customer name is required")
	}
	if !utils.IsValidPhone(req.Customer.Phone) {
		return validationError("customer phone is invalid")
	}
	if req.Customer.Email != nil {
		if email := strings.TrimSpace(*req.Customer.Email); email == "" {
			req.Customer.Email = nil
		} else if !utils.IsValidEmail(email) {
			return validationError("customer email is invalid")
		} else {
			req.Customer.Email = &email
		}
	}
	if !req.OrderType.IsValid() {
		return validationError("order type must be PICKUP or DELIVERY")
	}
	if req.OrderType == models.OrderTypeDelivery && !req.DeliveryAddress.IsComplete() {
		return validationError("delivery orders require street, city and postal code")
	}
	if req.OrderType == models.OrderTypePickup {
		req.DeliveryAddress = nil
	}
	if len(req.Items) == 0 {
		return validationError("order must contain at least one item")
	}
	for _, line := range req.Items {
		if line.MenuItemID <= 0 {
			return validationError("menu item id must be positive")
		}
		if line.Quantity < models.MinItemQuantity || line.Quantity > models.MaxItemQuantity {
			return validationError("quantity must be between %d and %d", models.MinItemQuantity, models.MaxItemQuantity)
		}
	}
	req.SpecialInstructions = utils.NewNullString(derefString(req.SpecialInstructions))
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cleanCustomizations(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *orderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := validateCreateOrder(&req); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		order, err := s.createOrderTx(ctx, req)
		if err == nil {
			utils.LogInfo("Order created", map[string]interface{}{
				"order_id": order.ID, "order_number": order.OrderNumber, "total": order.Total,
			})
			return order, nil
		}
		if errors.Is(err, repositories.ErrDuplicateKey) && attempt < maxOrderNumberAttempts {
			utils.LogWarn("Order number collision, retrying", map[string]interface{}{"attempt": attempt})
			continue
		}
		return nil, err
	}
}

func (s *orderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	now := s.now().UTC()
	order := &models.Order{
		OrderNumber:         models.GenerateOrderNumber(now),
		CustomerName:        req.Customer.Name,
		CustomerPhone:       req.Customer.Phone,
		CustomerEmail:       req.Customer.Email,
		OrderType:           req.OrderType,
		DeliveryAddress:     req.DeliveryAddress,
		Status:              models.OrderPending,
		SpecialInstructions: req.SpecialInstructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		items := make([]models.OrderItem, 0, len(req.Items))
		lines := make([]int64, 0, len(req.Items))
		prepTimes := make([]int, 0, len(req.Items))

		for _, line := range req.Items {
			menuItem, err := s.menuRepo.GetForOrder(ctx, exec, line.MenuItemID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return withDetail(ErrMenuItemUnavailable, "menu item %d does not exist", line.MenuItemID)
				}
				return fmt.Errorf("loading menu item %d: %w", line.MenuItemID, err)
			}
			if !menuItem.IsAvailable {
				return withDetail(ErrMenuItemUnavailable, "%s is currently unavailable", menuItem.Name)
			}
			item, err := models.NewOrderItem(menuItem, line.Quantity, cleanCustomizations(line.Customizations))
			if err != nil {
				return validationError("%v", err)
			}
			items = append(items, item)
			lines = append(lines, item.Subtotal)
			prepTimes = append(prepTimes, menuItem.PreparationTime)
		}

		subtotal := pricing.Subtotal(lines)
		if !pricing.ValidateMinimumOrder(subtotal, s.cfg.MinimumOrder) {
			return withDetail(ErrBelowMinimumOrder, "subtotal %d is below minimum %d", subtotal, s.cfg.MinimumOrder)
		}
		fee := pricing.DeliveryFee(order.OrderType == models.OrderTypeDelivery, s.cfg.DeliveryFee)
		totals, err := pricing.ComputeTotals(subtotal, s.cfg.TaxRate, fee)
		if err != nil {
			return fmt.Errorf("computing order totals: %w", err)
		}

		queue, err := s.orderRepo.CountActiveOrders(ctx, exec)
		if err != nil {
			return err
		}

		order.Subtotal = subtotal
		order.Tax = totals.Tax
		order.DeliveryFee = fee
		order.Total = totals.Total
		order.EstimatedReadyTime = pricing.EstimateReadyTime(now, prepTimes, queue)
		order.Items = items
		if err := order.CheckTotals(); err != nil {
			return err
		}

		if _, err := s.orderRepo.CreateOrder(ctx, exec, order); err != nil {
			return err
		}
		return s.orderRepo.CreateOrderItems(ctx, exec, order.ID, order.Items)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) withItems(ctx context.Context, order *models.Order) (*models.Order, error) {
	items, err := s.orderRepo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %d: %w", order.ID, err)
	}
	order.Items = items
	return order, nil
}

func (s *orderService) GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return s.withItems(ctx, order)
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return nil, validationError("order number is required")
	}
	order, err := s.orderRepo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return s.withItems(ctx, order)
}

// TrackOrder returns the customer-facing status view of an order.
func (s *orderService) TrackOrder(ctx context.Context, orderNumber string) (*models.OrderTracking, error) {
	order, err := s.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	minutes := 0
	if !order.Status.IsTerminal() {
		if left := order.EstimatedReadyTime.Sub(s.now()); left > 0 {
			minutes = int(math.Ceil(left.Minutes()))
		}
	}
	return &models.OrderTracking{
		OrderNumber:        order.OrderNumber,
		Status:             order.Status,
		OrderType:          order.OrderType,
		EstimatedReadyTime: order.EstimatedReadyTime,
		MinutesRemaining:   minutes,
		Total:              order.Total,
		Items:              order.Items,
		UpdatedAt:          order.UpdatedAt,
	}, nil
}

func (s *orderService) GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, 0, withDetail(ErrInvalidOrderStatus, "unknown status %q", *filters.Status)
	}
	if filters.OrderType != nil && !filters.OrderType.IsValid() {
		return nil, 0, validationError("unknown order type %q", *filters.OrderType)
	}
	if filters.Date != nil && !dateFilterPattern.MatchString(*filters.Date) {
		return nil, 0, validationError("date must use YYYY-MM-DD")
	}
	return s.orderRepo.GetOrders(ctx, filters)
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus models.OrderStatus) (*models.Order, error) {
	return s.transition(ctx, orderID, newStatus, nil)
}

// CancelOrder cancels a PENDING, CONFIRMED or PREPARING order and records the reason.
func (s *orderService) CancelOrder(ctx context.Context, orderID int64, reason *string) (*models.Order, error) {
	order, err := s.transition(ctx, orderID, models.OrderCancelled, utils.NewNullString(derefString(reason)))
	if errors.Is(err, ErrIllegalTransition) {
		return nil, withDetail(ErrOrderNotCancellable, "order %d", orderID)
	}
	return order, err
}

func (s *orderService) transition(ctx context.Context, orderID int64, to models.OrderStatus, reason *string) (*models.Order, error) {
	if !to.IsValid() {
		return nil, withDetail(ErrInvalidOrderStatus, "unknown status %q", to)
	}

	var updated *models.Order
	err := s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		current, err := s.orderRepo.LockOrderByID(ctx, exec, orderID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !models.CanTransition(current.Status, to) {
			return withDetail(ErrIllegalTransition, "cannot move order %s from %s to %s (allowed: %s)",
				current.OrderNumber, current.Status, to, allowedList(current.Status))
		}
		now := s.now().UTC()
		if err := s.orderRepo.UpdateOrderStatus(ctx, exec, orderID, to, reason, now); err != nil {
			return err
		}
		utils.LogInfo("Order status changed", map[string]interface{}{
			"order_id": orderID, "from": current.Status, "to": to,
		})
		current.Status = to
		current.UpdatedAt = now
		if reason != nil {
			current.CancellationReason = reason
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, updated)
}

func allowedList(from models.OrderStatus) string {
	next := models.AllowedTransitions(from)
	if len(next) == 0 {
		return "none"
	}
	names := make([]string, len(next))
	for i, st := range next {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

func (s *orderService) ConfirmPaidOrder(ctx context.Context, exec repositories.SQLExecutor, orderID int64) (bool, error) {
	order, err := s.orderRepo.LockOrderByID(ctx, exec, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, ErrOrderNotFound
		}
		return false, err
	}
	if order.Status != models.OrderPending {
		return false, nil
	}
	if err := s.orderRepo.UpdateOrderStatus(ctx, exec, orderID, models.OrderConfirmed, nil, s.now().UTC()); err != nil {
		return false, err
	}
	utils.LogInfo("Order confirmed after payment", map[string]interface{}{"order_id": orderID})
	return true, nil
}
