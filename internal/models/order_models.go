package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrderType selects how the customer receives the order.
type OrderType string

const (
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDelivery OrderType = "DELIVERY"
)

// IsValid reports whether t is a known order type.
func (t OrderType) IsValid() bool {
	return t == OrderTypePickup || t == OrderTypeDelivery
}

const (
	MinItemQuantity = 1
	MaxItemQuantity = 10
)

// ErrInvalidOrder is wrapped by every Order/OrderItem invariant violation.
var ErrInvalidOrder = errors.New("invalid order")

// DeliveryAddress is required for DELIVERY orders.
type DeliveryAddress struct {
	Street       string  `json:"street"`
	City         string  `json:"city"`
	PostalCode   string  `json:"postal_code"`
	Instructions *string `json:"instructions,omitempty"`
}

// IsComplete reports whether every mandatory address field is filled in.
func (a *DeliveryAddress) IsComplete() bool {
	return a != nil &&
		strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != ""
}

// CustomerInfo is the contact data captured with an order.
type CustomerInfo struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Email *string `json:"email,omitempty"`
}

// Order is a customer order. Amounts are in minor currency units.
type Order struct {
	ID                  int64            `json:"id"`
	OrderNumber         string           `json:"order_number"`
	CustomerName        string           `json:"customer_name"`
	CustomerPhone       string           `json:"customer_phone"`
	CustomerEmail       *string          `json:"customer_email,omitempty"`
	OrderType           OrderType        `json:"order_type"`
	DeliveryAddress     *DeliveryAddress `json:"delivery_address,omitempty"`
	Subtotal            int64            `json:"subtotal"`
	Tax                 int64            `json:"tax"`
	DeliveryFee         int64            `json:"delivery_fee"`
	Total               int64            `json:"total"`
	Status              OrderStatus      `json:"status"`
	EstimatedReadyTime  time.Time        `json:"estimated_ready_time"`
	SpecialInstructions *string          `json:"special_instructions,omitempty"`
	CancellationReason  *string          `json:"cancellation_reason,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Items               []OrderItem      `json:"items,omitempty"`
}

// CheckTotals verifies total = subtotal + tax + delivery fee and, when items are loaded,
// subtotal = sum of item subtotals.
func (o *Order) CheckTotals() error {
	if o.Total != o.Subtotal+o.Tax+o.DeliveryFee {
		return fmt.Errorf("%w: total %d does not equal subtotal %d + tax %d + delivery fee %d",
			ErrInvalidOrder, o.Total, o.Subtotal, o.Tax, o.DeliveryFee)
	}
	if len(o.Items) == 0 {
		return nil
	}
	var sum int64
	for _, item := range o.Items {
		sum += item.Subtotal
	}
	if sum != o.Subtotal {
		return fmt.Errorf("%w: subtotal %d does not equal item subtotals %d", ErrInvalidOrder, o.Subtotal, sum)
	}
	return nil
}


// OrderItem is an immutable order line. Name and unit price are snapshotted from the menu at order time.
type OrderItem struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	MenuItemID     int64     `json:"menu_item_id"`
	MenuItemName   string    `json:"menu_item_name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      int64     `json:"unit_price"`
	Subtotal       int64     `json:"subtotal"`
	Customizations []string  `json:"customizations"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewOrderItem snapshots a menu item into an order line.
func NewOrderItem(menuItem *MenuItem, quantity int, customizations []string) (OrderItem, error) {
	if quantity < MinItemQuantity || quantity > MaxItemQuantity {
		return OrderItem{}, fmt.Errorf("%w: quantity for %q must be between %d and %d",
			ErrInvalidOrder, menuItem.Name, MinItemQuantity, MaxItemQuantity)
	}
	if customizations == nil {
		customizations = []string{}
	}
	return OrderItem{
		MenuItemID:     menuItem.ID,
		MenuItemName:   menuItem.Name,
		Quantity:       quantity,
		UnitPrice:      menuItem.Price,
		Subtotal:       menuItem.Price * int64(quantity),
		Customizations: customizations,
	}, nil
}

// OrderFilters defines the available filters for querying orders.
// This struct is used by both the service and repository layers.
type OrderFilters struct {
	Status        *OrderStatus `form:"status"`
	OrderType     *OrderType   `form:"order_type"`
	CustomerPhone *string      `form:"customer_phone"`
	Date          *string      `form:"date"` // Expected format YYYY-MM-DD
	Page          int          `form:"page"`
	PageSize      int          `form:"page_size"`
}

// OrderTracking is the public view returned to customers tracking their order.
type OrderTracking struct {
	OrderNumber        string      `json:"order_number"`
	Status             OrderStatus `json:"status"`
	OrderType          OrderType   `json:"order_type"`
	EstimatedReadyTime time.Time   `json:"estimated_ready_time"`
	MinutesRemaining   int         `json:"minutes_remaining"`
	Total              int64       `json:"total"`
	Items              []OrderItem `json:"items"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// OrderStatusEvent is pushed to realtime subscribers after a successful status change.
type OrderStatusEvent struct {
	OrderID            int64       `json:"order_id"`
	OrderNumber        string      `json:"order_number"`
	Status             OrderStatus `json:"status"`
	EstimatedReadyTime time.Time   `json:"estimated_ready_time"`
	OccurredAt         time.Time   `json:"occurred_at"`
}

// NewOrderStatusEvent builds the realtime event for o's current status.
func NewOrderStatusEvent(o *Order) OrderStatusEvent {
	return OrderStatusEvent{
		OrderID:            o.ID,
		OrderNumber:        o.OrderNumber,
		Status:             o.Status,
		EstimatedReadyTime: o.EstimatedReadyTime,
		OccurredAt:         time.Now().UTC(),
	}
}
