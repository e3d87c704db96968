package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/realtime"
	"restaurant_ordering_backend/internal/services"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultHeartbeat = 25 * time.Second

// OrderHandler serves the public ordering and tracking endpoints and the back-office order queue.
type OrderHandler struct {
	orderService services.OrderService
	notifier     realtime.Notifier
	hub          *realtime.Hub
	heartbeat    time.Duration
}

// NewOrderHandler creates a new OrderHandler. notifier receives every successful status change;
// hub backs the server-sent event stream.
func NewOrderHandler(os services.OrderService, notifier realtime.Notifier, hub *realtime.Hub) *OrderHandler {
	return &OrderHandler{orderService: os, notifier: notifier, hub: hub, heartbeat: defaultHeartbeat}
}

// CreateOrder handles order placement. Prices and totals are computed server-side.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "CreateOrder", err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrderByID handles fetching a single order by ID with its items
func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, "GetOrderByID", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetOrderByNumber(c *gin.Context) {
	order, err := h.orderService.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondServiceError(c, "GetOrderByNumber", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// TrackOrder returns the customer-facing tracking view.
func (h *OrderHandler) TrackOrder(c *gin.Context) {
	tracking, err := h.orderService.TrackOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondServiceError(c, "TrackOrder", err)
		return
	}
	c.JSON(http.StatusOK, tracking)
}

// StreamOrderEvents pushes status changes for one order as server-sent events. The current
// status is sent first; the stream ends when the order reaches a terminal status or the
// client goes away.
func (h *OrderHandler) StreamOrderEvents(c *gin.Context) {
	ctx := c.Request.Context()
	number := strings.ToUpper(strings.TrimSpace(c.Param("number")))

	// Subscribe before reading the current status so a change committed in between is not lost.
	sub := h.hub.Subscribe(number)
	defer sub.Close()

	tracking, err := h.orderService.TrackOrder(ctx, number)
	if err != nil {
		respondServiceError(c, "StreamOrderEvents", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("status", models.OrderStatusEvent{
		OrderNumber:        tracking.OrderNumber,
		Status:             tracking.Status,
		EstimatedReadyTime: tracking.EstimatedReadyTime,
		OccurredAt:         tracking.UpdatedAt,
	})
	c.Writer.Flush()
	if tracking.Status.IsTerminal() {
		return
	}
	last := tracking.Status

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Status == last {
				continue
			}
			last = ev.Status
			c.SSEvent("status", ev)
			c.Writer.Flush()
			if ev.Status.IsTerminal() {
				return
			}
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// CancelOrderByCustomer lets a customer cancel their own order. The phone number on the order
// must match; a mismatch is reported as not found so order ids cannot be probed.
func (h *OrderHandler) CancelOrderByCustomer(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if utils.IsEmpty(req.Phone) {
		utils.RespondValidationFailed(c, "phone is required to cancel an order")
		return
	}

	ctx := c.Request.Context()
	order, err := h.orderService.GetOrderByID(ctx, orderID)
	if err != nil {
		respondServiceError(c, "CancelOrderByCustomer", err)
		return
	}
	if digitsOnly(order.CustomerPhone) != digitsOnly(req.Phone) {
		respondServiceError(c, "CancelOrderByCustomer", services.ErrOrderNotFound)
		return
	}

	h.cancel(c, orderID, req.Reason)
}

// CancelOrder is the back-office cancellation.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.CancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	h.cancel(c, orderID, req.Reason)
}

func (h *OrderHandler) cancel(c *gin.Context, orderID int64, reason *string) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), orderID, reason)
	if err != nil {
		respondServiceError(c, "CancelOrder", err)
		return
	}
	h.notify(c.Request.Context(), order)
	c.JSON(http.StatusOK, order)
}

// GetOrders handles the filtered, paginated back-office order list.
func (h *OrderHandler) GetOrders(c *gin.Context) {
	var filters models.OrderFilters
	if status := c.Query("status"); status != "" {
		s := models.OrderStatus(strings.ToUpper(status))
		filters.Status = &s
	}
	if orderType := c.Query("order_type"); orderType != "" {
		t := models.OrderType(strings.ToUpper(orderType))
		filters.OrderType = &t
	}
	if phone := c.Query("customer_phone"); phone != "" {
		filters.CustomerPhone = &phone
	}
	if date := c.Query("date"); date != "" {
		filters.Date = &date
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}
	filters.Page, filters.PageSize = page, pageSize

	orders, totalCount, err := h.orderService.GetOrders(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "GetOrders", err)
		return
	}
	if orders == nil { // Ensure we return an empty list instead of null if no orders found
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      orders,
		"total":     totalCount,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// UpdateOrderStatus handles updating the status of an order
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), orderID, models.OrderStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		respondServiceError(c, "UpdateOrderStatus", err)
		return
	}
	h.notify(c.Request.Context(), order)
	c.JSON(http.StatusOK, order)
}

// notify publishes the order's current status. Failures are logged; the change is already committed.
func (h *OrderHandler) notify(ctx context.Context, order *models.Order) {
	notifyOrder(ctx, h.notifier, order)
}

func notifyOrder(ctx context.Context, notifier realtime.Notifier, order *models.Order) {
	if notifier == nil || order == nil {
		return
	}
	event := models.NewOrderStatusEvent(order)
	if err := notifier.NotifyOrderStatus(context.WithoutCancel(ctx), event); err != nil {
		utils.LogError(err, "Failed to publish order status event", map[string]interface{}{
			"order_number": order.OrderNumber, "status": order.Status,
		})
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
