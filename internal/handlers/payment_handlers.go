package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/realtime"
	"restaurant_ordering_backend/internal/services"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	signatureHeader    = "Stripe-Signature"
	maxWebhookBodySize = 64 << 10
)

// WebhookParser verifies a provider webhook payload and normalizes it.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*services.WebhookEvent, error)
}

// PaymentHandler serves payment intents, verification, webhooks and the back-office payment views.
type PaymentHandler struct {
	paymentService services.PaymentService
	orderService   services.OrderService
	webhooks       WebhookParser
	notifier       realtime.Notifier
}

func NewPaymentHandler(ps services.PaymentService, os services.OrderService, webhooks WebhookParser, notifier realtime.Notifier) *PaymentHandler {
	return &PaymentHandler{paymentService: ps, orderService: os, webhooks: webhooks, notifier: notifier}
}

// CreatePaymentIntent opens a provider intent for an order. The amount must equal the order total.
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	var req services.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.paymentService.CreatePaymentIntent(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "CreatePaymentIntent", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// VerifyPayment reconciles a payment with the provider.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	payment, err := h.paymentService.VerifyPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondServiceError(c, "VerifyPayment", err)
		return
	}
	h.notifyPaidOrder(c.Request.Context(), payment)
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetPaymentByReference(c *gin.Context) {
	payment, err := h.paymentService.GetPaymentByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondServiceError(c, "GetPaymentByReference", err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// HandleWebhook receives provider events. Invalid signatures get 400; processing failures get a
// 5xx so the provider redelivers.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodySize))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Could not read webhook payload", ""))
		return
	}

	event, err := h.webhooks.ParseWebhook(payload, c.GetHeader(signatureHeader))
	if err != nil {
		utils.LogWarn("Rejected webhook", map[string]interface{}{"error": err.Error(), "client_ip": c.ClientIP()})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Invalid webhook signature", ""))
		return
	}

	payment, err := h.paymentService.HandleWebhook(c.Request.Context(), *event)
	if err != nil {
		respondServiceError(c, "HandleWebhook", err)
		return
	}
	h.notifyPaidOrder(c.Request.Context(), payment)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// RefundPayment refunds a completed payment in full.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	payment, err := h.paymentService.RefundPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondServiceError(c, "RefundPayment", err)
		return
	}
	utils.LogInfo("Payment refunded", map[string]interface{}{
		"payment_id": payment.ID, "order_id": payment.OrderID, "by": c.GetString("username"),
	})
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetPaymentStats(c *gin.Context) {
	stats, err := h.paymentService.GetPaymentStats(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetPaymentStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// notifyPaidOrder publishes the order status after a payment completed, since completion
// confirms a pending order.
func (h *PaymentHandler) notifyPaidOrder(ctx context.Context, payment *models.Payment) {
	if payment == nil || payment.Status != models.PaymentCompleted {
		return
	}
	order, err := h.orderService.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		if !errors.Is(err, services.ErrOrderNotFound) {
			utils.LogError(err, "Failed to load order for status event", map[string]interface{}{"order_id": payment.OrderID})
		}
		return
	}
	notifyOrder(ctx, h.notifier, order)
}
