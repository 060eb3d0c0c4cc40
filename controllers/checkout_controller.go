package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout-service/gateway"
	"checkout-service/ledger"
	"checkout-service/middlewares"
	"checkout-service/models"
	"checkout-service/pricing"
	"checkout-service/reconciler"
)

// Checkouter is the slice of the reconciler the checkout endpoints drive.
type Checkouter interface {
	InitiateCheckout(ctx context.Context, req reconciler.CheckoutRequest) (*reconciler.CheckoutResult, error)
	HandleGatewayEvent(ctx context.Context, rawBody []byte, sigHeader string) error
}

// CheckoutController translates HTTP requests into reconciler calls and
// shapes the responses. It holds no business logic.
type CheckoutController struct {
	rec Checkouter
}

func NewCheckoutController(rec Checkouter) *CheckoutController {
	return &CheckoutController{rec: rec}
}

type createPaymentIntentRequest struct {
	OrderItems     []models.CheckoutItem `json:"order_items" binding:"required,min=1,dive"`
	CheckoutData   models.CheckoutData   `json:"checkout_data" binding:"required"`
	AdditionalInfo string                `json:"additional_info"`
	Currency       string                `json:"currency"`
}

func (cc *CheckoutController) CreatePaymentIntent(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("create_payment_intent", ok)
	}()

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.OrderItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order must contain at least one item"})
		return
	}

	result, err := cc.rec.InitiateCheckout(c.Request.Context(), reconciler.CheckoutRequest{
		UserID:         userID.(int),
		Items:          req.OrderItems,
		CheckoutData:   req.CheckoutData,
		AdditionalInfo: req.AdditionalInfo,
		Currency:       req.Currency,
	})
	if err != nil {
		writeCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Payment intent and order created successfully",
		"clientSecret": result.ClientSecret,
		"orderId":      result.Order.ID,
		"order":        result.Order,
		"paymentIntent": gin.H{
			"id":     result.IntentID,
			"status": result.IntentStatus,
		},
	})
}

func writeCheckoutError(c *gin.Context, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, pricing.ErrInvalidLineItem), errors.Is(err, gateway.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrProfileNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User profile not found"})
	case errors.As(err, &gwErr):
		switch gwErr.Class {
		case gateway.ClassCardDeclined:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Card declined: " + gwErr.Message})
		case gateway.ClassInvalidRequest:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment request: " + gwErr.Message})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment gateway error: " + gwErr.Message})
		}
	case errors.Is(err, reconciler.ErrPaymentRecord):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating payment record in the database"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating payment intent"})
	}
}

// Webhook receives provider callbacks. The body must stay unparsed until the
// signature is verified over the exact bytes; this handler is mounted
// without any body-parsing middleware.
func (cc *CheckoutController) Webhook(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordWebhookDelivery(ok)
	}()

	payload, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: could not read body")
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if err := cc.rec.HandleGatewayEvent(c.Request.Context(), payload, sig); err != nil {
		// the only propagated error is signature verification failure
		c.String(http.StatusBadRequest, "Webhook Error: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
