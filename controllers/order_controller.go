package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout-service/ledger"
	"checkout-service/middlewares"
	"checkout-service/models"
)

// OrderStore is the slice of the order ledger these endpoints use.
type OrderStore interface {
	ResolveProfile(ctx context.Context, userID int) (int, error)
	GetOrderDetailWithItems(ctx context.Context, code string) (*models.Order, error)
	ListOrdersForProfile(ctx context.Context, profileID int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, code string, fromExpected *models.OrderStatus, to models.OrderStatus) (*models.Order, error)
}

// OrderController serves order reads and the direct status-update path.
// Every operation is scoped to the caller's own profile.
type OrderController struct {
	ledger OrderStore
}

func NewOrderController(l OrderStore) *OrderController {
	return &OrderController{ledger: l}
}

func (oc *OrderController) GetUserOrders(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("list", ok)
	}()

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	profileID, err := oc.ledger.ResolveProfile(c.Request.Context(), userID.(int))
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	orders, err := oc.ledger.ListOrdersForProfile(c.Request.Context(), profileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetOrderDetails(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("details", ok)
	}()

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	code := c.Param("code")
	order, err := oc.ledger.GetOrderDetailWithItems(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// orders are scoped to the caller's own profile
	profileID, err := oc.ledger.ResolveProfile(c.Request.Context(), userID.(int))
	if err != nil || order.ProfileID != profileID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus is the direct-write path: unlike the webhook path, a
// status conflict here is surfaced as 409 instead of being absorbed.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("update_status", ok)
	}()

	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	code := c.Param("code")

	var request struct {
		Status models.OrderStatus `json:"status" binding:"required,oneof=pending paid failed cancelled"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the write is scoped to the caller's own orders
	profileID, err := oc.ledger.ResolveProfile(c.Request.Context(), userID.(int))
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	existing, err := oc.ledger.GetOrderDetailWithItems(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing.ProfileID != profileID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	order, err := oc.ledger.UpdateOrderStatus(c.Request.Context(), code, nil, request.Status)
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	case errors.Is(err, ledger.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Order status conflict"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order_id": order.ID, "status": order.Status})
}

// HandleDeadLetter receives dead-lettered order events for operator triage.
func (oc *OrderController) HandleDeadLetter(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("dead_letter", ok)
	}()

	var deadLetter struct {
		OrderID string `json:"order_id"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&deadLetter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("Handling dead letter for order %s: %s", deadLetter.OrderID, deadLetter.Reason)

	c.JSON(http.StatusOK, gin.H{"message": "Dead letter processed"})
}
