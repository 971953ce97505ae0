package handler

import (
	"net/http"

	"feeportal/internal/domain"
	"feeportal/internal/middleware"
	"feeportal/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	orders *service.OrderService
}

func NewPaymentHandler(orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{orders: orders}
}

// Create persists a new order and returns the gateway redirect. A gateway
// failure still answers 201 with redirect_available=false.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if claims := middleware.GetClaims(c); claims != nil && claims.Role == domain.RoleSchool {
		if req.SchoolID == "" {
			req.SchoolID = claims.SchoolID
		}
		if !claims.CanSeeSchool(req.SchoolID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}
	res, err := h.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// RetryCollect re-runs the gateway step for an order created without a redirect.
func (h *PaymentHandler) RetryCollect(c *gin.Context) {
	ref := c.Param("id")
	view, err := h.orders.GetStatus(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canSee(c, view.SchoolID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	res, err := h.orders.RetryCollectRequest(c.Request.Context(), view.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
