package handler

import (
	"net/http"
	"time"

	"feeportal/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	reconcile *service.ReconcileService
}

func NewAdminHandler(reconcile *service.ReconcileService) *AdminHandler {
	return &AdminHandler{reconcile: reconcile}
}

// ExpireStale runs one expiry sweep immediately.
func (h *AdminHandler) ExpireStale(c *gin.Context) {
	n, err := h.reconcile.ExpireStale(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
