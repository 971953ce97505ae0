package handler

import (
	"io"
	"log"
	"net/http"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/service"
	"feeportal/pkg/payment"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconcile *service.ReconcileService
	cfg       *config.PaymentConfig
}

func NewWebhookHandler(reconcile *service.ReconcileService, cfg *config.PaymentConfig) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile, cfg: cfg}
}

// Handle verifies and applies a gateway payment callback. Every verified,
// well-formed delivery is acknowledged with 200 whatever its outcome so the
// gateway stops retrying.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	sig := c.GetHeader(payment.SignatureHeader)
	if !payment.VerifyWebhookSignature(h.cfg.WebhookSecret, body, sig) {
		detail := "invalid signature"
		if sig == "" {
			detail = "missing signature"
		}
		log.Printf("[webhook] rejected delivery from %s: %s", c.ClientIP(), detail)
		h.reconcile.RecordRejected(c.Request.Context(), body, detail)
		respondError(c, domain.SignatureError(detail))
		return
	}
	p, err := service.DecodeWebhook(body)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.reconcile.ApplyWebhook(c.Request.Context(), p, body)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome, "status": res.Status})
}
