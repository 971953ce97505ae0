package handler

import (
	"log"
	"net/http"

	"feeportal/internal/domain"
	"feeportal/internal/middleware"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[domain.Kind]int{
	domain.KindValidation: http.StatusBadRequest,
	domain.KindNotFound:   http.StatusNotFound,
	domain.KindStore:      http.StatusInternalServerError,
	domain.KindGateway:    http.StatusBadGateway,
	domain.KindSignature:  http.StatusUnauthorized,
	domain.KindConflict:   http.StatusConflict,
}

// respondError writes err as {"error": msg} with the status for its kind.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": domain.Message(err)})
}

// canSee reports whether the caller may read schoolID's transactions.
func canSee(c *gin.Context, schoolID string) bool {
	claims := middleware.GetClaims(c)
	return claims != nil && claims.CanSeeSchool(schoolID)
}
