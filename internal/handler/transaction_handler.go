package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feeportal/internal/domain"
	"feeportal/internal/middleware"
	"feeportal/internal/report"
	"feeportal/internal/service"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	orders *service.OrderService
}

func NewTransactionHandler(orders *service.OrderService) *TransactionHandler {
	return &TransactionHandler{orders: orders}
}

// List serves the dashboard listing. SCHOOL users only ever see their own school.
func (h *TransactionHandler) List(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}
	if claims := middleware.GetClaims(c); claims.Role != domain.RoleAdmin {
		q.SchoolIDs = []string{claims.SchoolID}
	}
	h.list(c, q)
}

func (h *TransactionHandler) BySchool(c *gin.Context) {
	schoolID := c.Param("school_id")
	if !canSee(c, schoolID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	q, ok := parseListQuery(c)
	if !ok {
		return
	}
	q.SchoolIDs = []string{schoolID}
	h.list(c, q)
}

func (h *TransactionHandler) list(c *gin.Context, q service.ListQuery) {
	page, err := h.orders.ListTransactions(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get resolves an order id, custom order id or collect request id.
func (h *TransactionHandler) Get(c *gin.Context) {
	view, err := h.orders.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !canSee(c, view.SchoolID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) GatewayStatus(c *gin.Context) {
	view, err := h.orders.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !canSee(c, view.SchoolID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	view, st, err := h.orders.CheckGatewayStatus(c.Request.Context(), view.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": view, "gateway": st})
}

// parseListQuery reads page, limit, sort, order, status, school_id, from and
// to. It writes a 400 and returns false on bad input.
func parseListQuery(c *gin.Context) (service.ListQuery, bool) {
	q := service.ListQuery{
		Sort:      c.Query("sort"),
		Order:     c.DefaultQuery("order", "desc"),
		Statuses:  splitMulti(c.QueryArray("status")),
		SchoolIDs: splitMulti(c.QueryArray("school_id")),
	}
	var err error
	if q.Page, err = intQuery(c, "page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a number"})
		return q, false
	}
	if q.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return q, false
	}
	if o := strings.ToLower(q.Order); o != "asc" && o != "desc" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be asc or desc"})
		return q, false
	}
	if q.From, err = dateQuery(c, "from", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD or RFC3339"})
		return q, false
	}
	if q.To, err = dateQuery(c, "to", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD or RFC3339"})
		return q, false
	}
	return q, true
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// dateQuery accepts a date (a "to" date covers the whole day) or a timestamp.
func dateQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// splitMulti accepts both ?status=a&status=b and ?status=a,b.
func splitMulti(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

const maxExportRows = 10000

// Export streams the filtered listing as an XLSX workbook.
func (h *TransactionHandler) Export(c *gin.Context) {
	q, ok := parseListQuery(c)
	if !ok {
		return
	}
	if claims := middleware.GetClaims(c); claims.Role != domain.RoleAdmin {
		q.SchoolIDs = []string{claims.SchoolID}
	}
	rows, err := h.orders.ExportTransactions(c.Request.Context(), q, maxExportRows)
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteTransactionsXLSX(&buf, rows); err != nil {
		respondError(c, err)
		return
	}
	name := fmt.Sprintf("transactions_%s.xlsx", time.Now().UTC().Format("20060102T150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Receipt renders the PDF receipt of a successful payment.
func (h *TransactionHandler) Receipt(c *gin.Context) {
	view, err := h.orders.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !canSee(c, view.SchoolID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	var buf bytes.Buffer
	if err := report.WriteReceiptPDF(&buf, *view); err != nil {
		if errors.Is(err, report.ErrNotPaid) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt_%s.pdf"`, view.CustomOrderID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
