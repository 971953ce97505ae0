package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feeportal/internal/domain"
)

// Amount decodes gateway amounts sent either as numbers or as strings.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

type OrderInfo struct {
	OrderID           string          `json:"order_id"`
	CustomOrderID     string          `json:"custom_order_id"`
	CollectRequestID  string          `json:"collect_request_id"`
	OrderAmount       Amount          `json:"order_amount"`
	TransactionAmount Amount          `json:"transaction_amount"`
	Gateway           string          `json:"gateway"`
	BankReference     string          `json:"bank_reference"`
	Status            string          `json:"status"`
	PaymentMode       string          `json:"payment_mode"`
	PaymentDetails    string          `json:"payment_details"`
	PaymentMessage    string          `json:"payment_message"`
	PaymentTime       string          `json:"payment_time"`
	ErrorMessage      string          `json:"error_message"`
	CaptureStatus     string          `json:"capture_status"`
	PaymentMethods    json.RawMessage `json:"payment_methods"`
}

// WebhookPayload is the gateway's payment callback body.
type WebhookPayload struct {
	Status    int       `json:"status"`
	OrderInfo OrderInfo `json:"order_info"`
}

// References lists the identifiers the delivery may be matched on, most
// specific first. Empty values are skipped.
func (p *WebhookPayload) References() []string {
	var refs []string
	seen := map[string]bool{}
	for _, r := range []string{p.OrderInfo.CustomOrderID, p.OrderInfo.CollectRequestID, p.OrderInfo.OrderID} {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		refs = append(refs, r)
	}
	return refs
}

// DecodeWebhook parses a callback body. A body without any order reference
// is rejected as malformed.
func DecodeWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, domain.ValidationError("malformed webhook payload")
	}
	if len(p.References()) == 0 {
		return nil, domain.ValidationError("webhook payload has no order reference")
	}
	return &p, nil
}

var paymentTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parsePaymentTime returns nil when the value is absent or unreadable.
func parsePaymentTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range paymentTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		u := time.UnixMilli(ms).UTC()
		return &u
	}
	return nil
}

// mapGatewayStatus maps the gateway's reported status to a local one.
// ok is false for intermediate statuses that carry nothing to apply.
func mapGatewayStatus(code int, status string) (domain.PaymentStatus, bool) {
	badCode := code != 0 && code != 200
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS":
		if badCode {
			return domain.StatusFailed, true
		}
		return domain.StatusSuccess, true
	case "FAILED", "FAILURE", "USER_DROPPED", "CANCELLED":
		return domain.StatusFailed, true
	case "EXPIRED":
		return domain.StatusExpired, true
	case "PENDING":
		return domain.StatusPending, false
	}
	if badCode {
		return domain.StatusFailed, true
	}
	return domain.StatusPending, false
}
