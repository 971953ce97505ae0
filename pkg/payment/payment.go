package payment

import (
	"context"
	"errors"
)

var ErrGatewayRejected = errors.New("gateway rejected request")

type CollectRequest struct {
	SchoolID    string
	Amount      float64
	CallbackURL string
	OrderID     string // local order id, for logging only
}

type CollectResponse struct {
	CollectRequestID string
	RedirectURL      string
}

// CollectStatus is the gateway's live view of a collect request.
type CollectStatus struct {
	CollectRequestID  string  `json:"collect_request_id"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	TransactionAmount float64 `json:"transaction_amount"`
	PaymentMode       string  `json:"payment_mode,omitempty"`
	BankReference     string  `json:"bank_reference,omitempty"`
}

type Provider interface {
	CreateCollectRequest(ctx context.Context, req CollectRequest) (*CollectResponse, error)
	CheckStatus(ctx context.Context, collectRequestID, schoolID string) (*CollectStatus, error)
}
