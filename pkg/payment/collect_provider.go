package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CollectProvider talks to the school-fee gateway's ERP collect-request API.
// Every request carries a "sign" field: an HS256 JWT of the request
// parameters keyed with the PG key.
type CollectProvider struct {
	BaseURL string
	APIKey  string
	PGKey   string
	client  *http.Client
}

func NewCollectProvider(baseURL, apiKey, pgKey string, timeout time.Duration) *CollectProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CollectProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		PGKey:   pgKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type collectReq struct {
	SchoolID    string `json:"school_id"`
	Amount      string `json:"amount"`
	CallbackURL string `json:"callback_url"`
	Sign        string `json:"sign"`
}

// Some gateway versions capitalise the url field.
type collectResp struct {
	CollectRequestID     string `json:"collect_request_id"`
	CollectRequestURL    string `json:"collect_request_url"`
	CollectRequestURLAlt string `json:"Collect_request_url"`
	Sign                 string `json:"sign"`
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// Sign returns the HS256 token the gateway expects over claims.
func (p *CollectProvider) Sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.PGKey))
}

func (p *CollectProvider) CreateCollectRequest(ctx context.Context, req CollectRequest) (*CollectResponse, error) {
	amount := formatAmount(req.Amount)
	sign, err := p.Sign(jwt.MapClaims{
		"school_id":    req.SchoolID,
		"amount":       amount,
		"callback_url": req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("sign collect request: %w", err)
	}
	body, _ := json.Marshal(collectReq{
		SchoolID:    req.SchoolID,
		Amount:      amount,
		CallbackURL: req.CallbackURL,
		Sign:        sign,
	})
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/erp/create-collect-request", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Content-Type", "application/json")
	apiReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	log.Printf("[gateway] POST %s/erp/create-collect-request order_id=%s school_id=%s amount=%s", p.BaseURL, req.OrderID, req.SchoolID, amount)
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[gateway] create-collect-request status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}
	var out collectResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode collect response: %w", err)
	}
	if out.CollectRequestID == "" {
		return nil, fmt.Errorf("%w: empty collect_request_id", ErrGatewayRejected)
	}
	redirect := out.CollectRequestURL
	if redirect == "" {
		redirect = out.CollectRequestURLAlt
	}
	log.Printf("[gateway] collect request created order_id=%s collect_request_id=%s", req.OrderID, out.CollectRequestID)
	return &CollectResponse{CollectRequestID: out.CollectRequestID, RedirectURL: redirect}, nil
}

func (p *CollectProvider) CheckStatus(ctx context.Context, collectRequestID, schoolID string) (*CollectStatus, error) {
	sign, err := p.Sign(jwt.MapClaims{
		"school_id":          schoolID,
		"collect_request_id": collectRequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign status request: %w", err)
	}
	q := url.Values{}
	q.Set("school_id", schoolID)
	q.Set("sign", sign)
	endpoint := fmt.Sprintf("%s/erp/collect-request/%s?%s", p.BaseURL, url.PathEscape(collectRequestID), q.Encode())
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	apiReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	resp, err := p.client.Do(apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}
	var out CollectStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if out.CollectRequestID == "" {
		out.CollectRequestID = collectRequestID
	}
	return &out, nil
}
