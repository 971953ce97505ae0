package payment

import (
	"context"
	"fmt"
	"time"
)

// StubProvider issues fake collect requests for local development.
type StubProvider struct {
	RedirectBase string
}

func (s *StubProvider) CreateCollectRequest(ctx context.Context, req CollectRequest) (*CollectResponse, error) {
	id := fmt.Sprintf("stub_%d", time.Now().UnixNano())
	base := s.RedirectBase
	if base == "" {
		base = "http://localhost:3000/stub-pay"
	}
	return &CollectResponse{
		CollectRequestID: id,
		RedirectURL:      base + "/" + id,
	}, nil
}

func (s *StubProvider) CheckStatus(ctx context.Context, collectRequestID, schoolID string) (*CollectStatus, error) {
	if len(collectRequestID) < 5 || collectRequestID[:5] != "stub_" {
		return nil, fmt.Errorf("%w: unknown stub collect request %q", ErrGatewayRejected, collectRequestID)
	}
	return &CollectStatus{CollectRequestID: collectRequestID, Status: "PENDING"}, nil
}
