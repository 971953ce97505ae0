package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/repository"
	"feeportal/pkg/payment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StudentInput struct {
	Name  string `json:"name" validate:"required"`
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type CreateOrderInput struct {
	SchoolID      string       `json:"school_id" validate:"required"`
	TrusteeID     string       `json:"trustee_id" validate:"required"`
	Student       StudentInput `json:"student_info"`
	Amount        float64      `json:"amount" validate:"gt=0"`
	GatewayName   string       `json:"gateway_name" validate:"omitempty,max=64"`
	CustomOrderID string       `json:"custom_order_id" validate:"omitempty,max=128"`
}

// CreateOrderResult reports a persisted order. RedirectAvailable is false
// when the gateway step failed; the order is still usable and the gateway
// step can be retried on its own.
type CreateOrderResult struct {
	Transaction       models.OrderWithStatus `json:"transaction"`
	RedirectURL       string                 `json:"redirect_url,omitempty"`
	RedirectAvailable bool                   `json:"redirect_available"`
	RedirectError     string                 `json:"redirect_error,omitempty"`
}

type ListQuery struct {
	Statuses  []string
	SchoolIDs []string
	From      *time.Time
	To        *time.Time
	Sort      string
	Order     string
	Page      int
	Limit     int
}

type TransactionPage struct {
	Data  []models.OrderWithStatus `json:"data"`
	Total int64                    `json:"total"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

type OrderService struct {
	cfg      *config.Config
	orders   *repository.OrderRepository
	provider payment.Provider
}

func NewOrderService(cfg *config.Config, orders *repository.OrderRepository, provider payment.Provider) *OrderService {
	return &OrderService{cfg: cfg, orders: orders, provider: provider}
}

// CreateOrder persists an order with a pending status, then asks the
// gateway for a collect request.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	in.SchoolID = strings.TrimSpace(in.SchoolID)
	in.TrusteeID = strings.TrimSpace(in.TrusteeID)
	in.Student.Name = strings.TrimSpace(in.Student.Name)
	in.Student.ID = strings.TrimSpace(in.Student.ID)
	in.Student.Email = strings.TrimSpace(in.Student.Email)
	in.CustomOrderID = strings.TrimSpace(in.CustomOrderID)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	customID := in.CustomOrderID
	if customID == "" {
		customID = "CO-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	} else {
		taken, err := s.orders.ReferenceInUse(ctx, customID)
		if err != nil {
			return nil, domain.StoreError("could not check custom order id", err)
		}
		if taken {
			return nil, domain.ConflictError("custom_order_id is already in use")
		}
	}
	gatewayName := in.GatewayName
	if gatewayName == "" {
		gatewayName = s.cfg.Gateway.Name
	}

	order := &models.Order{
		ID:        uuid.NewString(),
		SchoolID:  in.SchoolID,
		TrusteeID: in.TrusteeID,
		Student: models.StudentInfo{
			Name:  in.Student.Name,
			ID:    in.Student.ID,
			Email: in.Student.Email,
		},
		GatewayName:   gatewayName,
		CustomOrderID: &customID,
	}
	status := &models.OrderStatus{
		OrderAmount:       in.Amount,
		TransactionAmount: 0,
		Status:            domain.StatusPending,
	}
	if err := s.orders.CreateWithStatus(ctx, order, status); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ConflictError("custom_order_id is already in use")
		}
		return nil, domain.StoreError("could not persist order", err)
	}
	log.Printf("[orders] created order_id=%s custom_order_id=%s school_id=%s amount=%.2f", order.ID, customID, order.SchoolID, in.Amount)

	res := &CreateOrderResult{Transaction: order.View()}
	if err := s.requestCollect(ctx, order); err != nil {
		log.Printf("[orders] collect request unavailable order_id=%s: %v", order.ID, err)
		res.RedirectError = domain.Message(err)
		return res, nil
	}
	res.Transaction = order.View()
	res.RedirectURL = order.RedirectURL
	res.RedirectAvailable = true
	return res, nil
}

// requestCollect runs the gateway step for order and records the collect
// request on success. order is updated in place.
func (s *OrderService) requestCollect(ctx context.Context, order *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Gateway.Timeout)
	defer cancel()
	amount := 0.0
	if order.Status != nil {
		amount = order.Status.OrderAmount
	}
	resp, err := s.provider.CreateCollectRequest(ctx, payment.CollectRequest{
		SchoolID:    order.SchoolID,
		Amount:      amount,
		CallbackURL: s.cfg.Gateway.CallbackURL,
		OrderID:     order.ID,
	})
	if err != nil {
		return domain.GatewayError("payment gateway unavailable, retry the collect request", err)
	}
	store := context.WithoutCancel(ctx)
	taken, err := s.orders.ReferenceInUse(store, resp.CollectRequestID)
	if err != nil {
		return domain.StoreError("could not check collect request id", err)
	}
	if taken {
		return domain.GatewayError("gateway returned a collect request id already in use", fmt.Errorf("collect_request_id %q", resp.CollectRequestID))
	}
	ok, err := s.orders.SetCollectRequest(store, order.ID, resp.CollectRequestID, resp.RedirectURL)
	if err != nil {
		return domain.StoreError("could not record collect request", err)
	}
	if !ok {
		return domain.ConflictError("order already has a collect request")
	}
	id := resp.CollectRequestID
	order.CollectRequestID = &id
	order.RedirectURL = resp.RedirectURL
	return nil
}

// RetryCollectRequest re-runs only the gateway step for a pending order
// that has no collect request yet.
func (s *OrderService) RetryCollectRequest(ctx context.Context, ref string) (*CreateOrderResult, error) {
	order, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order.CollectRequestID != nil {
		return nil, domain.ConflictError("order already has a collect request")
	}
	if order.Status == nil || order.Status.Status != domain.StatusPending {
		return nil, domain.ConflictError("order is no longer pending")
	}
	if err := s.requestCollect(ctx, order); err != nil {
		return nil, err
	}
	return &CreateOrderResult{
		Transaction:       order.View(),
		RedirectURL:       order.RedirectURL,
		RedirectAvailable: true,
	}, nil
}

// resolve finds an order by its id, custom order id or collect request id.
func (s *OrderService) resolve(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ValidationError("transaction id is required")
	}
	order, err := firstMatch(ctx, ref, s.orders.GetByID, s.orders.GetByCustomOrderID, s.orders.GetByCollectRequestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundError("transaction not found")
	}
	if err != nil {
		return nil, domain.StoreError("could not load transaction", err)
	}
	return order, nil
}

type orderLookup func(context.Context, string) (*models.Order, error)

// firstMatch tries each lookup for ref in turn and returns the first hit,
// or gorm.ErrRecordNotFound when none matches.
func firstMatch(ctx context.Context, ref string, lookups ...orderLookup) (*models.Order, error) {
	for _, get := range lookups {
		o, err := get(ctx, ref)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return o, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// GetStatus returns the merged order and status view for ref.
func (s *OrderService) GetStatus(ctx context.Context, ref string) (*models.OrderWithStatus, error) {
	order, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	v := order.View()
	return &v, nil
}

func (s *OrderService) ListTransactions(ctx context.Context, q ListQuery) (*TransactionPage, error) {
	f := repository.TransactionFilter{
		SchoolIDs: q.SchoolIDs,
		From:      q.From,
		To:        q.To,
		Page:      q.Page,
		Limit:     q.Limit,
		Desc:      !strings.EqualFold(q.Order, "asc"),
	}
	for _, st := range q.Statuses {
		ps := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(st)))
		if !ps.Valid() {
			return nil, domain.ValidationError("unknown status " + st)
		}
		f.Statuses = append(f.Statuses, ps)
	}
	if q.Sort != "" {
		known := false
		for _, field := range domain.TransactionSortFields {
			if q.Sort == field {
				known = true
				break
			}
		}
		if !known {
			return nil, domain.ValidationError("unknown sort field " + q.Sort)
		}
		f.SortField = q.Sort
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, domain.StoreError("could not list transactions", err)
	}
	page := &TransactionPage{Data: make([]models.OrderWithStatus, 0, len(orders)), Total: total, Page: f.Page, Limit: f.Limit}
	for i := range orders {
		page.Data = append(page.Data, orders[i].View())
	}
	return page, nil
}

// CheckGatewayStatus asks the gateway for the live state of ref's collect
// request. Local state is not changed.
func (s *OrderService) CheckGatewayStatus(ctx context.Context, ref string) (*models.OrderWithStatus, *payment.CollectStatus, error) {
	order, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if order.CollectRequestID == nil {
		return nil, nil, domain.ConflictError("order has no collect request yet")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Gateway.Timeout)
	defer cancel()
	st, err := s.provider.CheckStatus(ctx, *order.CollectRequestID, order.SchoolID)
	if err != nil {
		return nil, nil, domain.GatewayError("could not reach payment gateway", err)
	}
	v := order.View()
	return &v, st, nil
}

// ClearOrders deletes test data for schoolID, or everything when it is empty.
func (s *OrderService) ClearOrders(ctx context.Context, schoolID string) (int64, error) {
	n, err := s.orders.DeleteBySchool(ctx, schoolID)
	if err != nil {
		return 0, domain.StoreError("could not clear orders", err)
	}
	log.Printf("[orders] cleared %d orders school_id=%q", n, schoolID)
	return n, nil
}

// ExportTransactions returns up to max transactions matching q, page by page.
func (s *OrderService) ExportTransactions(ctx context.Context, q ListQuery, max int) ([]models.OrderWithStatus, error) {
	q.Page, q.Limit = 1, 100
	var out []models.OrderWithStatus
	for len(out) < max {
		page, err := s.ListTransactions(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if len(page.Data) < q.Limit || int64(len(out)) >= page.Total {
			break
		}
		q.Page++
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}
