package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/repository"
	"feeportal/internal/testutil"
	"feeportal/pkg/payment"
)

type fakeProvider struct {
	mu      sync.Mutex
	fail    error
	calls   []payment.CollectRequest
	status  *payment.CollectStatus
	checked []string
	// collectID overrides the generated collect request id when set
	collectID string
}

func (f *fakeProvider) CreateCollectRequest(ctx context.Context, req payment.CollectRequest) (*payment.CollectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail != nil {
		return nil, f.fail
	}
	id := "COLLECT-" + req.OrderID
	if f.collectID != "" {
		id = f.collectID
	}
	return &payment.CollectResponse{CollectRequestID: id, RedirectURL: "https://pay.test/" + id}, nil
}

func (f *fakeProvider) CheckStatus(ctx context.Context, collectRequestID, schoolID string) (*payment.CollectStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, collectRequestID)
	if f.fail != nil {
		return nil, f.fail
	}
	return f.status, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	views []models.OrderWithStatus
}

func (r *recordingNotifier) StatusChanged(_ context.Context, v models.OrderWithStatus) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func testConfig() *config.Config {
	return &config.Config{
		JWT:     config.JWTConfig{AccessSecret: "secret", AccessExpiry: time.Hour, Issuer: "fee-portal"},
		Gateway: config.GatewayConfig{Name: "edviron", CallbackURL: "https://school.test/done", Timeout: time.Second},
		Payment: config.PaymentConfig{WebhookSecret: "whsec", PaymentExpiry: 30 * time.Minute},
	}
}

type fixture struct {
	orders    *OrderService
	reconcile *ReconcileService
	repo      *repository.OrderRepository
	events    *repository.WebhookEventRepository
	provider  *fakeProvider
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testConfig()
	repo := repository.NewOrderRepository(db)
	events := repository.NewWebhookEventRepository(db)
	f := &fixture{repo: repo, events: events, provider: &fakeProvider{}, notifier: &recordingNotifier{}}
	f.orders = NewOrderService(cfg, repo, f.provider)
	f.reconcile = NewReconcileService(repo, events, f.notifier, cfg.Payment.PaymentExpiry)
	return f
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		SchoolID:  "school-1",
		TrusteeID: "trustee-1",
		Student:   StudentInput{Name: "Asha", ID: "STU-9", Email: "asha@school.test"},
		Amount:    500,
	}
}

func TestCreateOrderStartsPending(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !res.RedirectAvailable || res.RedirectURL == "" {
		t.Fatalf("redirect missing: %+v", res)
	}
	v := res.Transaction
	if v.Status != domain.StatusPending || v.OrderAmount != 500 || v.TransactionAmount != 0 {
		t.Errorf("view = %+v", v)
	}
	if v.CustomOrderID == "" || v.CollectRequestID == "" || v.Gateway != "edviron" {
		t.Errorf("identifiers not set: %+v", v)
	}
	if len(f.provider.calls) != 1 || f.provider.calls[0].Amount != 500 || f.provider.calls[0].CallbackURL != "https://school.test/done" {
		t.Errorf("gateway calls = %+v", f.provider.calls)
	}

	for _, ref := range []string{v.OrderID, v.CustomOrderID, v.CollectRequestID} {
		got, err := f.orders.GetStatus(context.Background(), ref)
		if err != nil {
			t.Fatalf("GetStatus(%s): %v", ref, err)
		}
		if got.OrderID != v.OrderID {
			t.Errorf("GetStatus(%s) resolved %s", ref, got.OrderID)
		}
	}
}

func TestCreateOrderGatewayFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.provider.fail = errors.New("connection refused")
	res, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.RedirectAvailable || res.RedirectError == "" {
		t.Fatalf("expected unavailable redirect: %+v", res)
	}
	if res.Transaction.CollectRequestID != "" || res.Transaction.Status != domain.StatusPending {
		t.Errorf("view = %+v", res.Transaction)
	}

	f.provider.fail = nil
	retry, err := f.orders.RetryCollectRequest(context.Background(), res.Transaction.OrderID)
	if err != nil {
		t.Fatalf("RetryCollectRequest: %v", err)
	}
	if retry.Transaction.CollectRequestID == "" || !retry.RedirectAvailable {
		t.Errorf("retry = %+v", retry)
	}
	if _, err := f.orders.RetryCollectRequest(context.Background(), res.Transaction.OrderID); !domain.IsKind(err, domain.KindConflict) {
		t.Errorf("second retry err = %v, want conflict", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*CreateOrderInput){
		"zero amount":    func(in *CreateOrderInput) { in.Amount = 0 },
		"negative":       func(in *CreateOrderInput) { in.Amount = -5 },
		"missing school": func(in *CreateOrderInput) { in.SchoolID = "  " },
		"bad email":      func(in *CreateOrderInput) { in.Student.Email = "nope" },
		"no student id":  func(in *CreateOrderInput) { in.Student.ID = "" },
		"blank name":     func(in *CreateOrderInput) { in.Student.Name = "   " },
		"blank id":       func(in *CreateOrderInput) { in.Student.ID = " \t" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := f.orders.CreateOrder(context.Background(), in)
			if !domain.IsKind(err, domain.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
	if len(f.provider.calls) != 0 {
		t.Errorf("gateway called %d times for invalid input", len(f.provider.calls))
	}
}

func TestCreateOrderDuplicateCustomID(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.CustomOrderID = "INV-1"
	if _, err := f.orders.CreateOrder(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	_, err := f.orders.CreateOrder(context.Background(), in)
	if !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestCreateOrderRejectsCustomIDUsedElsewhere(t *testing.T) {
	f := newFixture(t)
	b, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{b.Transaction.CollectRequestID, b.Transaction.OrderID} {
		in := validInput()
		in.CustomOrderID = ref
		if _, err := f.orders.CreateOrder(context.Background(), in); !domain.IsKind(err, domain.KindConflict) {
			t.Errorf("custom id %s err = %v, want conflict", ref, err)
		}
	}
	v, err := f.orders.GetStatus(context.Background(), b.Transaction.CollectRequestID)
	if err != nil || v.OrderID != b.Transaction.OrderID {
		t.Errorf("collect id lookup = %+v, %v", v, err)
	}
}

func TestCreateOrderRefusesCollectIDUsedElsewhere(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.CustomOrderID = "INV-9"
	if _, err := f.orders.CreateOrder(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	f.provider.collectID = "INV-9"
	res, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.RedirectAvailable || res.Transaction.CollectRequestID != "" {
		t.Errorf("colliding collect id was recorded: %+v", res)
	}
	v, err := f.orders.GetStatus(context.Background(), "INV-9")
	if err != nil || v.CustomOrderID != "INV-9" {
		t.Errorf("INV-9 lookup = %+v, %v", v, err)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orders.GetStatus(context.Background(), "missing"); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, err := f.orders.GetStatus(context.Background(), ""); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("empty ref err = %v", err)
	}
}

func TestListTransactionsValidatesAndClamps(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		if _, err := f.orders.CreateOrder(context.Background(), validInput()); err != nil {
			t.Fatal(err)
		}
	}
	page, err := f.orders.ListTransactions(context.Background(), ListQuery{Limit: 1000, Statuses: []string{"PENDING"}})
	if err != nil {
		t.Fatal(err)
	}
	if page.Limit != 100 || page.Page != 1 || page.Total != 3 || len(page.Data) != 3 {
		t.Errorf("page = %+v", page)
	}
	if _, err := f.orders.ListTransactions(context.Background(), ListQuery{Sort: "student_name"}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("unknown sort err = %v", err)
	}
	if _, err := f.orders.ListTransactions(context.Background(), ListQuery{Statuses: []string{"paid"}}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("unknown status err = %v", err)
	}
}

func TestCheckGatewayStatus(t *testing.T) {
	f := newFixture(t)
	res, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	f.provider.status = &payment.CollectStatus{CollectRequestID: res.Transaction.CollectRequestID, Status: "SUCCESS", Amount: 500}
	view, st, err := f.orders.CheckGatewayStatus(context.Background(), res.Transaction.CustomOrderID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "SUCCESS" || view.Status != domain.StatusPending {
		t.Errorf("gateway status %+v local %s", st, view.Status)
	}
	if len(f.provider.checked) != 1 || f.provider.checked[0] != res.Transaction.CollectRequestID {
		t.Errorf("checked = %v", f.provider.checked)
	}

	f.provider.fail = errors.New("down")
	if _, _, err := f.orders.CheckGatewayStatus(context.Background(), res.Transaction.OrderID); !domain.IsKind(err, domain.KindGateway) {
		t.Errorf("err = %v, want gateway", err)
	}
}
