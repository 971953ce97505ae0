package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"feeportal/internal/domain"
	"feeportal/internal/models"
)

func webhookBody(t *testing.T, code int, ref, status string, amount float64, paymentTime string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"status": code,
		"order_info": map[string]interface{}{
			"order_id":           ref,
			"order_amount":       amount,
			"transaction_amount": fmt.Sprintf("%.2f", amount),
			"gateway":            "PhonePe",
			"bank_reference":     "YESBNK222",
			"status":             status,
			"payment_mode":       "upi",
			"payment_details":    "success@ybl",
			"payment_message":    "payment success",
			"payment_time":       paymentTime,
			"error_message":      "NA",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// webhookRefsBody builds a delivery that names the order only through refs.
func webhookRefsBody(t *testing.T, refs map[string]string, code int, status string) []byte {
	t.Helper()
	info := map[string]interface{}{
		"order_amount":       500,
		"transaction_amount": 500,
		"status":             status,
		"payment_mode":       "upi",
	}
	for k, v := range refs {
		info[k] = v
	}
	b, err := json.Marshal(map[string]interface{}{"status": code, "order_info": info})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func deliver(t *testing.T, f *fixture, body []byte) *ReconcileResult {
	t.Helper()
	p, err := DecodeWebhook(body)
	if err != nil {
		t.Fatalf("DecodeWebhook: %v", err)
	}
	res, err := f.reconcile.ApplyWebhook(context.Background(), p, body)
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	return res
}

func createOrder(t *testing.T, f *fixture) string {
	t.Helper()
	res, err := f.orders.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	return res.Transaction.CollectRequestID
}

func TestApplyWebhookSuccessThenRedelivery(t *testing.T) {
	f := newFixture(t)
	collectID := createOrder(t, f)
	body := webhookBody(t, 200, collectID, "SUCCESS", 500, "2025-04-23T08:14:21.945Z")

	res := deliver(t, f, body)
	if res.Outcome != domain.OutcomeApplied || res.Status != domain.StatusSuccess {
		t.Fatalf("first delivery = %+v", res)
	}
	v, err := f.orders.GetStatus(context.Background(), collectID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != domain.StatusSuccess || v.TransactionAmount != 500 || v.PaymentMode != "upi" || v.BankReference != "YESBNK222" {
		t.Errorf("after success view = %+v", v)
	}
	want := time.Date(2025, 4, 23, 8, 14, 21, 945000000, time.UTC)
	if v.PaymentTime == nil || !v.PaymentTime.Equal(want) {
		t.Errorf("payment_time = %v, want %v", v.PaymentTime, want)
	}

	again := deliver(t, f, body)
	if again.Outcome != domain.OutcomeDuplicate || again.Status != domain.StatusSuccess {
		t.Errorf("redelivery = %+v", again)
	}
	v2, _ := f.orders.GetStatus(context.Background(), collectID)
	if !v2.PaymentTime.Equal(*v.PaymentTime) || v2.TransactionAmount != v.TransactionAmount {
		t.Errorf("redelivery changed state: %+v", v2)
	}
	if f.notifier.count() != 1 {
		t.Errorf("notified %d times, want 1", f.notifier.count())
	}
	events, err := f.events.ListByOrder(context.Background(), v.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Outcome != domain.OutcomeDuplicate || events[1].Outcome != domain.OutcomeApplied {
		t.Errorf("events = %+v", events)
	}
}

func TestApplyWebhookNeverLeavesTerminal(t *testing.T) {
	f := newFixture(t)
	collectID := createOrder(t, f)
	deliver(t, f, webhookBody(t, 200, collectID, "SUCCESS", 500, "2025-04-23T08:14:21Z"))

	res := deliver(t, f, webhookBody(t, 400, collectID, "FAILED", 0, "2025-04-23T09:00:00Z"))
	if res.Outcome != domain.OutcomeAnomaly || res.Status != domain.StatusSuccess {
		t.Errorf("conflicting delivery = %+v", res)
	}
	res = deliver(t, f, webhookBody(t, 200, collectID, "PENDING", 0, ""))
	if res.Outcome != domain.OutcomeIgnored || res.Status != domain.StatusSuccess {
		t.Errorf("intermediate delivery = %+v", res)
	}
	v, _ := f.orders.GetStatus(context.Background(), collectID)
	if v.Status != domain.StatusSuccess || v.TransactionAmount != 500 {
		t.Errorf("terminal state changed: %+v", v)
	}
}

func TestApplyWebhookFailureAndPending(t *testing.T) {
	f := newFixture(t)
	collectID := createOrder(t, f)

	res := deliver(t, f, webhookBody(t, 200, collectID, "PENDING", 0, ""))
	if res.Outcome != domain.OutcomeIgnored || res.Status != domain.StatusPending {
		t.Fatalf("pending delivery = %+v", res)
	}
	res = deliver(t, f, webhookBody(t, 200, collectID, "USER_DROPPED", 0, ""))
	if res.Outcome != domain.OutcomeApplied || res.Status != domain.StatusFailed {
		t.Fatalf("failure delivery = %+v", res)
	}
	v, _ := f.orders.GetStatus(context.Background(), collectID)
	if v.PaymentTime == nil {
		t.Error("payment_time should default to receipt time")
	}
}

func TestApplyWebhookUnknownOrder(t *testing.T) {
	f := newFixture(t)
	createOrder(t, f)
	body := webhookBody(t, 200, "does-not-exist", "SUCCESS", 500, "")
	p, err := DecodeWebhook(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.reconcile.ApplyWebhook(context.Background(), p, body)
	if !domain.IsKind(err, domain.KindNotFound) || res.Outcome != domain.OutcomeNotFound {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	page, _ := f.orders.ListTransactions(context.Background(), ListQuery{Statuses: []string{"success"}})
	if page.Total != 0 {
		t.Errorf("unknown order delivery mutated %d orders", page.Total)
	}
}

func TestApplyWebhookConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t)
	collectID := createOrder(t, f)
	body := webhookBody(t, 200, collectID, "SUCCESS", 500, "2025-04-23T08:14:21Z")
	p, err := DecodeWebhook(body)
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	outcomes := make(chan domain.Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.reconcile.ApplyWebhook(context.Background(), p, body)
			if err != nil {
				t.Errorf("ApplyWebhook: %v", err)
				return
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for o := range outcomes {
		switch o {
		case domain.OutcomeApplied:
			applied++
		case domain.OutcomeDuplicate:
		default:
			t.Errorf("unexpected outcome %s", o)
		}
	}
	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}
	if f.notifier.count() != 1 {
		t.Errorf("notified %d times, want 1", f.notifier.count())
	}
}

func TestApplyWebhookConcurrentConflictingDeliveries(t *testing.T) {
	f := newFixture(t)
	collectID := createOrder(t, f)
	bodies := [][]byte{
		webhookBody(t, 200, collectID, "SUCCESS", 500, "2025-04-23T08:14:21Z"),
		webhookBody(t, 400, collectID, "FAILED", 0, "2025-04-23T08:14:22Z"),
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]*ReconcileResult, len(bodies))
	for i, body := range bodies {
		p, err := DecodeWebhook(body)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(i int, p *WebhookPayload, body []byte) {
			defer wg.Done()
			<-start
			res, err := f.reconcile.ApplyWebhook(context.Background(), p, body)
			if err != nil {
				t.Errorf("ApplyWebhook: %v", err)
				return
			}
			results[i] = res
		}(i, p, body)
	}
	close(start)
	wg.Wait()

	counts := map[domain.Outcome]int{}
	var winner domain.PaymentStatus
	for _, res := range results {
		if res == nil {
			t.Fatal("missing result")
		}
		counts[res.Outcome]++
		if res.Outcome == domain.OutcomeApplied {
			winner = res.Status
		}
	}
	if counts[domain.OutcomeApplied] != 1 || counts[domain.OutcomeAnomaly] != 1 {
		t.Fatalf("outcomes = %v, want one applied and one anomaly", counts)
	}
	v, _ := f.orders.GetStatus(context.Background(), collectID)
	if v.Status != winner {
		t.Errorf("stored status %s, applied %s", v.Status, winner)
	}
	if f.notifier.count() != 1 {
		t.Errorf("notified %d times, want 1", f.notifier.count())
	}
}

func TestApplyWebhookMatchesEachReferenceInItsOwnColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.orders.CreateOrder(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	bCollect := b.Transaction.CollectRequestID

	// an order written straight to the store whose custom id equals B's collect id
	shadowCustom := bCollect
	shadow := &models.Order{
		ID:            "shadow-order",
		SchoolID:      "school-1",
		TrusteeID:     "trustee-1",
		Student:       models.StudentInfo{Name: "Ravi", ID: "STU-1", Email: "ravi@school.test"},
		GatewayName:   "edviron",
		CustomOrderID: &shadowCustom,
	}
	if err := f.repo.CreateWithStatus(ctx, shadow, &models.OrderStatus{OrderAmount: 500, Status: domain.StatusPending}); err != nil {
		t.Fatal(err)
	}

	res := deliver(t, f, webhookRefsBody(t, map[string]string{"collect_request_id": bCollect}, 200, "SUCCESS"))
	if res.Outcome != domain.OutcomeApplied || res.OrderID != b.Transaction.OrderID {
		t.Fatalf("delivery for B's collect id = %+v, want applied to %s", res, b.Transaction.OrderID)
	}
	st, err := f.repo.GetStatus(ctx, shadow.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != domain.StatusPending {
		t.Errorf("shadow order status = %s, want pending", st.Status)
	}
}

func TestApplyWebhookPrefersCustomOrderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.orders.CreateOrder(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.orders.CreateOrder(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	res := deliver(t, f, webhookRefsBody(t, map[string]string{
		"custom_order_id":    a.Transaction.CustomOrderID,
		"collect_request_id": b.Transaction.CollectRequestID,
	}, 200, "SUCCESS"))
	if res.Outcome != domain.OutcomeApplied || res.OrderID != a.Transaction.OrderID {
		t.Fatalf("result = %+v, want applied to %s", res, a.Transaction.OrderID)
	}
	vb, _ := f.orders.GetStatus(ctx, b.Transaction.OrderID)
	if vb.Status != domain.StatusPending {
		t.Errorf("collect id order status = %s, want pending", vb.Status)
	}

	// custom_order_id names nothing, so collect_request_id decides
	res = deliver(t, f, webhookRefsBody(t, map[string]string{
		"custom_order_id":    "CO-unknown",
		"collect_request_id": b.Transaction.CollectRequestID,
	}, 200, "FAILED"))
	if res.Outcome != domain.OutcomeApplied || res.OrderID != b.Transaction.OrderID || res.Status != domain.StatusFailed {
		t.Errorf("fallback result = %+v", res)
	}
}

func TestApplyWebhookWithoutReferences(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconcile.ApplyWebhook(context.Background(), &WebhookPayload{Status: 200, OrderInfo: OrderInfo{Status: "SUCCESS"}}, nil)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	stale := createOrder(t, f)
	paid := createOrder(t, f)
	deliver(t, f, webhookBody(t, 200, paid, "SUCCESS", 500, ""))

	n, err := f.reconcile.ExpireStale(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("fresh sweep n=%d err=%v", n, err)
	}
	n, err = f.reconcile.ExpireStale(context.Background(), time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("late sweep n=%d err=%v", n, err)
	}
	v, _ := f.orders.GetStatus(context.Background(), stale)
	if v.Status != domain.StatusExpired || v.ErrorMessage != "payment window elapsed" {
		t.Errorf("stale order = %+v", v)
	}
	v, _ = f.orders.GetStatus(context.Background(), paid)
	if v.Status != domain.StatusSuccess {
		t.Errorf("paid order = %+v", v)
	}

	res := deliver(t, f, webhookBody(t, 200, stale, "SUCCESS", 500, ""))
	if res.Outcome != domain.OutcomeAnomaly || res.Status != domain.StatusExpired {
		t.Errorf("late payment on expired order = %+v", res)
	}
}

func TestDecodeWebhook(t *testing.T) {
	if _, err := DecodeWebhook([]byte("{not json")); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("malformed err = %v", err)
	}
	if _, err := DecodeWebhook([]byte(`{"status":200,"order_info":{"status":"SUCCESS"}}`)); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("missing reference err = %v", err)
	}
	p, err := DecodeWebhook([]byte(`{"status":200,"order_info":{"order_id":"c1","transaction_amount":"499.50","order_amount":500}}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.OrderInfo.TransactionAmount != 499.5 || p.OrderInfo.OrderAmount != 500 {
		t.Errorf("amounts = %+v", p.OrderInfo)
	}
}

func TestMapGatewayStatus(t *testing.T) {
	cases := []struct {
		code   int
		status string
		want   domain.PaymentStatus
		ok     bool
	}{
		{200, "SUCCESS", domain.StatusSuccess, true},
		{200, "success", domain.StatusSuccess, true},
		{400, "SUCCESS", domain.StatusFailed, true},
		{200, "FAILED", domain.StatusFailed, true},
		{200, "CANCELLED", domain.StatusFailed, true},
		{200, "EXPIRED", domain.StatusExpired, true},
		{200, "PENDING", domain.StatusPending, false},
		{500, "PENDING", domain.StatusPending, false},
		{200, "SOMETHING", domain.StatusPending, false},
		{502, "SOMETHING", domain.StatusFailed, true},
	}
	for _, c := range cases {
		got, ok := mapGatewayStatus(c.code, c.status)
		if got != c.want || ok != c.ok {
			t.Errorf("mapGatewayStatus(%d, %q) = %s, %t", c.code, c.status, got, ok)
		}
	}
}
