package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/repository"
	"feeportal/internal/testutil"
	"feeportal/pkg/payment"
)

func seededStore(t *testing.T) (*store, string) {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{Payment: config.PaymentConfig{PaymentExpiry: 30 * time.Minute}}
	custom := "INV-42"
	o := &models.Order{ID: "order-1", SchoolID: "school-1", TrusteeID: "t", GatewayName: "edviron", CustomOrderID: &custom,
		Student: models.StudentInfo{Name: "Asha", ID: "S1", Email: "asha@school.test"}}
	st := &models.OrderStatus{OrderAmount: 500, Status: domain.StatusPending}
	if err := repository.NewOrderRepository(db).CreateWithStatus(context.Background(), o, st); err != nil {
		t.Fatal(err)
	}
	return newStore(cfg, db), o.ID
}

func TestRunLookup(t *testing.T) {
	s, _ := seededStore(t)
	var out bytes.Buffer
	if err := runLookup(context.Background(), &out, s, "INV-42", false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"order-1", "(none)", "pending", "500.00"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	out.Reset()
	if err := runLookup(context.Background(), &out, s, "order-1", true); err != nil {
		t.Fatal(err)
	}
	var v models.OrderWithStatus
	if err := json.Unmarshal(out.Bytes(), &v); err != nil || v.CustomOrderID != "INV-42" {
		t.Errorf("json lookup = %+v err=%v", v, err)
	}
	if err := runLookup(context.Background(), &out, s, "missing", false); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestRunClear(t *testing.T) {
	s, id := seededStore(t)
	var out bytes.Buffer
	if err := runClear(context.Background(), &out, s, "school-2"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "deleted 0 orders") {
		t.Errorf("out = %q", out.String())
	}
	out.Reset()
	if err := runClear(context.Background(), &out, s, "school-1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "deleted 1 orders") {
		t.Errorf("out = %q", out.String())
	}
	if _, err := s.orders.GetStatus(context.Background(), id); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("order survived clear: %v", err)
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	if !confirm(strings.NewReader("yes\n"), &out, "go?") {
		t.Error("yes should confirm")
	}
	if confirm(strings.NewReader("\n"), &out, "go?") {
		t.Error("empty answer should abort")
	}
}

func TestPostWebhookSigns(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(payment.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	body, err := buildWebhook("COLLECT-1", "SUCCESS", 200, 500, time.Date(2025, 4, 23, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := postWebhook(context.Background(), &out, srv.URL, "whsec", body); err != nil {
		t.Fatal(err)
	}
	if !payment.VerifyWebhookSignature("whsec", gotBody, gotSig) {
		t.Error("signature does not verify")
	}
	if !bytes.Contains(gotBody, []byte(`"order_id":"COLLECT-1"`)) || !bytes.Contains(gotBody, []byte(`"payment_time":"2025-04-23T08:00:00Z"`)) {
		t.Errorf("body = %s", gotBody)
	}
}

func TestPostWebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	var out bytes.Buffer
	if err := postWebhook(context.Background(), &out, srv.URL, "whsec", []byte(`{}`)); err == nil {
		t.Error("expected error on 401")
	}
}
