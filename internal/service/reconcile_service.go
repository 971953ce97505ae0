package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const expireBatchSize = 500

// ReconcileResult describes what one webhook delivery did.
type ReconcileResult struct {
	Outcome domain.Outcome       `json:"outcome"`
	OrderID string               `json:"order_id,omitempty"`
	Status  domain.PaymentStatus `json:"status,omitempty"`
}

// ReconcileService is the only writer of OrderStatus after creation.
type ReconcileService struct {
	orders   *repository.OrderRepository
	events   *repository.WebhookEventRepository
	notifier StatusNotifier
	expiry   time.Duration
	now      func() time.Time
}

func NewReconcileService(orders *repository.OrderRepository, events *repository.WebhookEventRepository, notifier StatusNotifier, expiry time.Duration) *ReconcileService {
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	return &ReconcileService{orders: orders, events: events, notifier: notifier, expiry: expiry, now: time.Now}
}

// findOrder resolves a delivery field by field. custom_order_id only
// matches custom order ids and collect_request_id only collect request ids.
// The bare order_id is the gateway's reference and is tried last, against
// collect ids, then custom ids, then local order ids.
func (s *ReconcileService) findOrder(ctx context.Context, info OrderInfo) (*models.Order, error) {
	candidates := []struct {
		ref     string
		lookups []orderLookup
	}{
		{info.CustomOrderID, []orderLookup{s.orders.GetByCustomOrderID}},
		{info.CollectRequestID, []orderLookup{s.orders.GetByCollectRequestID}},
		{info.OrderID, []orderLookup{s.orders.GetByCollectRequestID, s.orders.GetByCustomOrderID, s.orders.GetByID}},
	}
	for _, c := range candidates {
		ref := strings.TrimSpace(c.ref)
		if ref == "" {
			continue
		}
		o, err := firstMatch(ctx, ref, c.lookups...)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return o, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ApplyWebhook reconciles one verified delivery against the stored order.
// Terminal statuses are never overwritten, and a redelivery of the applied
// outcome changes nothing.
func (s *ReconcileService) ApplyWebhook(ctx context.Context, p *WebhookPayload, raw []byte) (*ReconcileResult, error) {
	info := p.OrderInfo
	refs := p.References()
	if len(refs) == 0 {
		return nil, domain.ValidationError("webhook payload has no order reference")
	}
	event := &models.WebhookEvent{
		Reference:      refs[0],
		ReportedStatus: info.Status,
		StatusCode:     p.Status,
		SignatureValid: true,
		ReceivedAt:     s.now(),
	}
	if json.Valid(raw) {
		event.Payload = datatypes.JSON(raw)
	}

	order, err := s.findOrder(ctx, info)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		event.Outcome = domain.OutcomeNotFound
		event.Detail = fmt.Sprintf("no order for references %v", refs)
		s.record(ctx, event)
		log.Printf("[webhook] no order for references %v", refs)
		return &ReconcileResult{Outcome: domain.OutcomeNotFound}, domain.NotFoundError("order not found")
	}
	if err != nil {
		return nil, domain.StoreError("could not load order", err)
	}
	orderID := order.ID
	event.OrderID = &orderID
	res := &ReconcileResult{OrderID: orderID}

	target, actionable := mapGatewayStatus(p.Status, info.Status)
	paymentTime := parsePaymentTime(info.PaymentTime)

	current := domain.StatusPending
	if order.Status != nil {
		current = order.Status.Status
	}
	if current.IsTerminal() {
		s.settleTerminal(res, event, order.Status, target, actionable, paymentTime)
		s.record(ctx, event)
		return res, nil
	}
	if !actionable {
		res.Outcome, res.Status = domain.OutcomeIgnored, current
		event.Outcome = domain.OutcomeIgnored
		event.Detail = "intermediate status " + info.Status
		s.record(ctx, event)
		return res, nil
	}

	if paymentTime == nil {
		t := s.now().UTC()
		paymentTime = &t
	}
	applied, err := s.orders.TransitionStatus(ctx, orderID, repository.StatusTransition{
		To:                target,
		TransactionAmount: float64(info.TransactionAmount),
		PaymentMode:       info.PaymentMode,
		PaymentDetails:    info.PaymentDetails,
		BankReference:     info.BankReference,
		PaymentMessage:    info.PaymentMessage,
		ErrorMessage:      info.ErrorMessage,
		PaymentTime:       paymentTime,
	})
	if err != nil {
		return nil, domain.StoreError("could not update payment status", err)
	}
	if !applied {
		// lost the race to another writer
		st, err := s.orders.GetStatus(ctx, orderID)
		if err != nil {
			return nil, domain.StoreError("could not reload payment status", err)
		}
		s.settleTerminal(res, event, st, target, actionable, parsePaymentTime(info.PaymentTime))
		s.record(ctx, event)
		return res, nil
	}

	res.Outcome, res.Status = domain.OutcomeApplied, target
	event.Outcome = domain.OutcomeApplied
	event.Detail = fmt.Sprintf("%s -> %s", current, target)
	s.record(ctx, event)
	log.Printf("[webhook] order_id=%s %s -> %s amount=%.2f", orderID, current, target, float64(info.TransactionAmount))
	s.publish(ctx, orderID)
	return res, nil
}

// settleTerminal classifies a delivery against a status that is already final.
func (s *ReconcileService) settleTerminal(res *ReconcileResult, event *models.WebhookEvent, st *models.OrderStatus, target domain.PaymentStatus, actionable bool, paymentTime *time.Time) {
	res.Status = st.Status
	switch {
	case !actionable:
		res.Outcome = domain.OutcomeIgnored
		event.Detail = fmt.Sprintf("intermediate status %q after %s", event.ReportedStatus, st.Status)
	case target == st.Status:
		res.Outcome = domain.OutcomeDuplicate
		event.Detail = "redelivery of " + string(st.Status)
	default:
		res.Outcome = domain.OutcomeAnomaly
		later := paymentTime != nil && st.PaymentTime != nil && paymentTime.After(*st.PaymentTime)
		event.Detail = fmt.Sprintf("reported %s for %s order, later_payment_time=%t", target, st.Status, later)
		log.Printf("[webhook] anomaly order_id=%s stored=%s reported=%s later_payment_time=%t", st.OrderID, st.Status, target, later)
	}
	event.Outcome = res.Outcome
}

// RecordRejected logs a delivery whose signature did not verify.
func (s *ReconcileService) RecordRejected(ctx context.Context, raw []byte, detail string) {
	event := &models.WebhookEvent{
		Outcome:    domain.OutcomeRejected,
		Detail:     detail,
		ReceivedAt: s.now(),
	}
	if p, err := DecodeWebhook(raw); err == nil {
		event.Reference = p.References()[0]
		event.ReportedStatus = p.OrderInfo.Status
		event.StatusCode = p.Status
	}
	if json.Valid(raw) {
		event.Payload = datatypes.JSON(raw)
	}
	s.record(ctx, event)
}

func (s *ReconcileService) record(ctx context.Context, e *models.WebhookEvent) {
	if err := s.events.Create(context.WithoutCancel(ctx), e); err != nil {
		log.Printf("[webhook] failed to record delivery ref=%s outcome=%s: %v", e.Reference, e.Outcome, err)
	}
}

func (s *ReconcileService) publish(ctx context.Context, orderID string) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		log.Printf("[webhook] reload for fan-out failed order_id=%s: %v", orderID, err)
		return
	}
	s.notifier.StatusChanged(ctx, o.View())
}

// ExpireStale moves pending orders older than the payment window to
// expired. It returns how many orders it moved.
func (s *ReconcileService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	if s.expiry <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.expiry)
	ids, err := s.orders.ListStalePending(ctx, cutoff, expireBatchSize)
	if err != nil {
		return 0, domain.StoreError("could not list stale orders", err)
	}
	expired := 0
	for _, id := range ids {
		ok, err := s.orders.TransitionStatus(ctx, id, repository.StatusTransition{
			To:           domain.StatusExpired,
			ErrorMessage: "payment window elapsed",
		})
		if err != nil {
			return expired, domain.StoreError("could not expire order", err)
		}
		if !ok {
			continue
		}
		expired++
		s.publish(ctx, id)
	}
	if expired > 0 {
		log.Printf("[sweeper] expired %d pending orders created before %s", expired, cutoff.Format(time.RFC3339))
	}
	return expired, nil
}

// RunExpirySweeper calls ExpireStale every interval until ctx is done.
func (s *ReconcileService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.expiry <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx, s.now()); err != nil {
				log.Printf("[sweeper] sweep failed: %v", err)
			}
		}
	}
}
