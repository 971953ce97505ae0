package repository

import (
	"context"
	"time"

	"feeportal/internal/domain"
	"feeportal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// StatusTransition is the set of gateway-reported fields written when an
// order leaves pending.
type StatusTransition struct {
	To                domain.PaymentStatus
	TransactionAmount float64
	PaymentMode       string
	PaymentDetails    string
	BankReference     string
	PaymentMessage    string
	ErrorMessage      string
	PaymentTime       *time.Time
}

// TransactionFilter narrows and orders the dashboard listing.
type TransactionFilter struct {
	Statuses  []domain.PaymentStatus
	SchoolIDs []string
	From      *time.Time
	To        *time.Time
	SortField string
	Desc      bool
	Page      int
	Limit     int
}

// CreateWithStatus writes the order and its status in one transaction.
func (r *OrderRepository) CreateWithStatus(ctx context.Context, o *models.Order, s *models.OrderStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return err
		}
		s.OrderID = o.ID
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		o.Status = s
		return nil
	})
}

func (r *OrderRepository) withStatus(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Joins("Status")
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.withStatus(ctx).Where("orders.id = ?", id).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByCustomOrderID(ctx context.Context, customID string) (*models.Order, error) {
	var o models.Order
	err := r.withStatus(ctx).Where("orders.custom_order_id = ?", customID).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetByCollectRequestID(ctx context.Context, collectID string) (*models.Order, error) {
	var o models.Order
	err := r.withStatus(ctx).Where("orders.collect_request_id = ?", collectID).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ReferenceInUse reports whether ref is already taken as an order id, a
// custom order id or a collect request id. The three namespaces stay
// disjoint so a lookup by any one of them reaches a single order.
func (r *OrderRepository) ReferenceInUse(ctx context.Context, ref string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? OR custom_order_id = ? OR collect_request_id = ?", ref, ref, ref).
		Count(&n).Error
	return n > 0, err
}

// SetCollectRequest records the gateway's collect request on an order that
// does not have one yet. Reports false when another writer got there first.
func (r *OrderRepository) SetCollectRequest(ctx context.Context, orderID, collectID, redirectURL string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND collect_request_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"collect_request_id": collectID,
			"redirect_url":       redirectURL,
			"updated_at":         time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *OrderRepository) GetStatus(ctx context.Context, orderID string) (*models.OrderStatus, error) {
	var s models.OrderStatus
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TransitionStatus moves the order's status out of pending. It is a
// compare-and-set on status = pending: false means the row was no longer
// pending and nothing was written.
func (r *OrderRepository) TransitionStatus(ctx context.Context, orderID string, t StatusTransition) (bool, error) {
	updates := map[string]interface{}{
		"status":             t.To,
		"transaction_amount": t.TransactionAmount,
		"payment_mode":       t.PaymentMode,
		"payment_details":    t.PaymentDetails,
		"bank_reference":     t.BankReference,
		"payment_message":    t.PaymentMessage,
		"error_message":      t.ErrorMessage,
		"payment_time":       t.PaymentTime,
		"updated_at":         time.Now(),
	}
	res := r.db.WithContext(ctx).Model(&models.OrderStatus{}).
		Where("order_id = ? AND status = ?", orderID, domain.StatusPending).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ListStalePending returns ids of pending orders created before cutoff.
func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.OrderStatus{}).
		Joins("JOIN orders ON orders.id = order_statuses.order_id").
		Where("order_statuses.status = ? AND orders.created_at < ?", domain.StatusPending, cutoff).
		Order("orders.created_at").
		Limit(limit).
		Pluck("order_statuses.order_id", &ids).Error
	return ids, err
}

func (r *OrderRepository) applyFilter(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if len(f.Statuses) > 0 {
		sub := r.db.Model(&models.OrderStatus{}).Select("order_id").Where("status IN ?", f.Statuses)
		q = q.Where("orders.id IN (?)", sub)
	}
	if len(f.SchoolIDs) > 0 {
		q = q.Where("orders.school_id IN ?", f.SchoolIDs)
	}
	if f.From != nil {
		q = q.Where("orders.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("orders.created_at <= ?", *f.To)
	}
	return q
}

func sortColumn(field string) clause.Column {
	switch field {
	case "payment_time", "transaction_amount", "order_amount", "status":
		return clause.Column{Table: "Status", Name: field}
	default:
		return clause.Column{Table: "orders", Name: "created_at"}
	}
}

// List returns one page of orders with their statuses plus the total match count.
func (r *OrderRepository) List(ctx context.Context, f TransactionFilter) ([]models.Order, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.Order{}), f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := r.applyFilter(r.withStatus(ctx), f).
		Order(clause.OrderByColumn{Column: sortColumn(f.SortField), Desc: f.Desc}).
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		Find(&orders).Error
	return orders, total, err
}

// DeleteBySchool removes orders, their statuses and webhook log for schoolID, or every
// order when schoolID is empty. Returns the number of orders removed.
func (r *OrderRepository) DeleteBySchool(ctx context.Context, schoolID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := tx.Model(&models.Order{}).Select("id")
		if schoolID != "" {
			orders = orders.Where("school_id = ?", schoolID)
		}
		if err := tx.Where("order_id IN (?)", orders).Delete(&models.WebhookEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id IN (?)", orders).Delete(&models.OrderStatus{}).Error; err != nil {
			return err
		}
		del := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if schoolID != "" {
			del = del.Where("school_id = ?", schoolID)
		}
		res := del.Delete(&models.Order{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
