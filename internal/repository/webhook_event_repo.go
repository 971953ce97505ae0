package repository

import (
	"context"

	"feeportal/internal/models"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, e *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListByOrder returns deliveries for orderID, newest first.
func (r *WebhookEventRepository) ListByOrder(ctx context.Context, orderID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("received_at DESC, id DESC").Find(&events).Error
	return events, err
}
