package models

import (
	"time"

	"feeportal/internal/domain"

	"gorm.io/datatypes"
)

// WebhookEvent is the delivery log of gateway callbacks, kept for audit and replay.
type WebhookEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrderID        *string        `gorm:"size:36;index" json:"order_id"`
	Reference      string         `gorm:"size:128;index" json:"reference"`
	ReportedStatus string         `gorm:"size:32" json:"reported_status"`
	StatusCode     int            `json:"status_code"`
	SignatureValid bool           `gorm:"not null;default:false" json:"signature_valid"`
	Outcome        domain.Outcome `gorm:"size:20;not null;index" json:"outcome"`
	Detail         string         `gorm:"type:text" json:"detail"`
	Payload        datatypes.JSON `json:"payload"`
	ReceivedAt     time.Time      `gorm:"not null;index" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
