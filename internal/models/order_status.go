package models

import (
	"time"

	"feeportal/internal/domain"
)

// OrderStatus is owned by exactly one Order. Only the reconciliation
// service writes it after creation.
type OrderStatus struct {
	ID                uint                 `gorm:"primaryKey" json:"-"`
	OrderID           string               `gorm:"size:36;not null;uniqueIndex" json:"order_id"`
	OrderAmount       float64              `gorm:"type:decimal(12,2);not null" json:"order_amount"`
	TransactionAmount float64              `gorm:"type:decimal(12,2);not null;default:0" json:"transaction_amount"`
	PaymentMode       string               `gorm:"size:64" json:"payment_mode"`
	PaymentDetails    string               `gorm:"type:text" json:"payment_details"`
	BankReference     string               `gorm:"size:255" json:"bank_reference"`
	PaymentMessage    string               `gorm:"type:text" json:"payment_message"`
	Status            domain.PaymentStatus `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage      string               `gorm:"type:text" json:"error_message"`
	PaymentTime       *time.Time           `json:"payment_time"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func (OrderStatus) TableName() string {
	return "order_statuses"
}
