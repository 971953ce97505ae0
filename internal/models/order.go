package models

import (
	"time"

	"feeportal/internal/domain"
)

type StudentInfo struct {
	Name  string `gorm:"size:255;not null" json:"name"`
	ID    string `gorm:"size:64;not null" json:"id"`
	Email string `gorm:"size:255;not null" json:"email"`
}

// Order is the aggregate root of a payment intent. Its OrderStatus is
// created in the same transaction and deleted with it.
type Order struct {
	ID               string      `gorm:"primaryKey;size:36" json:"id"`
	SchoolID         string      `gorm:"size:64;not null;index" json:"school_id"`
	TrusteeID        string      `gorm:"size:64;not null;index" json:"trustee_id"`
	Student          StudentInfo `gorm:"embedded;embeddedPrefix:student_" json:"student_info"`
	GatewayName      string      `gorm:"size:64;not null" json:"gateway_name"`
	CustomOrderID    *string     `gorm:"size:128;uniqueIndex" json:"custom_order_id"`    // nil never collides on the unique index
	CollectRequestID *string     `gorm:"size:128;uniqueIndex" json:"collect_request_id"` // nil until the gateway issues one
	RedirectURL      string      `gorm:"size:1024" json:"redirect_url,omitempty"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`

	Status *OrderStatus `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"status,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderWithStatus is the merged read model served to the dashboard and to pollers.
type OrderWithStatus struct {
	OrderID           string               `json:"order_id"`
	CollectRequestID  string               `json:"collect_request_id,omitempty"`
	CustomOrderID     string               `json:"custom_order_id,omitempty"`
	SchoolID          string               `json:"school_id"`
	TrusteeID         string               `json:"trustee_id"`
	StudentInfo       StudentInfo          `json:"student_info"`
	Gateway           string               `json:"gateway"`
	OrderAmount       float64              `json:"order_amount"`
	TransactionAmount float64              `json:"transaction_amount"`
	PaymentMode       string               `json:"payment_mode,omitempty"`
	PaymentDetails    string               `json:"payment_details,omitempty"`
	BankReference     string               `json:"bank_reference,omitempty"`
	PaymentMessage    string               `json:"payment_message,omitempty"`
	Status            domain.PaymentStatus `json:"status"`
	ErrorMessage      string               `json:"error_message,omitempty"`
	PaymentTime       *time.Time           `json:"payment_time,omitempty"`
	RedirectURL       string               `json:"redirect_url,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// View merges o with its preloaded status. o.Status must be loaded.
func (o *Order) View() OrderWithStatus {
	v := OrderWithStatus{
		OrderID:     o.ID,
		SchoolID:    o.SchoolID,
		TrusteeID:   o.TrusteeID,
		StudentInfo: o.Student,
		Gateway:     o.GatewayName,
		RedirectURL: o.RedirectURL,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.CustomOrderID != nil {
		v.CustomOrderID = *o.CustomOrderID
	}
	if o.CollectRequestID != nil {
		v.CollectRequestID = *o.CollectRequestID
	}
	if s := o.Status; s != nil {
		v.OrderAmount = s.OrderAmount
		v.TransactionAmount = s.TransactionAmount
		v.PaymentMode = s.PaymentMode
		v.PaymentDetails = s.PaymentDetails
		v.BankReference = s.BankReference
		v.PaymentMessage = s.PaymentMessage
		v.Status = s.Status
		v.ErrorMessage = s.ErrorMessage
		v.PaymentTime = s.PaymentTime
		if s.UpdatedAt.After(v.UpdatedAt) {
			v.UpdatedAt = s.UpdatedAt
		}
	}
	return v
}
