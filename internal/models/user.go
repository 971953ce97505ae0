package models

import (
	"time"

	"feeportal/internal/domain"
)

// User is a dashboard operator. SCHOOL users are scoped to SchoolID.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string    `gorm:"size:255" json:"name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:20;not null;index" json:"role"` // ADMIN | SCHOOL
	SchoolID     string    `gorm:"size:64;index" json:"school_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

func (User) TableName() string {
	return "users"
}
