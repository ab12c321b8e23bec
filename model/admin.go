package model

import "time"

// AdminUser is an operator account for the administrative surface.
type AdminUser struct {
	ID        string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Username  string     `json:"username" gorm:"uniqueIndex;not null;size:50"`
	Password  string     `json:"-" gorm:"not null"`
	IsActive  bool       `json:"is_active" gorm:"default:true;not null"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null"`
}
