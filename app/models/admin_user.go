package models

import "time"

// AdminUser grants admin rights to an identity from the external auth provider.
type AdminUser struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FirebaseUID string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"firebase_uid"`
	Email       string    `gorm:"type:varchar(255);not null;default:''" json:"email"`
	IsAdmin     bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}
