package models

import "time"

// Product is a printable item offered in the storefront catalog.
type Product struct {
	ID                string    `gorm:"primaryKey;type:varchar(100)" json:"id" validate:"required,max=100"`
	Name              string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Description       string    `gorm:"type:text" json:"description"`
	PriceCents        int64     `gorm:"not null;default:0" json:"price" validate:"gte=0"`
	Size              string    `gorm:"type:varchar(50)" json:"size"`
	Material          string    `gorm:"type:varchar(100)" json:"material"`
	PrintfulVariantID string    `gorm:"type:varchar(50);not null;default:''" json:"printful_variant_id"`
	IsActive          bool      `gorm:"not null;default:true;index" json:"is_active"`
	SortOrder         int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
