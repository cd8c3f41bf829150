package models

import (
	"fmt"
	"time"
)

// Order status values. The lifecycle runs
// pending -> paid -> processing -> shipped -> delivered; pending and paid
// orders may be cancelled, a rejected fulfillment marks the order failed.
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusFailed     = "failed"
)

// Order is one row of the order ledger, keyed by the checkout session id.
type Order struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StripeSessionID string     `gorm:"type:varchar(255);not null;uniqueIndex:ux_orders_stripe_session_id" json:"stripe_session_id"`
	ExternalID      string     `gorm:"type:varchar(32);not null;default:'';index" json:"external_id"`
	UserID          string     `gorm:"type:varchar(255);not null;index" json:"user_id"`
	MemoryID        uint       `gorm:"not null;index" json:"memory_id"`
	ProductID       string     `gorm:"type:varchar(100);not null" json:"product_id"`
	PrintfulOrderID *string    `gorm:"type:varchar(255);default:null" json:"printful_order_id,omitempty"`
	CustomerEmail   string     `gorm:"type:varchar(255);not null;default:''" json:"customer_email"`
	CustomerName    string     `gorm:"type:varchar(255);not null;default:''" json:"customer_name"`
	Quantity        int        `gorm:"not null;default:1" json:"quantity"`
	UnitPrice       int64      `gorm:"not null;default:0" json:"unit_price"`
	TotalPrice      int64      `gorm:"not null;default:0" json:"total_price"`
	AmountPaid      int64      `gorm:"not null;default:0" json:"amount_paid"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	LeaseExpiresAt  *time.Time `gorm:"default:null" json:"-"`
	CancelledBy     string     `gorm:"type:varchar(255);not null;default:''" json:"cancelled_by,omitempty"`
	CancelReason    string     `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time `gorm:"default:null" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsCancellable reports whether an admin may still cancel the order.
func (o *Order) IsCancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPaid
}

// ShortNumber is the human facing order number shown in the admin list.
func (o *Order) ShortNumber() string {
	if len(o.StripeSessionID) <= 8 {
		return o.StripeSessionID
	}
	return o.StripeSessionID[len(o.StripeSessionID)-8:]
}

func (o *Order) ProviderOrderID() string {
	if o.PrintfulOrderID == nil {
		return ""
	}
	return *o.PrintfulOrderID
}

// FormatPrice renders cents as a dollar amount, e.g. 2499 -> "$24.99".
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
