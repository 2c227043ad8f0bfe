// Package domain contains the order aggregate: the order row, its immutable
// line items, and the payment split.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentType is the derived payment channel of an order.
type PaymentType string

const (
	PaymentCash  PaymentType = "cash"
	PaymentUPI   PaymentType = "upi"
	PaymentMixed PaymentType = "mixed"
)

// Order is a customer sale. Orders are never deleted; they accumulate line
// items and payment while unpaid and transition to paid exactly once.
type Order struct {
	ID       snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	OutletID snowflake.ID  `gorm:"not null;default:0" json:"outlet_id"`
	TableID  *snowflake.ID `gorm:"index" json:"table_id,omitempty"`

	TotalAmount float64     `gorm:"not null;default:0" json:"total_amount"`
	CashAmount  float64     `gorm:"not null;default:0" json:"cash_amount"`
	UpiAmount   float64     `gorm:"not null;default:0" json:"upi_amount"`
	PaymentType PaymentType `gorm:"type:text;not null;default:'cash'" json:"payment_type"`
	IsPaid      bool        `gorm:"not null;default:false" json:"is_paid"`

	OpenedAt *time.Time `gorm:"" json:"opened_at,omitempty"`
	ClosedAt *time.Time `gorm:"" json:"closed_at,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is one line of an order, priced at sale time. Items are only
// ever appended while the order is unpaid, never edited or removed.
type OrderItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	OrderID     snowflake.ID `gorm:"not null;index" json:"order_id"`
	ProductID   snowflake.ID `gorm:"not null;index" json:"product_id"`
	ProductName string       `gorm:"type:text;not null" json:"product_name"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	UnitPrice   float64      `gorm:"not null" json:"unit_price"`
	Subtotal    float64      `gorm:"not null" json:"subtotal"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// Aggregate is an order with its line items loaded.
type Aggregate struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}
