// Package domain contains invoice allocation: gapless per-period serial
// counters and the immutable invoice snapshot cut from an order.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Counter is one tenant's serial counter for one period. Serial holds the
// last allocated value; the row is created on first use.
type Counter struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_counter_scope" json:"tenant_id"`
	Branch    string       `gorm:"type:text;not null;default:'';uniqueIndex:ux_counter_scope" json:"branch"`
	Period    string       `gorm:"type:text;not null;uniqueIndex:ux_counter_scope" json:"period"`
	Serial    int64        `gorm:"not null;default:0" json:"serial"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Counter) TableName() string { return "invoice_counters" }

// Invoice is the fiscal snapshot of an order. Amounts and lines are frozen
// at allocation time and never follow later catalog edits.
type Invoice struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	OrderID  snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_order" json:"order_id"`

	Number string `gorm:"type:text;not null;index" json:"number"`
	Period string `gorm:"type:text;not null" json:"period"`
	Serial int64  `gorm:"not null" json:"serial"`

	Subtotal    float64 `gorm:"not null" json:"subtotal"`
	TaxRate     float64 `gorm:"not null;default:0" json:"tax_rate"`
	TaxAmount   float64 `gorm:"not null;default:0" json:"tax_amount"`
	Discount    float64 `gorm:"not null;default:0" json:"discount"`
	TotalAmount float64 `gorm:"not null" json:"total_amount"`

	DocumentRef string    `gorm:"type:text" json:"document_ref,omitempty"`
	IssuedAt    time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Line is one snapshotted invoice line.
type Line struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	ProductName string       `gorm:"type:text;not null" json:"product_name"`
	Quantity    int64        `gorm:"not null" json:"quantity"`
	UnitPrice   float64      `gorm:"not null" json:"unit_price"`
	TaxAmount   float64      `gorm:"not null;default:0" json:"tax_amount"`
	Subtotal    float64      `gorm:"not null" json:"subtotal"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Line) TableName() string { return "invoice_lines" }

// Aggregate is an invoice with its lines loaded.
type Aggregate struct {
	Invoice Invoice `json:"invoice"`
	Lines   []Line  `json:"lines"`
}
