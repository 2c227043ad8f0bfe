// Package domain contains the read-only product catalog consumed at sale time.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable item. The order engine snapshots name and price at
// sale time; later catalog edits never alter persisted orders or invoices.
type Product struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	SKU       string       `gorm:"type:text" json:"sku"`
	UnitPrice float64      `gorm:"not null" json:"unit_price"`
	CostPrice float64      `gorm:"not null;default:0" json:"cost_price"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
