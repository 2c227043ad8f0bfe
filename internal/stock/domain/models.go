// Package domain contains the authoritative stock quantity store.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StockRecord is the quantity on hand for one product at one outlet.
// An absent row is semantically quantity 0 and is materialized lazily.
type StockRecord struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_stock_product_outlet" json:"tenant_id"`
	ProductID snowflake.ID `gorm:"not null;uniqueIndex:ux_stock_product_outlet" json:"product_id"`
	OutletID  snowflake.ID `gorm:"not null;uniqueIndex:ux_stock_product_outlet" json:"outlet_id"`
	Quantity  int64        `gorm:"not null;default:0" json:"quantity"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (StockRecord) TableName() string { return "stock_records" }
