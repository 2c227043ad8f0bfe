// Package domain contains customer visit tracking. Visits are a best-effort
// side channel fed by order payment; losing one never fails a sale.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Visit is one paid order attributed to a customer.
type Visit struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	OrderID      snowflake.ID `gorm:"not null;uniqueIndex:ux_visit_order" json:"order_id"`
	CustomerName string       `gorm:"type:text" json:"customer_name,omitempty"`
	Phone        string       `gorm:"type:text;index" json:"phone,omitempty"`
	Amount       float64      `gorm:"not null;default:0" json:"amount"`
	VisitedAt    time.Time    `gorm:"not null" json:"visited_at"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Visit) TableName() string { return "visits" }
