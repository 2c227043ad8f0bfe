// Package domain contains per-tenant configuration read by the order engine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResetCycle controls when invoice serials restart.
type ResetCycle string

const (
	ResetNever   ResetCycle = "never"
	ResetMonthly ResetCycle = "monthly"
	ResetYearly  ResetCycle = "yearly"
)

// TenantSettings holds one tenant's behavior toggles. Absent rows fall back
// to Defaults().
type TenantSettings struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;uniqueIndex" json:"tenant_id"`

	EnableTables           bool `gorm:"not null;default:true" json:"enable_tables"`
	AutoFreeTableOnPayment bool `gorm:"not null;default:true" json:"auto_free_table_on_payment"`
	AllowTableMerge        bool `gorm:"not null;default:false" json:"allow_table_merge"`

	InvoiceResetCycle   ResetCycle `gorm:"type:text;not null;default:'monthly'" json:"invoice_reset_cycle"`
	InvoicePrefix       string     `gorm:"type:text;not null;default:'INV'" json:"invoice_prefix"`
	InvoicePadding      int        `gorm:"not null;default:4" json:"invoice_padding"`
	InvoiceBranchPrefix bool       `gorm:"not null;default:false" json:"invoice_branch_prefix"`
	BranchCode          string     `gorm:"type:text" json:"branch_code"`

	GSTEnabled bool    `gorm:"not null;default:false" json:"gst_enabled"`
	TaxRate    float64 `gorm:"not null;default:0" json:"tax_rate"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TenantSettings) TableName() string { return "tenant_settings" }

// Defaults returns the settings applied when a tenant has no stored row.
func Defaults(tenantID snowflake.ID) TenantSettings {
	return TenantSettings{
		TenantID:               tenantID,
		EnableTables:           true,
		AutoFreeTableOnPayment: true,
		AllowTableMerge:        false,
		InvoiceResetCycle:      ResetMonthly,
		InvoicePrefix:          "INV",
		InvoicePadding:         4,
	}
}
