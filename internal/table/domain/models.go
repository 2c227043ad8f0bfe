// Package domain contains the dining table model and its occupancy states.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is a table's occupancy state.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOccupied  Status = "OCCUPIED"
	StatusReserved  Status = "RESERVED"
	StatusCleaning  Status = "CLEANING"
	StatusBlocked   Status = "BLOCKED"
)

// Valid reports whether the status is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusCleaning, StatusBlocked:
		return true
	default:
		return false
	}
}

// Table is a dining table. Orders hold a weak reference to the table; the
// table never owns orders.
type Table struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Capacity  int          `gorm:"not null;default:2" json:"capacity"`
	Area      string       `gorm:"type:text" json:"area"`
	Status    Status       `gorm:"type:text;not null;default:'AVAILABLE'" json:"status"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Table) TableName() string { return "dining_tables" }
