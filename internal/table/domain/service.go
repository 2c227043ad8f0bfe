package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrNotFound       = errors.New("table_not_found")
	ErrInvalidStatus  = errors.New("invalid_table_status")
	ErrNotAvailable   = errors.New("table_not_available")
	ErrInactive       = errors.New("table_inactive")
	ErrHasOpenOrders  = errors.New("table_has_open_orders")
	ErrNoOpenOrders   = errors.New("table_has_no_open_orders")
	ErrMergeDisabled  = errors.New("table_merge_disabled")
	ErrTablesDisabled = errors.New("tables_disabled")
)

type CreateRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Area     string `json:"area"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Table, error)
	List(ctx context.Context) ([]Table, error)
	GetByID(ctx context.Context, id snowflake.ID) (Table, error)

	// SetStatus applies a direct administrative transition. OCCUPIED is
	// rejected while no unpaid order is bound; AVAILABLE is rejected while
	// one still is. The remaining states are unconditional.
	SetStatus(ctx context.Context, tableID snowflake.ID, requested Status) (Table, error)

	// Deactivate soft-deletes a table with no unpaid orders bound.
	Deactivate(ctx context.Context, tableID snowflake.ID) error

	// Switch rebinds an unpaid order to another table and frees the old
	// one if it was the last order there.
	Switch(ctx context.Context, orderID, fromTableID, toTableID snowflake.ID) error

	// Merge moves every unpaid order from the source tables onto target
	// and retires the sources. Feature-gated per tenant.
	Merge(ctx context.Context, sourceIDs []snowflake.ID, targetID snowflake.ID) error

	// BindTx marks a table OCCUPIED for an order inside a caller-owned
	// transaction. Allowed from AVAILABLE or RESERVED, or when the order
	// is already bound to this table.
	BindTx(ctx context.Context, tx *gorm.DB, tenantID, tableID, orderID snowflake.ID) error

	// UnbindIfLastTx frees the table when no unpaid order other than
	// exceptOrderID still references it. Reports whether it freed.
	UnbindIfLastTx(ctx context.Context, tx *gorm.DB, tenantID, tableID, exceptOrderID snowflake.ID) (bool, error)
}
