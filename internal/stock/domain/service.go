package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrNegativeQuantity = errors.New("negative_quantity")
)

// ShortageError reports an adjustment that would take stock below zero.
// It names the short product so callers can render a specific message.
type ShortageError struct {
	ProductID   snowflake.ID
	ProductName string
	Available   int64
	Requested   int64
}

func (e *ShortageError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID.String()
	}
	return fmt.Sprintf("insufficient stock for %s: have %d, need %d", name, e.Available, e.Requested)
}

type AdjustRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	OutletID  snowflake.ID `json:"outlet_id"`
	Delta     int64        `json:"delta"`
}

type SetRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	OutletID  snowflake.ID `json:"outlet_id"`
	Quantity  int64        `json:"quantity"`
}

type LowStockRequest struct {
	Threshold int64 `json:"threshold"`
}

type Service interface {
	// Get reads the current quantity; absent rows read as zero.
	Get(ctx context.Context, productID, outletID snowflake.ID) (StockRecord, error)

	// Adjust applies a delta in its own transaction, holding the row lock
	// for the whole read-compute-write sequence. It never lets quantity go
	// negative; a shortage aborts with *ShortageError.
	Adjust(ctx context.Context, req AdjustRequest) (StockRecord, error)

	// Set assigns an absolute quantity; negative input is rejected.
	Set(ctx context.Context, req SetRequest) (StockRecord, error)

	// LowStock returns records strictly below the threshold. Pure read,
	// used for alerting only; order admission relies on Adjust.
	LowStock(ctx context.Context, req LowStockRequest) ([]StockRecord, error)

	// AdjustTx is Adjust running inside a caller-owned transaction, so
	// order creation can decrement every line item atomically with the
	// order insert. Returns the new quantity.
	AdjustTx(ctx context.Context, tx *gorm.DB, tenantID, productID, outletID snowflake.ID, delta int64) (int64, error)
}
