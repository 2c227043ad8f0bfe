package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrNotFound            = errors.New("order_not_found")
	ErrInvalidItems        = errors.New("invalid_items")
	ErrTotalMismatch       = errors.New("total_mismatch")
	ErrNegativePayment     = errors.New("negative_payment")
	ErrPaymentExceedsTotal = errors.New("payment_exceeds_total")
	ErrOrderPaid           = errors.New("order_already_paid")
	ErrInvalidPayment      = errors.New("invalid_payment")
)

// LineItemRequest is one requested order line. UnitPrice is the price the
// client saw; it is snapshotted onto the item, not re-read from catalog.
type LineItemRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int64        `json:"quantity"`
	UnitPrice float64      `json:"unit_price"`
}

// CreateOrderRequest opens a new order. The declared TotalAmount must match
// the sum of line subtotals; payment may be supplied as a cash/upi split or
// via the legacy single-channel PaymentType field.
type CreateOrderRequest struct {
	Items       []LineItemRequest `json:"items"`
	TotalAmount float64           `json:"total_amount"`
	CashAmount  *float64          `json:"cash_amount,omitempty"`
	UpiAmount   *float64          `json:"upi_amount,omitempty"`
	PaymentType *PaymentType      `json:"payment_type,omitempty"`
	TableID     *snowflake.ID     `json:"table_id,omitempty"`
	IsPaid      *bool             `json:"is_paid,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
}

// AddItemsRequest appends lines to an existing unpaid order.
type AddItemsRequest struct {
	OrderID snowflake.ID      `json:"order_id"`
	Items   []LineItemRequest `json:"items"`
}

// UpdateOrderRequest patches the payment split of an order. Supplied
// amounts replace the stored ones outright.
type UpdateOrderRequest struct {
	OrderID     snowflake.ID `json:"order_id"`
	CashAmount  *float64     `json:"cash_amount,omitempty"`
	UpiAmount   *float64     `json:"upi_amount,omitempty"`
	PaymentType *PaymentType `json:"payment_type,omitempty"`
	IsPaid      *bool        `json:"is_paid,omitempty"`
}

// ListRequest filters the tenant's orders.
type ListRequest struct {
	IsPaid  *bool         `json:"is_paid,omitempty"`
	TableID *snowflake.ID `json:"table_id,omitempty"`
}

// Service manages the order lifecycle.
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Aggregate, error)
	AddItems(ctx context.Context, req AddItemsRequest) (*Aggregate, error)
	Update(ctx context.Context, req UpdateOrderRequest) (*Aggregate, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Aggregate, error)
	List(ctx context.Context, req ListRequest) ([]Order, error)
}
