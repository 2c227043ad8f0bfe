package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrNotFound      = errors.New("invoice_not_found")
)

// Service allocates invoice numbers and serves the stored snapshots.
type Service interface {
	// Allocate cuts an invoice for an order, paid or not. Calling it again
	// for the same order returns the stored invoice unchanged.
	Allocate(ctx context.Context, orderID snowflake.ID) (*Aggregate, error)

	GetByOrder(ctx context.Context, orderID snowflake.ID) (*Aggregate, error)
	List(ctx context.Context, period string) ([]Invoice, error)

	// AttachDocument records the rendered document location.
	AttachDocument(ctx context.Context, invoiceID snowflake.ID, ref string) error
}
