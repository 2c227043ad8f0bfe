package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidTenant = errors.New("invalid_tenant")

// VisitRequest records a paid order against a customer. Name and Phone come
// from the order metadata and may both be empty.
type VisitRequest struct {
	OrderID      snowflake.ID `json:"order_id"`
	CustomerName string       `json:"customer_name,omitempty"`
	Phone        string       `json:"phone,omitempty"`
	Amount       float64      `json:"amount"`
}

// Service records and lists customer visits.
type Service interface {
	// RecordVisit is idempotent per order; recording the same order twice
	// keeps the first visit.
	RecordVisit(ctx context.Context, req VisitRequest) error
	ListByPhone(ctx context.Context, phone string) ([]Visit, error)
}
