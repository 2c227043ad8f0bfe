package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrNotFound      = errors.New("product_not_found")
)

type Service interface {
	// LookupByIDs resolves products within the caller's tenant scope.
	// Any id that is missing or belongs to another tenant yields ErrNotFound.
	LookupByIDs(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Product, error)
	List(ctx context.Context) ([]Product, error)
}
