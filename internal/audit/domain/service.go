package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var ErrInvalidTenant = errors.New("invalid_tenant")

// Service writes audit entries. Record is best effort: failures are logged
// by the implementation and never propagated to the business operation.
type Service interface {
	Record(ctx context.Context, action string, entityID snowflake.ID, metadata datatypes.JSONMap)
	List(ctx context.Context, action string) ([]Entry, error)
}
