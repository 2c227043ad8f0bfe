package domain

import (
	"context"
	"errors"
)

var ErrInvalidTenant = errors.New("invalid_tenant")

type Service interface {
	// Get returns the tenant's settings, falling back to Defaults()
	// when no row exists.
	Get(ctx context.Context) (TenantSettings, error)
	Update(ctx context.Context, settings TenantSettings) (TenantSettings, error)
}
