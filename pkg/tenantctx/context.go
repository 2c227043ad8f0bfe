package tenantctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// TenantKey is the request context key for the active tenant ID.
type TenantKey struct{}

// BranchKey is the request context key for the active branch ID, if any.
type BranchKey struct{}

// OutletKey is the request context key for the active outlet ID.
type OutletKey struct{}

// WithTenantID stores the tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID snowflake.ID) context.Context {
	return context.WithValue(ctx, TenantKey{}, tenantID)
}

// WithBranchID stores the branch ID in the context.
func WithBranchID(ctx context.Context, branchID snowflake.ID) context.Context {
	return context.WithValue(ctx, BranchKey{}, branchID)
}

// WithOutletID stores the outlet ID in the context.
func WithOutletID(ctx context.Context, outletID snowflake.ID) context.Context {
	return context.WithValue(ctx, OutletKey{}, outletID)
}

// TenantID returns the tenant ID from context, if set.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, TenantKey{})
}

// BranchID returns the branch ID from context, if set.
func BranchID(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, BranchKey{})
}

// OutletID returns the outlet ID from context, if set.
func OutletID(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, OutletKey{})
}

func idFromContext(ctx context.Context, key any) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(key)
	if value == nil {
		return 0, false
	}

	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
