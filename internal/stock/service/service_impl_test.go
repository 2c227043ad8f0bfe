package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/opencounter/opencounter/internal/clock"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, context.Context) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stockdomain.StockRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	}

	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	return svc, db, ctx
}

func TestAdjustMaterializesZeroRow(t *testing.T) {
	svc, _, ctx := newTestService(t)
	productID := svc.genID.Generate()
	outletID := svc.genID.Generate()

	record, err := svc.Adjust(ctx, stockdomain.AdjustRequest{
		ProductID: productID,
		OutletID:  outletID,
		Delta:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), record.Quantity)

	got, err := svc.Get(ctx, productID, outletID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Quantity)
}

func TestAdjustRejectsShortage(t *testing.T) {
	svc, _, ctx := newTestService(t)
	productID := svc.genID.Generate()
	outletID := svc.genID.Generate()

	_, err := svc.Set(ctx, stockdomain.SetRequest{ProductID: productID, OutletID: outletID, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, stockdomain.AdjustRequest{ProductID: productID, OutletID: outletID, Delta: -12})
	var shortage *stockdomain.ShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, int64(10), shortage.Available)
	assert.Equal(t, int64(12), shortage.Requested)

	// The failed adjustment must leave quantity untouched.
	got, err := svc.Get(ctx, productID, outletID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Quantity)
}

func TestAdjustDrainsToZero(t *testing.T) {
	svc, _, ctx := newTestService(t)
	productID := svc.genID.Generate()
	outletID := svc.genID.Generate()

	_, err := svc.Set(ctx, stockdomain.SetRequest{ProductID: productID, OutletID: outletID, Quantity: 3})
	require.NoError(t, err)

	record, err := svc.Adjust(ctx, stockdomain.AdjustRequest{ProductID: productID, OutletID: outletID, Delta: -3})
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Quantity)
}

func TestSetOverwritesQuantity(t *testing.T) {
	svc, _, ctx := newTestService(t)
	tenantID, _ := tenantctx.TenantID(ctx)
	productID := svc.genID.Generate()
	outletID := svc.genID.Generate()

	_, err := svc.Set(ctx, stockdomain.SetRequest{ProductID: productID, OutletID: outletID, Quantity: 5})
	require.NoError(t, err)

	record, err := svc.Set(ctx, stockdomain.SetRequest{ProductID: productID, OutletID: outletID, Quantity: 12})
	require.NoError(t, err)
	assert.Equal(t, tenantID, record.TenantID)
	assert.Equal(t, productID, record.ProductID)
	assert.Equal(t, outletID, record.OutletID)
	assert.Equal(t, int64(12), record.Quantity)

	got, err := svc.Get(ctx, productID, outletID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Quantity)
}

func TestSetRejectsNegative(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.Set(ctx, stockdomain.SetRequest{
		ProductID: svc.genID.Generate(),
		OutletID:  svc.genID.Generate(),
		Quantity:  -1,
	})
	assert.ErrorIs(t, err, stockdomain.ErrNegativeQuantity)
}

func TestLowStock(t *testing.T) {
	svc, _, ctx := newTestService(t)
	outletID := svc.genID.Generate()

	low := svc.genID.Generate()
	high := svc.genID.Generate()
	_, err := svc.Set(ctx, stockdomain.SetRequest{ProductID: low, OutletID: outletID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.Set(ctx, stockdomain.SetRequest{ProductID: high, OutletID: outletID, Quantity: 50})
	require.NoError(t, err)

	records, err := svc.LowStock(ctx, stockdomain.LowStockRequest{Threshold: 5})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, low, records[0].ProductID)
}

func TestRequiresTenantScope(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Adjust(context.Background(), stockdomain.AdjustRequest{
		ProductID: svc.genID.Generate(),
		OutletID:  svc.genID.Generate(),
		Delta:     1,
	})
	assert.ErrorIs(t, err, stockdomain.ErrInvalidTenant)
}
