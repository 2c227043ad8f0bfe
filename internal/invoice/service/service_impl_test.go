package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	auditservice "github.com/opencounter/opencounter/internal/audit/service"
	"github.com/opencounter/opencounter/internal/clock"
	invoicedomain "github.com/opencounter/opencounter/internal/invoice/domain"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	settingsservice "github.com/opencounter/opencounter/internal/settings/service"
	"github.com/opencounter/opencounter/pkg/repository"
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
	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&settingsdomain.TenantSettings{},
		&invoicedomain.Counter{},
		&invoicedomain.Invoice{},
		&invoicedomain.Line{},
		&auditdomain.Entry{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	svc := &Service{
		db:          db,
		log:         log,
		genID:       node,
		clock:       fake,
		settingsSvc: settingsservice.NewService(settingsservice.ServiceParam{DB: db, Log: log, GenID: node}),
		auditSvc:    auditservice.NewService(auditservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake}),

		invoices: repository.ProvideStore[invoicedomain.Invoice](db),
	}

	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	return svc, db, ctx
}

func seedPaidOrder(t *testing.T, svc *Service, db *gorm.DB, ctx context.Context, total float64) snowflake.ID {
	t.Helper()

	tenantID, _ := tenantctx.TenantID(ctx)
	now := svc.clock.Now()
	order := orderdomain.Order{
		ID:          svc.genID.Generate(),
		TenantID:    tenantID,
		TotalAmount: total,
		CashAmount:  total,
		PaymentType: orderdomain.PaymentCash,
		IsPaid:      true,
		ClosedAt:    &now,
	}
	require.NoError(t, db.Create(&order).Error)

	item := orderdomain.OrderItem{
		ID:          svc.genID.Generate(),
		TenantID:    tenantID,
		OrderID:     order.ID,
		ProductID:   svc.genID.Generate(),
		ProductName: "Masala Dosa",
		Quantity:    2,
		UnitPrice:   total / 2,
		Subtotal:    total,
	}
	require.NoError(t, db.Create(&item).Error)
	return order.ID
}

func TestAllocateStartsAtOne(t *testing.T) {
	svc, db, ctx := newTestService(t)
	orderID := seedPaidOrder(t, svc, db, ctx, 125)

	agg, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Invoice.Serial)
	assert.Equal(t, "INV-2025-06-0001", agg.Invoice.Number)
	assert.Equal(t, "2025-06", agg.Invoice.Period)
	assert.Equal(t, 125.0, agg.Invoice.TotalAmount)
	require.Len(t, agg.Lines, 1)
	assert.Equal(t, "Masala Dosa", agg.Lines[0].ProductName)
}

func TestAllocateSequencesWithinPeriod(t *testing.T) {
	svc, db, ctx := newTestService(t)

	for want := int64(1); want <= 3; want++ {
		orderID := seedPaidOrder(t, svc, db, ctx, 100)
		agg, err := svc.Allocate(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, want, agg.Invoice.Serial)
	}
}

func TestAllocateIsIdempotentPerOrder(t *testing.T) {
	svc, db, ctx := newTestService(t)
	orderID := seedPaidOrder(t, svc, db, ctx, 125)

	first, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)
	second, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)

	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, first.Invoice.Number, second.Invoice.Number)

	// The repeat must not burn a serial.
	next := seedPaidOrder(t, svc, db, ctx, 100)
	agg, err := svc.Allocate(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, first.Invoice.Serial+1, agg.Invoice.Serial)
}

func TestAllocateUnpaidOrder(t *testing.T) {
	svc, db, ctx := newTestService(t)
	tenantID, _ := tenantctx.TenantID(ctx)

	order := orderdomain.Order{
		ID:          svc.genID.Generate(),
		TenantID:    tenantID,
		TotalAmount: 100,
		PaymentType: orderdomain.PaymentCash,
	}
	require.NoError(t, db.Create(&order).Error)

	// Payment state does not gate allocation; a running tab can be billed.
	agg, err := svc.Allocate(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Invoice.Serial)
	assert.Equal(t, 100.0, agg.Invoice.TotalAmount)
}

func TestAllocateUnknownOrder(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.Allocate(ctx, svc.genID.Generate())
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestAllocateGlobalCycle(t *testing.T) {
	svc, db, ctx := newTestService(t)
	tenantID, _ := tenantctx.TenantID(ctx)

	settings := settingsdomain.Defaults(tenantID)
	settings.InvoiceResetCycle = settingsdomain.ResetNever
	_, err := svc.settingsSvc.Update(ctx, settings)
	require.NoError(t, err)

	orderID := seedPaidOrder(t, svc, db, ctx, 100)
	agg, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", agg.Invoice.Number)
	assert.Equal(t, "global", agg.Invoice.Period)
}

func TestAllocateBranchPrefix(t *testing.T) {
	svc, db, ctx := newTestService(t)
	tenantID, _ := tenantctx.TenantID(ctx)

	settings := settingsdomain.Defaults(tenantID)
	settings.InvoiceBranchPrefix = true
	settings.BranchCode = "BLR"
	_, err := svc.settingsSvc.Update(ctx, settings)
	require.NoError(t, err)

	orderID := seedPaidOrder(t, svc, db, ctx, 100)
	agg, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "INV-BLR-2025-06-0001", agg.Invoice.Number)
}

func TestAllocateCarvesOutInclusiveTax(t *testing.T) {
	svc, db, ctx := newTestService(t)
	tenantID, _ := tenantctx.TenantID(ctx)

	settings := settingsdomain.Defaults(tenantID)
	settings.GSTEnabled = true
	settings.TaxRate = 5
	_, err := svc.settingsSvc.Update(ctx, settings)
	require.NoError(t, err)

	orderID := seedPaidOrder(t, svc, db, ctx, 105)
	agg, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, agg.Invoice.TaxAmount)
	assert.Equal(t, 100.0, agg.Invoice.Subtotal)
	assert.Equal(t, 105.0, agg.Invoice.TotalAmount)
	assert.Equal(t, 0.0, agg.Invoice.Discount)

	// The line snapshot carries its own carved-out tax share.
	require.Len(t, agg.Lines, 1)
	assert.Equal(t, 5.0, agg.Lines[0].TaxAmount)
	assert.Equal(t, 105.0, agg.Lines[0].Subtotal)
}

func TestAllocateSerializesConcurrentCalls(t *testing.T) {
	svc, db, ctx := newTestService(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const n = 8
	orderIDs := make([]snowflake.ID, n)
	for i := range orderIDs {
		orderIDs[i] = seedPaidOrder(t, svc, db, ctx, 100)
	}

	serials := make(chan int64, n)
	var wg sync.WaitGroup
	for _, orderID := range orderIDs {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			agg, err := svc.Allocate(ctx, id)
			if assert.NoError(t, err) {
				serials <- agg.Invoice.Serial
			}
		}(orderID)
	}
	wg.Wait()
	close(serials)

	got := make([]int64, 0, n)
	for serial := range serials {
		got = append(got, serial)
	}
	want := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		want = append(want, i)
	}
	assert.ElementsMatch(t, want, got)

	tenantID, _ := tenantctx.TenantID(ctx)
	var counter invoicedomain.Counter
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&counter).Error)
	assert.Equal(t, int64(n), counter.Serial)
}

func TestCountersAreScopedPerTenant(t *testing.T) {
	svc, db, ctx := newTestService(t)
	orderID := seedPaidOrder(t, svc, db, ctx, 100)
	_, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)

	otherCtx := tenantctx.WithTenantID(context.Background(), svc.genID.Generate())
	otherOrder := seedPaidOrder(t, svc, db, otherCtx, 100)
	agg, err := svc.Allocate(otherCtx, otherOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.Invoice.Serial)
}

func TestAttachDocument(t *testing.T) {
	svc, db, ctx := newTestService(t)
	orderID := seedPaidOrder(t, svc, db, ctx, 100)

	agg, err := svc.Allocate(ctx, orderID)
	require.NoError(t, err)

	require.NoError(t, svc.AttachDocument(ctx, agg.Invoice.ID, "/documents/INV-2025-06-0001.pdf"))

	got, err := svc.GetByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "/documents/INV-2025-06-0001.pdf", got.Invoice.DocumentRef)

	err = svc.AttachDocument(ctx, svc.genID.Generate(), "ref")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestGetByOrderNotFound(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.GetByOrder(ctx, svc.genID.Generate())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}
