package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/opencounter/opencounter/internal/clock"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	settingsservice "github.com/opencounter/opencounter/internal/settings/service"
	tabledomain "github.com/opencounter/opencounter/internal/table/domain"
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
		&tabledomain.Table{},
		&orderdomain.Order{},
		&settingsdomain.TenantSettings{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	log := zap.NewNop()
	svc := &Service{
		db:          db,
		log:         log,
		genID:       node,
		clock:       clock.NewFakeClock(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)),
		settingsSvc: settingsservice.NewService(settingsservice.ServiceParam{DB: db, Log: log, GenID: node}),

		tables: repository.ProvideStore[tabledomain.Table](db),
	}

	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	return svc, db, ctx
}

func seedOrder(t *testing.T, db *gorm.DB, ctx context.Context, node *snowflake.Node, tableID *snowflake.ID, paid bool) snowflake.ID {
	t.Helper()

	tenantID, _ := tenantctx.TenantID(ctx)
	order := orderdomain.Order{
		ID:          node.Generate(),
		TenantID:    tenantID,
		TableID:     tableID,
		TotalAmount: 100,
		PaymentType: orderdomain.PaymentCash,
		IsPaid:      paid,
	}
	require.NoError(t, db.Create(&order).Error)
	return order.ID
}

func mustCreate(t *testing.T, svc *Service, ctx context.Context, name string) tabledomain.Table {
	t.Helper()

	table, err := svc.Create(ctx, tabledomain.CreateRequest{Name: name, Capacity: 4})
	require.NoError(t, err)
	require.Equal(t, tabledomain.StatusAvailable, table.Status)
	return table
}

func status(t *testing.T, svc *Service, ctx context.Context, id snowflake.ID) tabledomain.Status {
	t.Helper()

	table, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	return table.Status
}

func TestBindOccupiesAvailableTable(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")
	tenantID, _ := tenantctx.TenantID(ctx)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.BindTx(ctx, tx, tenantID, table.ID, svc.genID.Generate())
	})
	require.NoError(t, err)
	assert.Equal(t, tabledomain.StatusOccupied, status(t, svc, ctx, table.ID))
}

func TestBindRejectsOccupiedByOtherOrder(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")
	tenantID, _ := tenantctx.TenantID(ctx)

	seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	_, err := svc.SetStatus(ctx, table.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.BindTx(ctx, tx, tenantID, table.ID, svc.genID.Generate())
	})
	assert.ErrorIs(t, err, tabledomain.ErrNotAvailable)
}

func TestBindAllowsRebindOfOwnOrder(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")
	tenantID, _ := tenantctx.TenantID(ctx)

	orderID := seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	_, err := svc.SetStatus(ctx, table.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.BindTx(ctx, tx, tenantID, table.ID, orderID)
	})
	assert.NoError(t, err)
}

func TestBindRejectsInactiveTable(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")
	tenantID, _ := tenantctx.TenantID(ctx)

	require.NoError(t, svc.Deactivate(ctx, table.ID))

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.BindTx(ctx, tx, tenantID, table.ID, svc.genID.Generate())
	})
	assert.ErrorIs(t, err, tabledomain.ErrInactive)
}

func TestUnbindFreesOnlyWhenLast(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")
	tenantID, _ := tenantctx.TenantID(ctx)

	first := seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	second := seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	_, err := svc.SetStatus(ctx, table.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	var freed bool
	err = db.Transaction(func(tx *gorm.DB) error {
		freed, err = svc.UnbindIfLastTx(ctx, tx, tenantID, table.ID, first)
		return err
	})
	require.NoError(t, err)
	assert.False(t, freed)
	assert.Equal(t, tabledomain.StatusOccupied, status(t, svc, ctx, table.ID))

	// Settle the second order, then the first's unbind frees the table.
	require.NoError(t, db.Exec(`UPDATE orders SET is_paid = ? WHERE id = ?`, true, second).Error)
	err = db.Transaction(func(tx *gorm.DB) error {
		freed, err = svc.UnbindIfLastTx(ctx, tx, tenantID, table.ID, first)
		return err
	})
	require.NoError(t, err)
	assert.True(t, freed)
	assert.Equal(t, tabledomain.StatusAvailable, status(t, svc, ctx, table.ID))
}

func TestSetStatusGuards(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")

	// OCCUPIED needs a bound unpaid order.
	_, err := svc.SetStatus(ctx, table.ID, tabledomain.StatusOccupied)
	assert.ErrorIs(t, err, tabledomain.ErrNoOpenOrders)

	seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	_, err = svc.SetStatus(ctx, table.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	// AVAILABLE is rejected while an unpaid order is bound.
	_, err = svc.SetStatus(ctx, table.ID, tabledomain.StatusAvailable)
	assert.ErrorIs(t, err, tabledomain.ErrHasOpenOrders)

	_, err = svc.SetStatus(ctx, table.ID, tabledomain.StatusCleaning)
	assert.NoError(t, err)

	_, err = svc.SetStatus(ctx, table.ID, tabledomain.Status("SQUATTING"))
	assert.ErrorIs(t, err, tabledomain.ErrInvalidStatus)
}

func TestDeactivateRejectsOpenOrders(t *testing.T) {
	svc, db, ctx := newTestService(t)
	table := mustCreate(t, svc, ctx, "T1")

	seedOrder(t, db, ctx, svc.genID, &table.ID, false)
	err := svc.Deactivate(ctx, table.ID)
	assert.ErrorIs(t, err, tabledomain.ErrHasOpenOrders)
}

func TestSwitchMovesOrderBetweenTables(t *testing.T) {
	svc, db, ctx := newTestService(t)
	from := mustCreate(t, svc, ctx, "T1")
	to := mustCreate(t, svc, ctx, "T2")

	orderID := seedOrder(t, db, ctx, svc.genID, &from.ID, false)
	_, err := svc.SetStatus(ctx, from.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	require.NoError(t, svc.Switch(ctx, orderID, from.ID, to.ID))

	assert.Equal(t, tabledomain.StatusAvailable, status(t, svc, ctx, from.ID))
	assert.Equal(t, tabledomain.StatusOccupied, status(t, svc, ctx, to.ID))

	var order orderdomain.Order
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	require.NotNil(t, order.TableID)
	assert.Equal(t, to.ID, *order.TableID)
}

func TestMergeRequiresSetting(t *testing.T) {
	svc, _, ctx := newTestService(t)
	source := mustCreate(t, svc, ctx, "T1")
	target := mustCreate(t, svc, ctx, "T2")

	err := svc.Merge(ctx, []snowflake.ID{source.ID}, target.ID)
	assert.ErrorIs(t, err, tabledomain.ErrMergeDisabled)
}

func TestMergeMovesOrdersAndBlocksSources(t *testing.T) {
	svc, db, ctx := newTestService(t)
	source := mustCreate(t, svc, ctx, "T1")
	target := mustCreate(t, svc, ctx, "T2")
	tenantID, _ := tenantctx.TenantID(ctx)

	settings := settingsdomain.Defaults(tenantID)
	settings.AllowTableMerge = true
	_, err := svc.settingsSvc.Update(ctx, settings)
	require.NoError(t, err)

	orderID := seedOrder(t, db, ctx, svc.genID, &source.ID, false)
	_, err = svc.SetStatus(ctx, source.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, []snowflake.ID{source.ID}, target.ID))

	assert.Equal(t, tabledomain.StatusBlocked, status(t, svc, ctx, source.ID))
	assert.Equal(t, tabledomain.StatusOccupied, status(t, svc, ctx, target.ID))

	var order orderdomain.Order
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	require.NotNil(t, order.TableID)
	assert.Equal(t, target.ID, *order.TableID)
}

func TestMergeRejectsOccupiedTarget(t *testing.T) {
	svc, db, ctx := newTestService(t)
	source := mustCreate(t, svc, ctx, "T1")
	target := mustCreate(t, svc, ctx, "T2")
	tenantID, _ := tenantctx.TenantID(ctx)

	settings := settingsdomain.Defaults(tenantID)
	settings.AllowTableMerge = true
	_, err := svc.settingsSvc.Update(ctx, settings)
	require.NoError(t, err)

	seedOrder(t, db, ctx, svc.genID, &target.ID, false)
	_, err = svc.SetStatus(ctx, target.ID, tabledomain.StatusOccupied)
	require.NoError(t, err)

	err = svc.Merge(ctx, []snowflake.ID{source.ID}, target.ID)
	assert.ErrorIs(t, err, tabledomain.ErrNotAvailable)
}
