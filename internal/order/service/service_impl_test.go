package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	auditservice "github.com/opencounter/opencounter/internal/audit/service"
	catalogdomain "github.com/opencounter/opencounter/internal/catalog/domain"
	catalogservice "github.com/opencounter/opencounter/internal/catalog/service"
	"github.com/opencounter/opencounter/internal/clock"
	crmdomain "github.com/opencounter/opencounter/internal/crm/domain"
	crmservice "github.com/opencounter/opencounter/internal/crm/service"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	settingsservice "github.com/opencounter/opencounter/internal/settings/service"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	stockservice "github.com/opencounter/opencounter/internal/stock/service"
	tabledomain "github.com/opencounter/opencounter/internal/table/domain"
	tableservice "github.com/opencounter/opencounter/internal/table/service"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	stockSvc stockdomain.Service
	tableSvc tabledomain.Service
	ctx      context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Product{},
		&settingsdomain.TenantSettings{},
		&stockdomain.StockRecord{},
		&tabledomain.Table{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&crmdomain.Visit{},
		&auditdomain.Entry{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	settingsSvc := settingsservice.NewService(settingsservice.ServiceParam{DB: db, Log: log, GenID: node})
	stockSvc := stockservice.NewService(stockservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake})
	tableSvc := tableservice.NewService(tableservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake, SettingsSvc: settingsSvc})

	svc := &Service{
		db:          db,
		log:         log,
		genID:       node,
		clock:       fake,
		catalogSvc:  catalogservice.NewService(catalogservice.ServiceParam{DB: db, Log: log}),
		settingsSvc: settingsSvc,
		stockSvc:    stockSvc,
		tableSvc:    tableSvc,
		crmSvc:      crmservice.NewService(crmservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake}),
		auditSvc:    auditservice.NewService(auditservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake}),

		orders: repository.ProvideStore[orderdomain.Order](db),
		items:  repository.ProvideStore[orderdomain.OrderItem](db),
	}

	tenantID := node.Generate()
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	return &testEnv{svc: svc, db: db, stockSvc: stockSvc, tableSvc: tableSvc, ctx: ctx}
}

func (e *testEnv) seedProduct(t *testing.T, name string, price float64, stock int64) snowflake.ID {
	t.Helper()

	tenantID, _ := tenantctx.TenantID(e.ctx)
	product := catalogdomain.Product{
		ID:        e.svc.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		UnitPrice: price,
		Active:    true,
	}
	require.NoError(t, e.db.Create(&product).Error)

	if stock > 0 {
		_, err := e.stockSvc.Set(e.ctx, stockdomain.SetRequest{
			ProductID: product.ID,
			OutletID:  0,
			Quantity:  stock,
		})
		require.NoError(t, err)
	}
	return product.ID
}

func (e *testEnv) seedTable(t *testing.T, name string) tabledomain.Table {
	t.Helper()

	table, err := e.tableSvc.Create(e.ctx, tabledomain.CreateRequest{Name: name, Capacity: 4})
	require.NoError(t, err)
	return table
}

func (e *testEnv) tableStatus(t *testing.T, id snowflake.ID) tabledomain.Status {
	t.Helper()

	table, err := e.tableSvc.GetByID(e.ctx, id)
	require.NoError(t, err)
	return table.Status
}

func ptr[T any](v T) *T { return &v }

func TestCreateComputesTotalAndDecrementsStock(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Masala Dosa", 62.50, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 2, UnitPrice: 62.50}},
		TotalAmount: 125.00,
	})
	require.NoError(t, err)
	assert.Equal(t, 125.00, agg.Order.TotalAmount)
	assert.False(t, agg.Order.IsPaid)
	assert.Equal(t, orderdomain.PaymentCash, agg.Order.PaymentType)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, "Masala Dosa", agg.Items[0].ProductName)
	assert.Equal(t, 125.00, agg.Items[0].Subtotal)

	record, err := env.stockSvc.Get(env.ctx, productID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), record.Quantity)
}

func TestCreateRejectsTotalMismatch(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Masala Dosa", 62.50, 10)

	_, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 2, UnitPrice: 62.50}},
		TotalAmount: 124.99,
	})
	assert.ErrorIs(t, err, orderdomain.ErrTotalMismatch)

	// A rejected order must not touch stock.
	record, err := env.stockSvc.Get(env.ctx, productID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), record.Quantity)
}

func TestCreateRejectsShortageAtomically(t *testing.T) {
	env := newTestEnv(t)
	scarce := env.seedProduct(t, "Filter Coffee", 30, 3)
	plenty := env.seedProduct(t, "Idli", 40, 50)

	_, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items: []orderdomain.LineItemRequest{
			{ProductID: plenty, Quantity: 2, UnitPrice: 40},
			{ProductID: scarce, Quantity: 5, UnitPrice: 30},
		},
		TotalAmount: 230,
	})
	var shortage *stockdomain.ShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, scarce, shortage.ProductID)

	// The whole transaction rolls back, including the first decrement.
	record, err := env.stockSvc.Get(env.ctx, plenty, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), record.Quantity)

	orders, err := env.svc.List(env.ctx, orderdomain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateRejectsEmptyAndInvalidItems(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Vada", 25, 10)

	_, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{TotalAmount: 0})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidItems)

	_, err = env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 0, UnitPrice: 25}},
		TotalAmount: 0,
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidItems)

	_, err = env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 0}},
		TotalAmount: 0,
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidItems)
}

func TestCreateBindsTable(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 120, 10)
	table := env.seedTable(t, "T1")

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 120}},
		TotalAmount: 120,
		TableID:     &table.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, agg.Order.TableID)
	assert.Equal(t, table.ID, *agg.Order.TableID)
	assert.Equal(t, tabledomain.StatusOccupied, env.tableStatus(t, table.ID))
}

func TestCreatePaidSplitPayment(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		CashAmount:  ptr(60.0),
		UpiAmount:   ptr(40.0),
	})
	require.NoError(t, err)
	assert.True(t, agg.Order.IsPaid)
	assert.Equal(t, orderdomain.PaymentMixed, agg.Order.PaymentType)
	require.NotNil(t, agg.Order.ClosedAt)

	// The paid order feeds the visit trail off the request path.
	assert.Eventually(t, func() bool {
		var count int64
		env.db.Model(&crmdomain.Visit{}).Where("order_id = ?", agg.Order.ID).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateLegacyPaymentType(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		PaymentType: ptr(orderdomain.PaymentUPI),
	})
	require.NoError(t, err)
	assert.True(t, agg.Order.IsPaid)
	assert.Equal(t, 100.0, agg.Order.UpiAmount)
	assert.Equal(t, 0.0, agg.Order.CashAmount)
}

func TestCreateRejectsOverpayment(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	_, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		CashAmount:  ptr(80.0),
		UpiAmount:   ptr(40.0),
	})
	assert.ErrorIs(t, err, orderdomain.ErrPaymentExceedsTotal)
}

func TestAddItemsRecomputesTotal(t *testing.T) {
	env := newTestEnv(t)
	dosa := env.seedProduct(t, "Masala Dosa", 62.50, 10)
	coffee := env.seedProduct(t, "Filter Coffee", 30, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: dosa, Quantity: 2, UnitPrice: 62.50}},
		TotalAmount: 125,
	})
	require.NoError(t, err)

	agg, err = env.svc.AddItems(env.ctx, orderdomain.AddItemsRequest{
		OrderID: agg.Order.ID,
		Items:   []orderdomain.LineItemRequest{{ProductID: coffee, Quantity: 3, UnitPrice: 30}},
	})
	require.NoError(t, err)
	assert.Equal(t, 215.0, agg.Order.TotalAmount)
	assert.Len(t, agg.Items, 2)

	record, err := env.stockSvc.Get(env.ctx, coffee, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), record.Quantity)
}

func TestAddItemsRejectsPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		CashAmount:  ptr(100.0),
	})
	require.NoError(t, err)
	require.True(t, agg.Order.IsPaid)

	_, err = env.svc.AddItems(env.ctx, orderdomain.AddItemsRequest{
		OrderID: agg.Order.ID,
		Items:   []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
	})
	assert.ErrorIs(t, err, orderdomain.ErrOrderPaid)
}

func TestUpdatePaymentFreesTable(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)
	table := env.seedTable(t, "T2")

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		TableID:     &table.ID,
	})
	require.NoError(t, err)
	require.Equal(t, tabledomain.StatusOccupied, env.tableStatus(t, table.ID))

	updated, err := env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    agg.Order.ID,
		CashAmount: ptr(100.0),
	})
	require.NoError(t, err)
	assert.True(t, updated.Order.IsPaid)
	require.NotNil(t, updated.Order.ClosedAt)
	assert.Equal(t, tabledomain.StatusAvailable, env.tableStatus(t, table.ID))
}

func TestUpdateKeepsTableWhileOthersUnpaid(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 20)
	tableA := env.seedTable(t, "T3")
	tableB := env.seedTable(t, "T4")
	target := env.seedTable(t, "T5")

	tenantID, _ := tenantctx.TenantID(env.ctx)
	settings := settingsdomain.Defaults(tenantID)
	settings.AllowTableMerge = true
	_, err := env.svc.settingsSvc.Update(env.ctx, settings)
	require.NoError(t, err)

	first, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		TableID:     &tableA.ID,
	})
	require.NoError(t, err)

	second, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		TableID:     &tableB.ID,
	})
	require.NoError(t, err)

	// Merging both parties onto one table leaves it with two unpaid orders.
	require.NoError(t, env.tableSvc.Merge(env.ctx, []snowflake.ID{tableA.ID, tableB.ID}, target.ID))
	require.Equal(t, tabledomain.StatusOccupied, env.tableStatus(t, target.ID))

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    first.Order.ID,
		CashAmount: ptr(100.0),
	})
	require.NoError(t, err)

	// The second order still holds the table.
	assert.Equal(t, tabledomain.StatusOccupied, env.tableStatus(t, target.ID))

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    second.Order.ID,
		CashAmount: ptr(100.0),
	})
	require.NoError(t, err)
	assert.Equal(t, tabledomain.StatusAvailable, env.tableStatus(t, target.ID))
}

func TestUpdatePaidRecordsVisitDetails(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
		Metadata: datatypes.JSONMap{
			"customer_name":  "Priya",
			"customer_phone": "9876543210",
		},
	})
	require.NoError(t, err)
	require.False(t, agg.Order.IsPaid)

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    agg.Order.ID,
		CashAmount: ptr(100.0),
	})
	require.NoError(t, err)

	// The customer fields stored at create time reach the visit trail.
	var visit crmdomain.Visit
	assert.Eventually(t, func() bool {
		return env.db.Where("order_id = ?", agg.Order.ID).First(&visit).Error == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Priya", visit.CustomerName)
	assert.Equal(t, "9876543210", visit.Phone)
}

func TestUpdateRejectsSecondPayment(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
	})
	require.NoError(t, err)

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    agg.Order.ID,
		CashAmount: ptr(100.0),
	})
	require.NoError(t, err)

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    agg.Order.ID,
		UpiAmount:  ptr(50.0),
	})
	assert.ErrorIs(t, err, orderdomain.ErrOrderPaid)
}

func TestUpdateRejectsNegativePayment(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Thali", 100, 10)

	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		TotalAmount: 100,
	})
	require.NoError(t, err)

	_, err = env.svc.Update(env.ctx, orderdomain.UpdateOrderRequest{
		OrderID:    agg.Order.ID,
		CashAmount: ptr(-10.0),
	})
	assert.ErrorIs(t, err, orderdomain.ErrNegativePayment)
}

func TestRoundingAtLineBoundaries(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Banana Chips 100g", 33.335, 100)

	// 3 * 33.335 = 100.005, which rounds half up to 100.01 at the line
	// boundary. The declared total must match the rounded value.
	agg, err := env.svc.Create(env.ctx, orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: productID, Quantity: 3, UnitPrice: 33.335}},
		TotalAmount: 100.01,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.01, agg.Order.TotalAmount)
}

func TestCreateRequiresTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), orderdomain.CreateOrderRequest{
		Items:       []orderdomain.LineItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 1}},
		TotalAmount: 1,
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidTenant)
}
