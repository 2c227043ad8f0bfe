package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/opencounter/opencounter/internal/clock"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	stockservice "github.com/opencounter/opencounter/internal/stock/service"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestSweepFindsEveryTenant(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&stockdomain.StockRecord{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC))
	stockSvc := stockservice.NewService(stockservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake})

	tenantA := node.Generate()
	tenantB := node.Generate()
	for _, tenantID := range []snowflake.ID{tenantA, tenantB} {
		ctx := tenantctx.WithTenantID(context.Background(), tenantID)
		_, err := stockSvc.Set(ctx, stockdomain.SetRequest{
			ProductID: node.Generate(),
			OutletID:  0,
			Quantity:  1,
		})
		require.NoError(t, err)
	}

	sweeper := &Sweeper{
		db:        db,
		log:       log,
		stockSvc:  stockSvc,
		threshold: 5,
		interval:  time.Minute,
	}

	tenants, err := sweeper.tenantsWithStock(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{tenantA, tenantB}, tenants)

	// The sweep itself must complete without error paths firing.
	sweeper.Sweep(context.Background())
}
