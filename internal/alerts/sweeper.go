// Package alerts runs the low stock sweep: a periodic scan that flags
// products running out so the floor can restock before sales bounce.
package alerts

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/config"
	obsmetrics "github.com/opencounter/opencounter/internal/observability/metrics"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Sweeper struct {
	db        *gorm.DB
	log       *zap.Logger
	stockSvc  stockdomain.Service
	metrics   *obsmetrics.Metrics
	threshold int64
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type SweeperParam struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	StockSvc stockdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

func NewSweeper(p SweeperParam) *Sweeper {
	return &Sweeper{
		db:        p.DB,
		log:       p.Log.Named("alerts.sweeper"),
		stockSvc:  p.StockSvc,
		metrics:   p.Metrics,
		threshold: p.Cfg.LowStockThreshold,
		interval:  time.Duration(p.Cfg.LowStockSweepInterval) * time.Second,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("sweep disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep scans every tenant holding stock and logs each record under the
// threshold. One tenant failing does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	tenants, err := s.tenantsWithStock(ctx)
	if err != nil {
		s.log.Warn("sweep skipped", zap.Error(err))
		return
	}

	for _, tenantID := range tenants {
		tenantCtx := tenantctx.WithTenantID(ctx, tenantID)
		records, err := s.stockSvc.LowStock(tenantCtx, stockdomain.LowStockRequest{Threshold: s.threshold})
		if err != nil {
			s.log.Warn("tenant sweep failed",
				zap.Int64("tenant_id", int64(tenantID)),
				zap.Error(err),
			)
			continue
		}

		for _, record := range records {
			s.log.Warn("low stock",
				zap.Int64("tenant_id", int64(tenantID)),
				zap.Int64("product_id", int64(record.ProductID)),
				zap.Int64("outlet_id", int64(record.OutletID)),
				zap.Int64("quantity", record.Quantity),
				zap.Int64("threshold", s.threshold),
			)
			if s.metrics != nil {
				s.metrics.RecordLowStockAlert()
			}
		}
	}
}

func (s *Sweeper) tenantsWithStock(ctx context.Context) ([]snowflake.ID, error) {
	var tenants []snowflake.ID
	err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT tenant_id FROM stock_records`).
		Scan(&tenants).Error
	return tenants, err
}

func registerHooks(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: sweeper.Start,
		OnStop:  sweeper.Stop,
	})
}

var Module = fx.Module("alerts",
	fx.Provide(NewSweeper),
	fx.Invoke(registerHooks),
)
