package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/clock"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	"github.com/opencounter/opencounter/pkg/db"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) stockdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("stock.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, productID, outletID snowflake.ID) (stockdomain.StockRecord, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return stockdomain.StockRecord{}, stockdomain.ErrInvalidTenant
	}

	var record stockdomain.StockRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND outlet_id = ?", tenantID, productID, outletID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return stockdomain.StockRecord{
				TenantID:  tenantID,
				ProductID: productID,
				OutletID:  outletID,
				Quantity:  0,
			}, nil
		}
		return stockdomain.StockRecord{}, err
	}
	return record, nil
}

func (s *Service) Adjust(ctx context.Context, req stockdomain.AdjustRequest) (stockdomain.StockRecord, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return stockdomain.StockRecord{}, stockdomain.ErrInvalidTenant
	}

	var quantity int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		quantity, err = s.AdjustTx(ctx, tx, tenantID, req.ProductID, req.OutletID, req.Delta)
		return err
	})
	if err != nil {
		return stockdomain.StockRecord{}, err
	}

	return stockdomain.StockRecord{
		TenantID:  tenantID,
		ProductID: req.ProductID,
		OutletID:  req.OutletID,
		Quantity:  quantity,
	}, nil
}

func (s *Service) Set(ctx context.Context, req stockdomain.SetRequest) (stockdomain.StockRecord, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return stockdomain.StockRecord{}, stockdomain.ErrInvalidTenant
	}
	if req.Quantity < 0 {
		return stockdomain.StockRecord{}, stockdomain.ErrNegativeQuantity
	}

	var record stockdomain.StockRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockRow(ctx, tx, tenantID, req.ProductID, req.OutletID)
		if err != nil {
			return err
		}
		if row == nil {
			row, err = s.materializeRow(ctx, tx, tenantID, req.ProductID, req.OutletID)
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE stock_records SET quantity = ?, updated_at = ? WHERE id = ?`,
			req.Quantity, now, row.ID,
		).Error; err != nil {
			return err
		}

		record = stockdomain.StockRecord{
			ID:        row.ID,
			TenantID:  tenantID,
			ProductID: req.ProductID,
			OutletID:  req.OutletID,
			Quantity:  req.Quantity,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return stockdomain.StockRecord{}, err
	}
	return record, nil
}

func (s *Service) LowStock(ctx context.Context, req stockdomain.LowStockRequest) ([]stockdomain.StockRecord, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, stockdomain.ErrInvalidTenant
	}

	var records []stockdomain.StockRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND quantity < ?", tenantID, req.Threshold).
		Order("quantity ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) AdjustTx(ctx context.Context, tx *gorm.DB, tenantID, productID, outletID snowflake.ID, delta int64) (int64, error) {
	row, err := s.lockRow(ctx, tx, tenantID, productID, outletID)
	if err != nil {
		return 0, err
	}
	if row == nil {
		row, err = s.materializeRow(ctx, tx, tenantID, productID, outletID)
		if err != nil {
			return 0, err
		}
	}

	updated := row.Quantity + delta
	if updated < 0 {
		return 0, &stockdomain.ShortageError{
			ProductID: productID,
			Available: row.Quantity,
			Requested: -delta,
		}
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE stock_records SET quantity = ?, updated_at = ? WHERE id = ?`,
		updated, s.clock.Now(), row.ID,
	).Error; err != nil {
		return 0, err
	}
	return updated, nil
}

type stockRow struct {
	ID        snowflake.ID
	Quantity  int64
	UpdatedAt time.Time
}

// lockRow holds the row lock for the remainder of the transaction so that
// concurrent adjustments for the same (product, outlet) serialize.
func (s *Service) lockRow(ctx context.Context, tx *gorm.DB, tenantID, productID, outletID snowflake.ID) (*stockRow, error) {
	var row stockRow
	query := db.ForUpdate(tx,
		`SELECT id, quantity, updated_at
		 FROM stock_records
		 WHERE tenant_id = ? AND product_id = ? AND outlet_id = ?`)
	err := tx.WithContext(ctx).Raw(query, tenantID, productID, outletID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) materializeRow(ctx context.Context, tx *gorm.DB, tenantID, productID, outletID snowflake.ID) (*stockRow, error) {
	now := s.clock.Now()
	record := stockdomain.StockRecord{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		ProductID: productID,
		OutletID:  outletID,
		Quantity:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "outlet_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	// Another transaction materialized the row first; re-read under lock.
	if result.RowsAffected == 0 {
		return s.lockRow(ctx, tx, tenantID, productID, outletID)
	}
	return &stockRow{ID: record.ID, Quantity: 0, UpdatedAt: now}, nil
}
