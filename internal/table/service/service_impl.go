package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/clock"
	obsmetrics "github.com/opencounter/opencounter/internal/observability/metrics"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	tabledomain "github.com/opencounter/opencounter/internal/table/domain"
	"github.com/opencounter/opencounter/pkg/db"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	SettingsSvc settingsdomain.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	settingsSvc settingsdomain.Service
	metrics     *obsmetrics.Metrics

	tables repository.Repository[tabledomain.Table]
}

func NewService(p ServiceParam) tabledomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("table.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		settingsSvc: p.SettingsSvc,
		metrics:     p.Metrics,

		tables: repository.ProvideStore[tabledomain.Table](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req tabledomain.CreateRequest) (tabledomain.Table, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.Table{}, tabledomain.ErrInvalidTenant
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 2
	}

	now := s.clock.Now()
	table := tabledomain.Table{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      req.Name,
		Capacity:  capacity,
		Area:      req.Area,
		Status:    tabledomain.StatusAvailable,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tables.Create(ctx, &table); err != nil {
		return tabledomain.Table{}, err
	}
	return table, nil
}

func (s *Service) List(ctx context.Context) ([]tabledomain.Table, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, tabledomain.ErrInvalidTenant
	}

	items, err := s.tables.Find(ctx, &tabledomain.Table{TenantID: tenantID, Active: true})
	if err != nil {
		return nil, err
	}

	tables := make([]tabledomain.Table, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		tables = append(tables, *item)
	}
	return tables, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (tabledomain.Table, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.Table{}, tabledomain.ErrInvalidTenant
	}

	item, err := s.tables.FindOne(ctx, &tabledomain.Table{ID: id, TenantID: tenantID})
	if err != nil {
		return tabledomain.Table{}, err
	}
	if item == nil {
		return tabledomain.Table{}, tabledomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) SetStatus(ctx context.Context, tableID snowflake.ID, requested tabledomain.Status) (tabledomain.Table, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.Table{}, tabledomain.ErrInvalidTenant
	}
	if !requested.Valid() {
		return tabledomain.Table{}, tabledomain.ErrInvalidStatus
	}

	var updated tabledomain.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := s.lockTable(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}

		unpaid, err := s.countUnpaid(ctx, tx, tenantID, tableID, 0)
		if err != nil {
			return err
		}
		switch requested {
		case tabledomain.StatusOccupied:
			if unpaid == 0 {
				return tabledomain.ErrNoOpenOrders
			}
		case tabledomain.StatusAvailable:
			if unpaid > 0 {
				return tabledomain.ErrHasOpenOrders
			}
		}

		if err := s.updateStatus(ctx, tx, table.ID, requested); err != nil {
			return err
		}
		updated = *table
		updated.Status = requested
		return nil
	})
	if err != nil {
		return tabledomain.Table{}, err
	}
	s.recordTransition("set_status")
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, tableID snowflake.ID) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.ErrInvalidTenant
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := s.lockTable(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}

		unpaid, err := s.countUnpaid(ctx, tx, tenantID, tableID, 0)
		if err != nil {
			return err
		}
		if unpaid > 0 {
			return tabledomain.ErrHasOpenOrders
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE dining_tables SET active = ?, updated_at = ? WHERE id = ?`,
			false, s.clock.Now(), table.ID,
		).Error
	})
}

func (s *Service) Switch(ctx context.Context, orderID, fromTableID, toTableID snowflake.ID) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.ErrInvalidTenant
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock both tables in id order so two concurrent switches between
		// the same pair cannot deadlock.
		ids := []snowflake.ID{fromTableID, toTableID}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, err := s.lockTable(ctx, tx, tenantID, id); err != nil {
				return err
			}
		}

		if err := s.bindLocked(ctx, tx, tenantID, toTableID, orderID); err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE orders SET table_id = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
			toTableID, s.clock.Now(), orderID, tenantID,
		).Error; err != nil {
			return err
		}

		_, err := s.unbindIfLastLocked(ctx, tx, tenantID, fromTableID, orderID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordTransition("switch")
	return nil
}

func (s *Service) Merge(ctx context.Context, sourceIDs []snowflake.ID, targetID snowflake.ID) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return tabledomain.ErrInvalidTenant
	}

	cfg, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return err
	}
	if !cfg.AllowTableMerge {
		return tabledomain.ErrMergeDisabled
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := append(append([]snowflake.ID{}, sourceIDs...), targetID)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, err := s.lockTable(ctx, tx, tenantID, id); err != nil {
				return err
			}
		}

		target, err := s.loadTable(ctx, tx, tenantID, targetID)
		if err != nil {
			return err
		}
		if target.Status != tabledomain.StatusAvailable && target.Status != tabledomain.StatusReserved {
			return tabledomain.ErrNotAvailable
		}

		now := s.clock.Now()
		for _, sourceID := range sourceIDs {
			if sourceID == targetID {
				continue
			}
			if err := tx.WithContext(ctx).Exec(
				`UPDATE orders SET table_id = ?, updated_at = ?
				 WHERE tenant_id = ? AND table_id = ? AND is_paid = ?`,
				targetID, now, tenantID, sourceID, false,
			).Error; err != nil {
				return err
			}
			// Sources are retired pending manual reactivation.
			if err := s.updateStatus(ctx, tx, sourceID, tabledomain.StatusBlocked); err != nil {
				return err
			}
		}

		unpaid, err := s.countUnpaid(ctx, tx, tenantID, targetID, 0)
		if err != nil {
			return err
		}
		if unpaid > 0 {
			return s.updateStatus(ctx, tx, targetID, tabledomain.StatusOccupied)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordTransition("merge")
	return nil
}

func (s *Service) BindTx(ctx context.Context, tx *gorm.DB, tenantID, tableID, orderID snowflake.ID) error {
	if _, err := s.lockTable(ctx, tx, tenantID, tableID); err != nil {
		return err
	}
	if err := s.bindLocked(ctx, tx, tenantID, tableID, orderID); err != nil {
		return err
	}
	s.recordTransition("bind")
	return nil
}

func (s *Service) UnbindIfLastTx(ctx context.Context, tx *gorm.DB, tenantID, tableID, exceptOrderID snowflake.ID) (bool, error) {
	if _, err := s.lockTable(ctx, tx, tenantID, tableID); err != nil {
		return false, err
	}
	freed, err := s.unbindIfLastLocked(ctx, tx, tenantID, tableID, exceptOrderID)
	if err != nil {
		return false, err
	}
	if freed {
		s.recordTransition("auto_free")
	}
	return freed, nil
}

// bindLocked assumes the table row lock is already held.
func (s *Service) bindLocked(ctx context.Context, tx *gorm.DB, tenantID, tableID, orderID snowflake.ID) error {
	table, err := s.loadTable(ctx, tx, tenantID, tableID)
	if err != nil {
		return err
	}
	if !table.Active {
		return tabledomain.ErrInactive
	}

	switch table.Status {
	case tabledomain.StatusAvailable, tabledomain.StatusReserved:
	case tabledomain.StatusOccupied:
		bound, err := s.orderBoundHere(ctx, tx, tenantID, tableID, orderID)
		if err != nil {
			return err
		}
		if !bound {
			return tabledomain.ErrNotAvailable
		}
	default:
		return tabledomain.ErrNotAvailable
	}

	return s.updateStatus(ctx, tx, tableID, tabledomain.StatusOccupied)
}

// unbindIfLastLocked assumes the table row lock is already held.
func (s *Service) unbindIfLastLocked(ctx context.Context, tx *gorm.DB, tenantID, tableID, exceptOrderID snowflake.ID) (bool, error) {
	unpaid, err := s.countUnpaid(ctx, tx, tenantID, tableID, exceptOrderID)
	if err != nil {
		return false, err
	}
	if unpaid > 0 {
		return false, nil
	}
	if err := s.updateStatus(ctx, tx, tableID, tabledomain.StatusAvailable); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) lockTable(ctx context.Context, tx *gorm.DB, tenantID, tableID snowflake.ID) (*tabledomain.Table, error) {
	var table tabledomain.Table
	query := db.ForUpdate(tx,
		`SELECT id, tenant_id, name, capacity, area, status, active, created_at, updated_at
		 FROM dining_tables
		 WHERE id = ? AND tenant_id = ?`)
	err := tx.WithContext(ctx).Raw(query, tableID, tenantID).Scan(&table).Error
	if err != nil {
		return nil, err
	}
	if table.ID == 0 {
		return nil, tabledomain.ErrNotFound
	}
	return &table, nil
}

// loadTable re-reads current state after the row lock was taken.
func (s *Service) loadTable(ctx context.Context, tx *gorm.DB, tenantID, tableID snowflake.ID) (*tabledomain.Table, error) {
	var table tabledomain.Table
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, capacity, area, status, active, created_at, updated_at
		 FROM dining_tables
		 WHERE id = ? AND tenant_id = ?`,
		tableID, tenantID,
	).Scan(&table).Error
	if err != nil {
		return nil, err
	}
	if table.ID == 0 {
		return nil, tabledomain.ErrNotFound
	}
	return &table, nil
}

func (s *Service) countUnpaid(ctx context.Context, tx *gorm.DB, tenantID, tableID, exceptOrderID snowflake.ID) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM orders
		 WHERE tenant_id = ? AND table_id = ? AND is_paid = ?`
	args := []any{tenantID, tableID, false}
	if exceptOrderID != 0 {
		query += ` AND id <> ?`
		args = append(args, exceptOrderID)
	}
	err := tx.WithContext(ctx).Raw(query, args...).Scan(&count).Error
	return count, err
}

func (s *Service) orderBoundHere(ctx context.Context, tx *gorm.DB, tenantID, tableID, orderID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM orders WHERE id = ? AND tenant_id = ? AND table_id = ?`,
		orderID, tenantID, tableID,
	).Scan(&count).Error
	return count > 0, err
}

func (s *Service) updateStatus(ctx context.Context, tx *gorm.DB, tableID snowflake.ID, status tabledomain.Status) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE dining_tables SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.clock.Now(), tableID,
	).Error
}

func (s *Service) recordTransition(transition string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordTableTransition(transition)
}
