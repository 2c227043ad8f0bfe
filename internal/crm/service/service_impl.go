package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/clock"
	crmdomain "github.com/opencounter/opencounter/internal/crm/domain"
	"github.com/opencounter/opencounter/pkg/db"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

	visits repository.Repository[crmdomain.Visit]
}

func NewService(p ServiceParam) crmdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("crm.service"),
		genID: p.GenID,
		clock: p.Clock,

		visits: repository.ProvideStore[crmdomain.Visit](p.DB),
	}
}

func (s *Service) RecordVisit(ctx context.Context, req crmdomain.VisitRequest) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return crmdomain.ErrInvalidTenant
	}

	visit := crmdomain.Visit{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		OrderID:      req.OrderID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Amount:       req.Amount,
		VisitedAt:    s.clock.Now(),
	}
	if err := s.visits.Create(ctx, &visit); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) ListByPhone(ctx context.Context, phone string) ([]crmdomain.Visit, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, crmdomain.ErrInvalidTenant
	}

	items, err := s.visits.Find(ctx, &crmdomain.Visit{TenantID: tenantID, Phone: phone})
	if err != nil {
		return nil, err
	}

	visits := make([]crmdomain.Visit, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		visits = append(visits, *item)
	}
	return visits, nil
}
