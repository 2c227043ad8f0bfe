package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	"github.com/opencounter/opencounter/internal/clock"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	entries repository.Repository[auditdomain.Entry]
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,

		entries: repository.ProvideStore[auditdomain.Entry](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, action string, entityID snowflake.ID, metadata datatypes.JSONMap) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		s.log.Warn("audit entry dropped: no tenant in context", zap.String("action", action))
		return
	}

	entry := auditdomain.Entry{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Action:    action,
		EntityID:  entityID,
		Metadata:  metadata,
		CreatedAt: s.clock.Now(),
	}
	if err := s.entries.Create(ctx, &entry); err != nil {
		s.log.Warn("audit entry dropped",
			zap.String("action", action),
			zap.Int64("entity_id", int64(entityID)),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, action string) ([]auditdomain.Entry, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, auditdomain.ErrInvalidTenant
	}

	items, err := s.entries.Find(ctx, &auditdomain.Entry{TenantID: tenantID, Action: action})
	if err != nil {
		return nil, err
	}

	entries := make([]auditdomain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return entries, nil
}
