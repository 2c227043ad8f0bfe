package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
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
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	settings repository.Repository[settingsdomain.TenantSettings]
}

func NewService(p ServiceParam) settingsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		genID: p.GenID,

		settings: repository.ProvideStore[settingsdomain.TenantSettings](p.DB),
	}
}

func (s *Service) Get(ctx context.Context) (settingsdomain.TenantSettings, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return settingsdomain.TenantSettings{}, settingsdomain.ErrInvalidTenant
	}

	item, err := s.settings.FindOne(ctx, &settingsdomain.TenantSettings{TenantID: tenantID})
	if err != nil {
		return settingsdomain.TenantSettings{}, err
	}
	if item == nil {
		return settingsdomain.Defaults(tenantID), nil
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, settings settingsdomain.TenantSettings) (settingsdomain.TenantSettings, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return settingsdomain.TenantSettings{}, settingsdomain.ErrInvalidTenant
	}

	existing, err := s.settings.FindOne(ctx, &settingsdomain.TenantSettings{TenantID: tenantID})
	if err != nil {
		return settingsdomain.TenantSettings{}, err
	}

	settings.TenantID = tenantID
	if existing == nil {
		settings.ID = s.genID.Generate()
		if err := s.settings.Create(ctx, &settings); err != nil {
			return settingsdomain.TenantSettings{}, err
		}
		return settings, nil
	}

	settings.ID = existing.ID
	if err := s.db.WithContext(ctx).Save(&settings).Error; err != nil {
		return settingsdomain.TenantSettings{}, err
	}
	return settings, nil
}
