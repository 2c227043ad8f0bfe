package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/opencounter/opencounter/internal/catalog/domain"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	products repository.Repository[catalogdomain.Product]
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		products: repository.ProvideStore[catalogdomain.Product](p.DB),
	}
}

func (s *Service) LookupByIDs(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]catalogdomain.Product, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, catalogdomain.ErrInvalidTenant
	}
	if len(ids) == 0 {
		return map[snowflake.ID]catalogdomain.Product{}, nil
	}

	var products []catalogdomain.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	resolved := make(map[snowflake.ID]catalogdomain.Product, len(products))
	for _, product := range products {
		resolved[product.ID] = product
	}
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			return nil, catalogdomain.ErrNotFound
		}
	}
	return resolved, nil
}

func (s *Service) List(ctx context.Context) ([]catalogdomain.Product, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, catalogdomain.ErrInvalidTenant
	}

	items, err := s.products.Find(ctx, &catalogdomain.Product{TenantID: tenantID, Active: true})
	if err != nil {
		return nil, err
	}

	products := make([]catalogdomain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}
	return products, nil
}
