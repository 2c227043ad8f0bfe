package crm

import (
	"github.com/opencounter/opencounter/internal/crm/service"
	"go.uber.org/fx"
)

var Module = fx.Module("crm.service",
	fx.Provide(service.NewService),
)
