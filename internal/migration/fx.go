package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/opencounter/opencounter/internal/config"
	"github.com/opencounter/opencounter/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		// The embedded migrations target postgres; other dialects are
		// expected to be provisioned out of band.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		return seed.EnsureTenantSettings(conn, node, snowflake.ID(cfg.DefaultTenantID))
	}),
)
