// Package seed prepares the minimal data a fresh install needs.
package seed

import (
	"github.com/bwmarrin/snowflake"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureTenantSettings materializes the settings row for a tenant so later
// reads and updates have something to patch. Existing rows are untouched.
func EnsureTenantSettings(conn *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	if tenantID == 0 {
		return nil
	}

	settings := settingsdomain.Defaults(tenantID)
	settings.ID = node.Generate()
	return conn.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoNothing: true,
		}).
		Create(&settings).Error
}
