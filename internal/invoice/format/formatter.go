// Package format builds human-facing invoice numbers from counter state.
package format

import (
	"fmt"
	"strings"
	"time"

	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
)

// PeriodGlobal is the period key used when serials never reset.
const PeriodGlobal = "global"

// Period returns the counter bucket for an issue time under a reset cycle.
// Monthly buckets are "2025-06", yearly "2025".
func Period(cycle settingsdomain.ResetCycle, at time.Time) string {
	switch cycle {
	case settingsdomain.ResetMonthly:
		return at.Format("2006-01")
	case settingsdomain.ResetYearly:
		return at.Format("2006")
	default:
		return PeriodGlobal
	}
}

// Number renders the invoice number: prefix, optional branch code, period
// and the zero-padded serial, joined with dashes. The period segment is
// omitted for the global bucket.
func Number(cfg settingsdomain.TenantSettings, period string, serial int64) string {
	parts := []string{cfg.InvoicePrefix}
	if cfg.InvoiceBranchPrefix && cfg.BranchCode != "" {
		parts = append(parts, cfg.BranchCode)
	}
	if period != PeriodGlobal {
		parts = append(parts, period)
	}

	padding := cfg.InvoicePadding
	if padding <= 0 {
		padding = 4
	}
	parts = append(parts, fmt.Sprintf("%0*d", padding, serial))
	return strings.Join(parts, "-")
}
