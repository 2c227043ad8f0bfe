package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	"github.com/opencounter/opencounter/internal/clock"
	invoicedomain "github.com/opencounter/opencounter/internal/invoice/domain"
	"github.com/opencounter/opencounter/internal/invoice/format"
	obsmetrics "github.com/opencounter/opencounter/internal/observability/metrics"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	"github.com/opencounter/opencounter/internal/ratelimit"
	"github.com/opencounter/opencounter/internal/render"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	"github.com/opencounter/opencounter/pkg/db"
	"github.com/opencounter/opencounter/pkg/repository"
	"github.com/opencounter/opencounter/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	SettingsSvc settingsdomain.Service
	AuditSvc    auditdomain.Service
	Renderer    render.Renderer     `optional:"true"`
	Locker      *ratelimit.Locker   `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	settingsSvc settingsdomain.Service
	auditSvc    auditdomain.Service
	renderer    render.Renderer
	locker      *ratelimit.Locker
	metrics     *obsmetrics.Metrics

	invoices repository.Repository[invoicedomain.Invoice]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		settingsSvc: p.SettingsSvc,
		auditSvc:    p.AuditSvc,
		renderer:    p.Renderer,
		locker:      p.Locker,
		metrics:     p.Metrics,

		invoices: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) Allocate(ctx context.Context, orderID snowflake.ID) (*invoicedomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}

	// Fast path: the order was already invoiced.
	if existing, err := s.findByOrder(ctx, tenantID, orderID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	cfg, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return nil, err
	}

	issuedAt := s.clock.Now()
	period := format.Period(cfg.InvoiceResetCycle, issuedAt)
	branch := ""
	if cfg.InvoiceBranchPrefix {
		branch = cfg.BranchCode
	}

	var out *invoicedomain.Aggregate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}

		serial, err := s.nextSerial(ctx, tx, tenantID, branch, period)
		if err != nil {
			return err
		}

		subtotal := order.TotalAmount
		taxRate := 0.0
		taxAmount := 0.0
		if cfg.GSTEnabled && cfg.TaxRate > 0 {
			// Prices are tax inclusive: the invoice total stays equal to
			// what the customer paid and the tax portion is carved out.
			taxRate = cfg.TaxRate
			taxAmount = orderdomain.Round2(order.TotalAmount * taxRate / (100 + taxRate))
			subtotal = orderdomain.Round2(order.TotalAmount - taxAmount)
		}

		invoice := invoicedomain.Invoice{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			OrderID:     orderID,
			Number:      format.Number(cfg, period, serial),
			Period:      period,
			Serial:      serial,
			Subtotal:    subtotal,
			TaxRate:     taxRate,
			TaxAmount:   taxAmount,
			TotalAmount: order.TotalAmount,
			IssuedAt:    issuedAt,
			CreatedAt:   issuedAt,
		}
		result := tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}},
				DoNothing: true,
			}).
			Create(&invoice)
		if result.Error != nil {
			return result.Error
		}
		// A concurrent allocation for the same order won the race; the
		// losing counter increment rolls back with this transaction.
		if result.RowsAffected == 0 {
			return errAlreadyAllocated
		}

		lines, err := s.snapshotLines(ctx, tx, tenantID, orderID, invoice.ID, taxRate, issuedAt)
		if err != nil {
			return err
		}

		out = &invoicedomain.Aggregate{Invoice: invoice, Lines: lines}
		return nil
	})
	if err == errAlreadyAllocated {
		return s.getByOrder(ctx, tenantID, orderID)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordInvoiceAllocated(string(cfg.InvoiceResetCycle))
	}
	s.auditSvc.Record(ctx, "invoice.allocated", out.Invoice.ID, map[string]any{
		"number":   out.Invoice.Number,
		"order_id": out.Invoice.OrderID.Int64(),
	})
	s.renderAsync(ctx, *out, cfg)

	return out, nil
}

var errAlreadyAllocated = fmt.Errorf("invoice already allocated")

func (s *Service) GetByOrder(ctx context.Context, orderID snowflake.ID) (*invoicedomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}
	return s.getByOrder(ctx, tenantID, orderID)
}

func (s *Service) List(ctx context.Context, period string) ([]invoicedomain.Invoice, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if period != "" {
		query = query.Where("period = ?", period)
	}

	var invoices []invoicedomain.Invoice
	if err := query.Order("serial ASC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) AttachDocument(ctx context.Context, invoiceID snowflake.ID, ref string) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return invoicedomain.ErrInvalidTenant
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET document_ref = ? WHERE id = ? AND tenant_id = ?`,
		ref, invoiceID, tenantID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invoicedomain.ErrNotFound
	}
	return nil
}

// nextSerial increments the counter under a row lock, creating it on first
// use. The created row starts at serial 1. The conflict-free insert matters:
// a duplicate-key error would poison the surrounding transaction, so the
// first-use race is settled with ON CONFLICT DO NOTHING and a re-lock.
func (s *Service) nextSerial(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, branch, period string) (int64, error) {
	serial, err := s.incrementCounter(ctx, tx, tenantID, branch, period)
	if err != nil || serial != 0 {
		return serial, err
	}

	now := s.clock.Now()
	created := invoicedomain.Counter{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Branch:    branch,
		Period:    period,
		Serial:    1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "branch"}, {Name: "period"}},
			DoNothing: true,
		}).
		Create(&created)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected != 0 {
		return 1, nil
	}

	// Another transaction materialized the counter first; re-lock it.
	serial, err = s.incrementCounter(ctx, tx, tenantID, branch, period)
	if err != nil {
		return 0, err
	}
	if serial == 0 {
		return 0, fmt.Errorf("invoice counter contention: tenant=%d period=%s", tenantID, period)
	}
	return serial, nil
}

// incrementCounter locks the counter row and bumps it. Serial 0 means the
// row does not exist yet.
func (s *Service) incrementCounter(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, branch, period string) (int64, error) {
	var counter invoicedomain.Counter
	query := db.ForUpdate(tx,
		`SELECT id, tenant_id, branch, period, serial
		 FROM invoice_counters
		 WHERE tenant_id = ? AND branch = ? AND period = ?`)
	if err := tx.WithContext(ctx).Raw(query, tenantID, branch, period).Scan(&counter).Error; err != nil {
		return 0, err
	}
	if counter.ID == 0 {
		return 0, nil
	}

	serial := counter.Serial + 1
	err := tx.WithContext(ctx).Exec(
		`UPDATE invoice_counters SET serial = ?, updated_at = ? WHERE id = ?`,
		serial, s.clock.Now(), counter.ID,
	).Error
	return serial, err
}

// loadOrder locks the order row for the snapshot read. Unpaid orders may be
// invoiced too; payment state does not gate allocation.
func (s *Service) loadOrder(ctx context.Context, tx *gorm.DB, tenantID, orderID snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	query := db.ForUpdate(
		tx,
		`SELECT id, tenant_id, total_amount, is_paid, closed_at
		 FROM orders
		 WHERE id = ? AND tenant_id = ?`)
	if err := tx.WithContext(ctx).Raw(query, orderID, tenantID).Scan(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, orderdomain.ErrNotFound
	}
	return &order, nil
}

func (s *Service) snapshotLines(ctx context.Context, tx *gorm.DB, tenantID, orderID, invoiceID snowflake.ID, taxRate float64, at time.Time) ([]invoicedomain.Line, error) {
	var items []orderdomain.OrderItem
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	lines := make([]invoicedomain.Line, 0, len(items))
	for _, item := range items {
		lineTax := 0.0
		if taxRate > 0 {
			lineTax = orderdomain.Round2(item.Subtotal * taxRate / (100 + taxRate))
		}
		lines = append(lines, invoicedomain.Line{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			InvoiceID:   invoiceID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxAmount:   lineTax,
			Subtotal:    item.Subtotal,
			CreatedAt:   at,
		})
	}
	if len(lines) == 0 {
		return lines, nil
	}
	return lines, tx.WithContext(ctx).Create(&lines).Error
}

// renderAsync hands the snapshot to the PDF renderer off the request path.
// The lock keeps two replicas from rendering the same invoice at once.
func (s *Service) renderAsync(ctx context.Context, agg invoicedomain.Aggregate, cfg settingsdomain.TenantSettings) {
	if s.renderer == nil {
		return
	}

	doc := render.InvoiceDocument{
		Number:    agg.Invoice.Number,
		IssueDate: agg.Invoice.IssuedAt.Format("02 Jan 2006"),
		Subtotal:  formatAmount(agg.Invoice.Subtotal),
		Total:     formatAmount(agg.Invoice.TotalAmount),
	}
	if cfg.GSTEnabled && agg.Invoice.TaxAmount > 0 {
		doc.TaxLabel = fmt.Sprintf("GST %.1f%%", agg.Invoice.TaxRate)
		doc.TaxAmount = formatAmount(agg.Invoice.TaxAmount)
	}
	for _, line := range agg.Lines {
		doc.Items = append(doc.Items, render.DocumentItem{
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: formatAmount(line.UnitPrice),
			Amount:    formatAmount(line.Subtotal),
		})
	}

	renderCtx := context.WithoutCancel(ctx)
	invoiceID := agg.Invoice.ID
	go func() {
		if s.locker != nil {
			release, ok := s.locker.TryLock(renderCtx, fmt.Sprintf("invoice:render:%d", invoiceID), 30*time.Second)
			if !ok {
				return
			}
			defer release()
		}

		ref, err := s.renderer.RenderInvoice(renderCtx, doc)
		if err != nil {
			s.log.Warn("invoice render failed",
				zap.String("number", doc.Number),
				zap.Error(err),
			)
			return
		}
		if err := s.AttachDocument(renderCtx, invoiceID, ref); err != nil {
			s.log.Warn("invoice document not attached",
				zap.String("number", doc.Number),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) findByOrder(ctx context.Context, tenantID, orderID snowflake.ID) (*invoicedomain.Aggregate, error) {
	invoice, err := s.invoices.FindOne(ctx, &invoicedomain.Invoice{TenantID: tenantID, OrderID: orderID})
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, nil
	}

	lines, err := s.loadLines(ctx, tenantID, invoice.ID)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.Aggregate{Invoice: *invoice, Lines: lines}, nil
}

func (s *Service) getByOrder(ctx context.Context, tenantID, orderID snowflake.ID) (*invoicedomain.Aggregate, error) {
	agg, err := s.findByOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return agg, nil
}

func (s *Service) loadLines(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]invoicedomain.Line, error) {
	var lines []invoicedomain.Line
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error
	return lines, err
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
