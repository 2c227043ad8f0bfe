package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	catalogdomain "github.com/opencounter/opencounter/internal/catalog/domain"
	"github.com/opencounter/opencounter/internal/clock"
	crmdomain "github.com/opencounter/opencounter/internal/crm/domain"
	obsmetrics "github.com/opencounter/opencounter/internal/observability/metrics"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
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
	CatalogSvc  catalogdomain.Service
	SettingsSvc settingsdomain.Service
	StockSvc    stockdomain.Service
	TableSvc    tabledomain.Service
	CrmSvc      crmdomain.Service
	AuditSvc    auditdomain.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	catalogSvc  catalogdomain.Service
	settingsSvc settingsdomain.Service
	stockSvc    stockdomain.Service
	tableSvc    tabledomain.Service
	crmSvc      crmdomain.Service
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics

	orders repository.Repository[orderdomain.Order]
	items  repository.Repository[orderdomain.OrderItem]
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		catalogSvc:  p.CatalogSvc,
		settingsSvc: p.SettingsSvc,
		stockSvc:    p.StockSvc,
		tableSvc:    p.TableSvc,
		crmSvc:      p.CrmSvc,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,

		orders: repository.ProvideStore[orderdomain.Order](p.DB),
		items:  repository.ProvideStore[orderdomain.OrderItem](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, orderdomain.ErrInvalidTenant
	}
	outletID, _ := tenantctx.OutletID(ctx)

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	total := sumItems(req.Items)
	if orderdomain.Cents(total) != orderdomain.Cents(req.TotalAmount) {
		return nil, orderdomain.ErrTotalMismatch
	}

	cash, upi, paymentType, err := normalizePayment(req.CashAmount, req.UpiAmount, req.PaymentType, total)
	if err != nil {
		return nil, err
	}

	isPaid := orderdomain.PaidInFull(cash, upi, total)
	if req.IsPaid != nil {
		isPaid = *req.IsPaid
	}

	if req.TableID != nil {
		cfg, err := s.settingsSvc.Get(ctx)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTables {
			return nil, tabledomain.ErrTablesDisabled
		}
	}

	products, err := s.catalogSvc.LookupByIDs(ctx, productIDs(req.Items))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := orderdomain.Order{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		OutletID:    outletID,
		TableID:     req.TableID,
		TotalAmount: total,
		CashAmount:  cash,
		UpiAmount:   upi,
		PaymentType: paymentType,
		IsPaid:      isPaid,
		Metadata:    req.Metadata,
		OpenedAt:    &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if isPaid {
		closed := now
		order.ClosedAt = &closed
	}

	lines := make([]orderdomain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		lines = append(lines, orderdomain.OrderItem{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: products[line.ProductID].Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    orderdomain.Round2(float64(line.Quantity) * line.UnitPrice),
			CreatedAt:   now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range req.Items {
			if _, err := s.stockSvc.AdjustTx(ctx, tx, tenantID, line.ProductID, outletID, -line.Quantity); err != nil {
				return err
			}
		}

		if req.TableID != nil {
			if err := s.tableSvc.BindTx(ctx, tx, tenantID, *req.TableID, order.ID); err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			return err
		}

		// A counter sale paid in full should not leave its table occupied.
		if isPaid && req.TableID != nil {
			if _, err := s.tableSvc.UnbindIfLastTx(ctx, tx, tenantID, *req.TableID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if shortage := asShortage(err); shortage != nil && s.metrics != nil {
			s.metrics.RecordStockConflict("shortage")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(string(paymentType))
	}
	s.auditSvc.Record(ctx, "order.created", order.ID, map[string]any{
		"total_amount": total,
		"is_paid":      isPaid,
		"items":        len(lines),
	})
	if isPaid {
		s.notifyVisit(ctx, order)
	}

	return &orderdomain.Aggregate{Order: order, Items: lines}, nil
}

func (s *Service) AddItems(ctx context.Context, req orderdomain.AddItemsRequest) (*orderdomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, orderdomain.ErrInvalidTenant
	}

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	products, err := s.catalogSvc.LookupByIDs(ctx, productIDs(req.Items))
	if err != nil {
		return nil, err
	}

	var out *orderdomain.Aggregate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, tenantID, req.OrderID)
		if err != nil {
			return err
		}
		if order.IsPaid {
			return orderdomain.ErrOrderPaid
		}

		now := s.clock.Now()
		lines := make([]orderdomain.OrderItem, 0, len(req.Items))
		for _, line := range req.Items {
			if _, err := s.stockSvc.AdjustTx(ctx, tx, tenantID, line.ProductID, order.OutletID, -line.Quantity); err != nil {
				return err
			}
			lines = append(lines, orderdomain.OrderItem{
				ID:          s.genID.Generate(),
				TenantID:    tenantID,
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: products[line.ProductID].Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Subtotal:    orderdomain.Round2(float64(line.Quantity) * line.UnitPrice),
				CreatedAt:   now,
			})
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			return err
		}

		total, err := s.sumStoredItems(ctx, tx, tenantID, order.ID)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE orders SET total_amount = ?, updated_at = ? WHERE id = ?`,
			total, now, order.ID,
		).Error; err != nil {
			return err
		}

		order.TotalAmount = total
		order.UpdatedAt = now
		all, err := s.loadItems(ctx, tx, tenantID, order.ID)
		if err != nil {
			return err
		}
		out = &orderdomain.Aggregate{Order: *order, Items: all}
		return nil
	})
	if err != nil {
		if shortage := asShortage(err); shortage != nil && s.metrics != nil {
			s.metrics.RecordStockConflict("shortage")
		}
		return nil, err
	}

	s.auditSvc.Record(ctx, "order.items_added", out.Order.ID, map[string]any{
		"total_amount": out.Order.TotalAmount,
		"items":        len(req.Items),
	})
	return out, nil
}

func (s *Service) Update(ctx context.Context, req orderdomain.UpdateOrderRequest) (*orderdomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, orderdomain.ErrInvalidTenant
	}

	cfg, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out *orderdomain.Aggregate
	becamePaid := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, tenantID, req.OrderID)
		if err != nil {
			return err
		}
		if order.IsPaid {
			return orderdomain.ErrOrderPaid
		}

		cash := order.CashAmount
		upi := order.UpiAmount
		if req.CashAmount != nil {
			cash = *req.CashAmount
		}
		if req.UpiAmount != nil {
			upi = *req.UpiAmount
		}
		if cash < 0 || upi < 0 {
			return orderdomain.ErrNegativePayment
		}
		if orderdomain.Cents(cash)+orderdomain.Cents(upi) > orderdomain.Cents(order.TotalAmount) {
			return orderdomain.ErrPaymentExceedsTotal
		}

		paymentType := orderdomain.DerivePaymentType(cash, upi)
		if req.PaymentType != nil {
			paymentType = *req.PaymentType
		}

		isPaid := orderdomain.PaidInFull(cash, upi, order.TotalAmount)
		if req.IsPaid != nil {
			isPaid = *req.IsPaid
		}

		now := s.clock.Now()
		order.CashAmount = cash
		order.UpiAmount = upi
		order.PaymentType = paymentType
		order.UpdatedAt = now
		if isPaid {
			order.IsPaid = true
			closed := now
			order.ClosedAt = &closed
			becamePaid = true
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE orders SET cash_amount = ?, upi_amount = ?, payment_type = ?, is_paid = ?, closed_at = ?, updated_at = ?
			 WHERE id = ?`,
			order.CashAmount, order.UpiAmount, order.PaymentType, order.IsPaid, order.ClosedAt, now, order.ID,
		).Error; err != nil {
			return err
		}

		if becamePaid && order.TableID != nil && cfg.AutoFreeTableOnPayment {
			if _, err := s.tableSvc.UnbindIfLastTx(ctx, tx, tenantID, *order.TableID, order.ID); err != nil {
				return err
			}
		}

		items, err := s.loadItems(ctx, tx, tenantID, order.ID)
		if err != nil {
			return err
		}
		out = &orderdomain.Aggregate{Order: *order, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if becamePaid {
		s.auditSvc.Record(ctx, "order.paid", out.Order.ID, map[string]any{
			"cash_amount": out.Order.CashAmount,
			"upi_amount":  out.Order.UpiAmount,
		})
		s.notifyVisit(ctx, out.Order)
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*orderdomain.Aggregate, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, orderdomain.ErrInvalidTenant
	}

	order, err := s.orders.FindOne(ctx, &orderdomain.Order{ID: id, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}

	items, err := s.loadItems(ctx, s.db, tenantID, order.ID)
	if err != nil {
		return nil, err
	}
	return &orderdomain.Aggregate{Order: *order, Items: items}, nil
}

func (s *Service) List(ctx context.Context, req orderdomain.ListRequest) ([]orderdomain.Order, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, orderdomain.ErrInvalidTenant
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if req.IsPaid != nil {
		query = query.Where("is_paid = ?", *req.IsPaid)
	}
	if req.TableID != nil {
		query = query.Where("table_id = ?", *req.TableID)
	}

	var orders []orderdomain.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// notifyVisit is fire and forget: a CRM failure must never surface to the
// cashier flow.
func (s *Service) notifyVisit(ctx context.Context, order orderdomain.Order) {
	req := crmdomain.VisitRequest{
		OrderID: order.ID,
		Amount:  order.TotalAmount,
	}
	if name, ok := order.Metadata["customer_name"].(string); ok {
		req.CustomerName = name
	}
	if phone, ok := order.Metadata["customer_phone"].(string); ok {
		req.Phone = phone
	}

	visitCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.crmSvc.RecordVisit(visitCtx, req); err != nil {
			s.log.Warn("visit not recorded",
				zap.Int64("order_id", int64(order.ID)),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, tenantID, orderID snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	query := db.ForUpdate(tx,
		`SELECT id, tenant_id, outlet_id, table_id, total_amount, cash_amount, upi_amount,
		        payment_type, is_paid, metadata, opened_at, closed_at, created_at, updated_at
		 FROM orders
		 WHERE id = ? AND tenant_id = ?`)
	err := tx.WithContext(ctx).Raw(query, orderID, tenantID).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, orderdomain.ErrNotFound
	}
	return &order, nil
}

func (s *Service) loadItems(ctx context.Context, conn *gorm.DB, tenantID, orderID snowflake.ID) ([]orderdomain.OrderItem, error) {
	var items []orderdomain.OrderItem
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (s *Service) sumStoredItems(ctx context.Context, tx *gorm.DB, tenantID, orderID snowflake.ID) (float64, error) {
	items, err := s.loadItems(ctx, tx, tenantID, orderID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, item := range items {
		total += item.Subtotal
	}
	return orderdomain.Round2(total), nil
}

func validateItems(items []orderdomain.LineItemRequest) error {
	if len(items) == 0 {
		return orderdomain.ErrInvalidItems
	}
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 || item.UnitPrice <= 0 {
			return orderdomain.ErrInvalidItems
		}
	}
	return nil
}

func sumItems(items []orderdomain.LineItemRequest) float64 {
	var total float64
	for _, item := range items {
		total += orderdomain.Round2(float64(item.Quantity) * item.UnitPrice)
	}
	return orderdomain.Round2(total)
}

func productIDs(items []orderdomain.LineItemRequest) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// normalizePayment resolves the payment split. An explicit cash/upi split
// wins; the legacy single PaymentType field assigns the full total to that
// channel; with neither the order opens unpaid.
func normalizePayment(cashReq, upiReq *float64, typeReq *orderdomain.PaymentType, total float64) (float64, float64, orderdomain.PaymentType, error) {
	var cash, upi float64
	switch {
	case cashReq != nil || upiReq != nil:
		if cashReq != nil {
			cash = *cashReq
		}
		if upiReq != nil {
			upi = *upiReq
		}
	case typeReq != nil:
		switch *typeReq {
		case orderdomain.PaymentCash:
			cash = total
		case orderdomain.PaymentUPI:
			upi = total
		default:
			return 0, 0, "", orderdomain.ErrInvalidPayment
		}
	}

	if cash < 0 || upi < 0 {
		return 0, 0, "", orderdomain.ErrNegativePayment
	}
	if orderdomain.Cents(cash)+orderdomain.Cents(upi) > orderdomain.Cents(total) {
		return 0, 0, "", orderdomain.ErrPaymentExceedsTotal
	}

	paymentType := orderdomain.DerivePaymentType(cash, upi)
	if typeReq != nil {
		paymentType = *typeReq
	}
	return cash, upi, paymentType, nil
}

func asShortage(err error) *stockdomain.ShortageError {
	var shortage *stockdomain.ShortageError
	if errors.As(err, &shortage) {
		return shortage
	}
	return nil
}
