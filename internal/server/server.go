package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/opencounter/opencounter/internal/alerts"
	"github.com/opencounter/opencounter/internal/audit"
	auditdomain "github.com/opencounter/opencounter/internal/audit/domain"
	"github.com/opencounter/opencounter/internal/catalog"
	catalogdomain "github.com/opencounter/opencounter/internal/catalog/domain"
	"github.com/opencounter/opencounter/internal/clock"
	"github.com/opencounter/opencounter/internal/config"
	"github.com/opencounter/opencounter/internal/crm"
	crmdomain "github.com/opencounter/opencounter/internal/crm/domain"
	"github.com/opencounter/opencounter/internal/invoice"
	invoicedomain "github.com/opencounter/opencounter/internal/invoice/domain"
	"github.com/opencounter/opencounter/internal/migration"
	"github.com/opencounter/opencounter/internal/observability"
	obsmiddleware "github.com/opencounter/opencounter/internal/observability/logger"
	obsmetrics "github.com/opencounter/opencounter/internal/observability/metrics"
	obstracing "github.com/opencounter/opencounter/internal/observability/tracing"
	"github.com/opencounter/opencounter/internal/order"
	orderdomain "github.com/opencounter/opencounter/internal/order/domain"
	"github.com/opencounter/opencounter/internal/ratelimit"
	"github.com/opencounter/opencounter/internal/render"
	"github.com/opencounter/opencounter/internal/settings"
	settingsdomain "github.com/opencounter/opencounter/internal/settings/domain"
	"github.com/opencounter/opencounter/internal/stock"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
	"github.com/opencounter/opencounter/internal/table"
	tabledomain "github.com/opencounter/opencounter/internal/table/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	clock.Module,
	fx.Provide(registerGin),
	migration.Module,
	audit.Module,
	catalog.Module,
	settings.Module,
	stock.Module,
	table.Module,
	crm.Module,
	order.Module,
	render.Module,
	invoice.Module,
	ratelimit.Module,
	alerts.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	orderSvc    orderdomain.Service
	tableSvc    tabledomain.Service
	stockSvc    stockdomain.Service
	invoiceSvc  invoicedomain.Service
	catalogSvc  catalogdomain.Service
	settingsSvc settingsdomain.Service
	crmSvc      crmdomain.Service
	auditSvc    auditdomain.Service
	limiter     *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	OrderSvc    orderdomain.Service
	TableSvc    tabledomain.Service
	StockSvc    stockdomain.Service
	InvoiceSvc  invoicedomain.Service
	CatalogSvc  catalogdomain.Service
	SettingsSvc settingsdomain.Service
	CrmSvc      crmdomain.Service
	AuditSvc    auditdomain.Service
	Limiter     *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		orderSvc:    p.OrderSvc,
		tableSvc:    p.TableSvc,
		stockSvc:    p.StockSvc,
		invoiceSvc:  p.InvoiceSvc,
		catalogSvc:  p.CatalogSvc,
		settingsSvc: p.SettingsSvc,
		crmSvc:      p.CrmSvc,
		auditSvc:    p.AuditSvc,
		limiter:     p.Limiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.TenantRequired())

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)
	api.PATCH("/orders/:id", s.UpdateOrder)
	api.POST("/orders/:id/items", s.AddOrderItems)

	// -------- Invoices --------
	api.POST("/orders/:id/invoice", s.AllocateInvoice)
	api.GET("/orders/:id/invoice", s.GetInvoiceByOrder)
	api.GET("/invoices", s.ListInvoices)

	// -------- Tables --------
	api.POST("/tables", s.CreateTable)
	api.GET("/tables", s.ListTables)
	api.GET("/tables/:id", s.GetTableByID)
	api.PATCH("/tables/:id/status", s.SetTableStatus)
	api.DELETE("/tables/:id", s.DeactivateTable)
	api.POST("/tables/switch", s.SwitchTable)
	api.POST("/tables/merge", s.MergeTables)

	// -------- Stock --------
	api.GET("/stock/:productId", s.GetStock)
	api.POST("/stock/adjust", s.AdjustStock)
	api.PUT("/stock", s.SetStock)
	api.GET("/stock/low", s.ListLowStock)

	// -------- Catalog --------
	api.GET("/products", s.ListProducts)

	// -------- Settings --------
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.UpdateSettings)

	// -------- CRM --------
	api.GET("/visits", s.RateLimited("visits", 5, 10), s.ListVisits)

	// -------- Audit --------
	api.GET("/audit", s.ListAuditLogs)
}
