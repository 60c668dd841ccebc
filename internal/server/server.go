// Package server exposes the billing core over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/carelink/billing/internal/billing/service"
	"github.com/carelink/billing/internal/catalog"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/ledger"
	obsmetrics "github.com/carelink/billing/internal/observability/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, m *obsmetrics.Metrics, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(obsmetrics.GinMiddleware(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine  *gin.Engine
	billing *service.Service
	catalog *catalog.Catalog
	ledger  *ledger.Service
	log     *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Billing *service.Service
	Catalog *catalog.Catalog
	Ledger  *ledger.Service
	Log     *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:  p.Gin,
		billing: p.Billing,
		catalog: p.Catalog,
		ledger:  p.Ledger,
		log:     p.Log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/invoices", s.listInvoices)
	api.GET("/invoices/queue", s.invoiceQueue)
	api.GET("/invoices/:id", s.getInvoice)

	api.POST("/payments", s.processPayment)

	api.GET("/records", s.listRecords)
	api.PATCH("/records/:id/status", s.updateRecordStatus)
	api.DELETE("/records", s.clearRecords)

	api.GET("/discounts", s.listDiscounts)
	api.POST("/discounts/validate", s.validateDiscount)

	api.GET("/dashboard/summary", s.dashboardSummary)
	api.PUT("/settings/remote-sync", s.setRemoteSync)
}
