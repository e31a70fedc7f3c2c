package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/billbook/internal/audit"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/bill"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/ledger"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/observability"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/party"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/internal/payment"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/smallbiznis/billbook/internal/tax"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	audit.Module,
	tax.Module,
	party.Module,
	ledger.Module,
	payment.Module,
	bill.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(SecurityHeaders(cfg.IsProduction()))
	r.Use(obslogger.GinMiddleware(log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(tracing.GinMiddleware(tracing.MiddlewareConfig{
		SkipPaths:       []string{"/healthz", "/metrics"},
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	partySvc   partydomain.Service
	ledgerSvc  ledgerdomain.Service
	billSvc    billdomain.Service
	paymentSvc paymentdomain.Service
	taxSvc     taxdomain.Service
	auditSvc   auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	PartySvc   partydomain.Service
	LedgerSvc  ledgerdomain.Service
	BillSvc    billdomain.Service
	PaymentSvc paymentdomain.Service
	TaxSvc     taxdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		partySvc:   p.PartySvc,
		ledgerSvc:  p.LedgerSvc,
		billSvc:    p.BillSvc,
		paymentSvc: p.PaymentSvc,
		taxSvc:     p.TaxSvc,
		auditSvc:   p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", OrgContext())

	// -------- Parties --------
	api.POST("/parties", s.RegisterParty)
	api.GET("/parties", s.ListParties)
	api.GET("/parties/:id", s.GetPartyByID)
	api.GET("/parties/:id/balance", s.GetPartyBalance)
	api.GET("/parties/:id/ledger", s.ListPartyLedger)
	api.POST("/parties/:id/replay", s.ReplayPartyLedger)
	api.POST("/parties/:id/deactivate", s.DeactivateParty)

	// -------- Bills --------
	api.POST("/bills", s.CreateBill)
	api.GET("/bills", s.ListBills)
	api.GET("/bills/:id", s.GetBillByID)
	api.GET("/bills/:id/payments", s.ListBillPayments)
	api.POST("/bills/:id/cancel", s.CancelBill)
	api.POST("/bills/:id/returns", s.PostReturn)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)

	// -------- Tax Rates --------
	api.GET("/tax-rates", s.ListTaxRates)
	api.POST("/tax-rates", s.CreateTaxRate)
	api.POST("/tax-rates/:id/disable", s.DisableTaxRate)

	if s.auditSvc != nil {
		api.GET("/audit-logs", s.ListAuditLogs)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
