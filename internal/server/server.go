package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/sheetseries/internal/analytics"
	"github.com/smallbiznis/sheetseries/internal/auth"
	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/fetcher"
	"github.com/smallbiznis/sheetseries/internal/ingestion"
	ingestdomain "github.com/smallbiznis/sheetseries/internal/ingestion/domain"
	"github.com/smallbiznis/sheetseries/internal/ingestrun"
	rundomain "github.com/smallbiznis/sheetseries/internal/ingestrun/domain"
	"github.com/smallbiznis/sheetseries/internal/observability"
	obsmiddleware "github.com/smallbiznis/sheetseries/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sheetseries/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sheetseries/internal/observability/tracing"
	"github.com/smallbiznis/sheetseries/internal/ratelimit"
	"github.com/smallbiznis/sheetseries/internal/timeseries"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
	"github.com/smallbiznis/sheetseries/internal/workbook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services groups the domain modules the HTTP server depends on.
var Services = fx.Options(
	timeseries.Module,
	analytics.Module,
	ingestrun.Module,
	workbook.Module,
	fetcher.Module,
	ingestion.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ratelimit.Module,
	auth.Module,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	registry      *config.ClientRegistry
	ingestSvc     ingestdomain.Service
	analyticsSvc  analyticsdomain.Service
	runSvc        rundomain.Service
	pointSvc      tsdomain.Service
	workbooks     workbook.Store
	obsMetrics    *obsmetrics.Metrics
	ingestLimiter *ratelimit.IngestLimiter
	adminVerifier *auth.AdminVerifier
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	Registry      *config.ClientRegistry
	IngestSvc     ingestdomain.Service
	AnalyticsSvc  analyticsdomain.Service
	RunSvc        rundomain.Service
	PointSvc      tsdomain.Service
	Workbooks     workbook.Store
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
	AdminVerifier *auth.AdminVerifier      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		registry:      p.Registry,
		ingestSvc:     p.IngestSvc,
		analyticsSvc:  p.AnalyticsSvc,
		runSvc:        p.RunSvc,
		pointSvc:      p.PointSvc,
		workbooks:     p.Workbooks,
		obsMetrics:    p.ObsMetrics,
		ingestLimiter: p.IngestLimiter,
		adminVerifier: p.AdminVerifier,
	}
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ingestion --------
	api.POST("/ingest/upload", s.IngestRateLimit(), s.UploadWorkbook)
	api.POST("/ingest/by-client-region", s.IngestRateLimit(), s.IngestByClientRegion)
	api.GET("/ingest/runs", s.ListIngestRuns)

	// -------- Display --------
	api.GET("/stats", s.GetStats)
	api.GET("/display/latest", s.GetLatest)
	api.GET("/display/by-date", s.GetSnapshot)

	// -------- Workbooks --------
	api.GET("/workbooks/:handle/sheets", s.ListWorkbookSheets)
	api.GET("/workbooks/:handle/sheets/:name", s.PreviewWorkbookSheet)

	// -------- Options --------
	api.GET("/options/clients", s.ListClients)
	api.GET("/options/regions", s.ListRegions)
	api.GET("/options/workspaces", s.ListWorkspaces)
	api.GET("/options/combinations", s.ListCombinations)

	if !s.cfg.IsProduction() {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(s.AdminTokenRequired())

	admin.POST("/cleanup/old-data", s.CleanupOldData)
}
