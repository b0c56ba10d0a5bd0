package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/leadbridge/internal/attribution"
	"github.com/smallbiznis/leadbridge/internal/campaign"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/connection"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	leaddomain "github.com/smallbiznis/leadbridge/internal/lead/domain"
	"github.com/smallbiznis/leadbridge/internal/observability"
	obslogger "github.com/smallbiznis/leadbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/leadbridge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/leadbridge/internal/observability/tracing"
	"github.com/smallbiznis/leadbridge/internal/ratelimit"
	rotationdomain "github.com/smallbiznis/leadbridge/internal/rotation/domain"
	settingsdomain "github.com/smallbiznis/leadbridge/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(
		fx.Annotate(
			func(t *connection.Tester) *connection.Tester { return t },
			fx.As(new(ConnectionTester)),
		),
		fx.Annotate(
			func(c *campaign.Catalog) *campaign.Catalog { return c },
			fx.As(new(CampaignCatalog)),
		),
		fx.Annotate(
			func(r *geolocation.Resolver) *geolocation.Resolver { return r },
			fx.As(new(GeoResolver)),
		),
		fx.Annotate(
			func(c *crm.Client) *crm.Client { return c },
			fx.As(new(HealthChecker)),
		),
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type ConnectionTester interface {
	Test(ctx context.Context, apiKey string) connection.Result
	Retest(ctx context.Context, apiKey string) connection.Result
	Status(ctx context.Context, apiKey string) connection.Result
}

type CampaignCatalog interface {
	List(ctx context.Context) ([]crm.Campaign, error)
	Options(ctx context.Context) ([]campaign.Option, error)
}

type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (*geolocation.Location, error)
	ClearCache(ctx context.Context, ip string) error
	ClearAllCache(ctx context.Context) (int, error)
	TestConnectivity(ctx context.Context) geolocation.ConnectivityResult
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) crm.Result
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
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
	engine      *gin.Engine
	cfg         config.Config
	leadSvc     leaddomain.Service
	settingsSvc settingsdomain.Service
	rotationSvc rotationdomain.Service
	connection  ConnectionTester
	campaigns   CampaignCatalog
	geo         GeoResolver
	crmHealth   HealthChecker
	attribution *attribution.Service
	limiter     *ratelimit.SubmissionLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	LeadSvc     leaddomain.Service
	SettingsSvc settingsdomain.Service
	RotationSvc rotationdomain.Service
	Connection  ConnectionTester
	Campaigns   CampaignCatalog
	Geo         GeoResolver
	CRMHealth   HealthChecker
	Attribution *attribution.Service
	Limiter     *ratelimit.SubmissionLimiter `optional:"true"`
}

func NewServer(p ServerParams) (*Server, error) {
	// Forwarding headers are only honoured from these peers; with none
	// configured gin.Context.ClientIP is the socket address.
	if err := p.Gin.SetTrustedProxies(p.Cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		leadSvc:     p.LeadSvc,
		settingsSvc: p.SettingsSvc,
		rotationSvc: p.RotationSvc,
		connection:  p.Connection,
		campaigns:   p.Campaigns,
		geo:         p.Geo,
		crmHealth:   p.CRMHealth,
		attribution: p.Attribution,
		limiter:     p.Limiter,
	}

	svc.RegisterPublicRoutes()
	svc.RegisterAdminRoutes()
	return svc, nil
}

func (s *Server) RegisterPublicRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(ClientIP())
	v1.Use(attribution.GinMiddleware(s.attribution))

	v1.POST("/forms/:page_id/:widget_id/submissions", s.SubmissionRateLimit(), s.SubmitForm)
	v1.GET("/geolocation", s.GetLocation)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/v1/admin")
	admin.Use(s.AdminRequired())

	admin.GET("/api-key", s.GetAPIKey)
	admin.PUT("/api-key", s.UpdateAPIKey)
	admin.GET("/settings", s.GetSettings)
	admin.PUT("/settings", s.UpdateSettings)
	admin.GET("/fields", s.FieldSchema)

	admin.POST("/connection/test", s.TestConnection)
	admin.GET("/connection/status", s.ConnectionStatus)
	admin.GET("/campaigns", s.ListCampaigns)
	admin.GET("/crm/health", s.CRMHealth)

	admin.GET("/geolocation/test", s.TestGeolocation)
	admin.DELETE("/geolocation/cache", s.ClearAllGeolocationCache)
	admin.DELETE("/geolocation/cache/:ip", s.ClearGeolocationCache)

	admin.GET("/rotations/:form_id", s.GetRotation)
	admin.DELETE("/rotations/:form_id", s.ResetRotation)

	admin.GET("/attribution/debug", s.AttributionDebug)
}
