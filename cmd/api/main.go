package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/internal/cache"
	"github.com/getmentor/consultations-api/internal/database/postgres"
	"github.com/getmentor/consultations-api/internal/engine"
	"github.com/getmentor/consultations-api/internal/handlers"
	"github.com/getmentor/consultations-api/internal/jobs"
	"github.com/getmentor/consultations-api/internal/middleware"
	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/getmentor/consultations-api/internal/services"
	"github.com/getmentor/consultations-api/pkg/clock"
	"github.com/getmentor/consultations-api/pkg/db"
	"github.com/getmentor/consultations-api/pkg/httpclient"
	"github.com/getmentor/consultations-api/pkg/idgen"
	"github.com/getmentor/consultations-api/pkg/jwt"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/getmentor/consultations-api/pkg/metrics"
	"github.com/getmentor/consultations-api/pkg/profiling"
	"github.com/getmentor/consultations-api/pkg/tracing"
	"github.com/getmentor/consultations-api/pkg/trigger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// stores bundles the persistence backend selected by STORAGE_BACKEND
type stores struct {
	requests repository.ConsultationStore
	slots    repository.SlotStore
	pinger   repository.Pinger // nil for the in-memory backend
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Backend == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		memory := repository.NewMemoryStore()
		return &stores{requests: memory, slots: memory, close: func() {}}, nil
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		CAFile:   cfg.Database.CAFile,
	})
	if err != nil {
		return nil, err
	}

	client := postgres.NewClient(pool)
	return &stores{requests: client, slots: client, pinger: client, close: client.Close}, nil
}

// registerRoutes wires every /api/v1 endpoint
func registerRoutes(
	router *gin.Engine,
	cfg *config.Config,
	tokenManager *jwt.TokenManager,
	apiRateLimiter, sessionRateLimiter *middleware.RateLimiter,
	consultationHandler *handlers.ConsultationHandler,
	slotHandler *handlers.SlotHandler,
	sessionHandler *handlers.SessionHandler,
	logsHandler *handlers.LogsHandler,
) {
	// Service-to-service: the platform in front of this API mints actor sessions here
	internal := router.Group("/api/v1/internal")
	internal.POST("/sessions",
		sessionRateLimiter.Middleware(),
		middleware.InternalAPIAuthMiddleware(cfg.Auth.APIToken),
		middleware.BodySizeLimitMiddleware(4*1024),
		sessionHandler.IssueSession)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ActorSessionMiddleware(tokenManager))
	v1.Use(apiRateLimiter.Middleware())
	v1.Use(middleware.BodySizeLimitMiddleware(64 * 1024))

	// Requests and offers
	v1.POST("/requests", consultationHandler.CreateRequest)
	v1.GET("/requests", consultationHandler.ListRequests)
	v1.GET("/requests/:id", consultationHandler.GetRequest)
	v1.POST("/requests/:id/cancel", consultationHandler.CancelRequest)
	v1.POST("/requests/:id/close", consultationHandler.CloseRequest)
	v1.POST("/requests/:id/offers", consultationHandler.SubmitOffer)
	v1.GET("/offers/:id", consultationHandler.GetOffer)
	v1.POST("/offers/:id/accept", consultationHandler.AcceptOffer)
	v1.POST("/offers/:id/reject", consultationHandler.RejectOffer)
	v1.POST("/offers/:id/withdraw", consultationHandler.WithdrawOffer)
	v1.GET("/instructor/offers", consultationHandler.ListInstructorOffers)

	// Slots and bookings
	v1.POST("/slots", slotHandler.CreateSlot)
	v1.GET("/slots/:id", slotHandler.GetSlot)
	v1.GET("/slots/:id/action", slotHandler.ResolveAction)
	v1.POST("/slots/:id/bookings", slotHandler.BookSlot)
	v1.GET("/instructors/:id/slots", slotHandler.ListInstructorSlots)
	v1.GET("/bookings/:id", slotHandler.GetBooking)
	v1.POST("/bookings/:id/confirm", slotHandler.ConfirmBooking)
	v1.POST("/bookings/:id/complete", slotHandler.CompleteBooking)
	v1.POST("/bookings/:id/cancel", slotHandler.CancelBooking)

	// Client-side error reports, tagged with the reporting actor
	v1.POST("/logs", logsHandler.ReceiveClientLogs)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Consultations API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
		zap.String("storage", cfg.Storage.Backend),
	)

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(
		cfg.Observability.ServiceName,
		cfg.Observability.ServiceNamespace,
		cfg.Observability.ServiceVersion,
		cfg.Observability.ServiceInstanceID,
		cfg.Server.AppEnv,
		cfg.Observability.AlloyEndpoint,
	)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Continuous profiling (no-op unless enabled)
	stopProfiler, err := profiling.InitProfiler(cfg.Profiling, profiling.Identity{
		ServiceName: cfg.Observability.ServiceName,
		Namespace:   cfg.Observability.ServiceNamespace,
		Version:     cfg.Observability.ServiceVersion,
		InstanceID:  cfg.Observability.ServiceInstanceID,
		Environment: cfg.Server.AppEnv,
	})
	if err != nil {
		logger.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer stopProfiler()

	metrics.Init(cfg.Observability.ServiceName)
	metrics.RecordInfrastructureMetrics()

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid booking timezone", zap.Error(err))
	}

	// NOTE: Database migrations run separately via the migrate command
	backend, err := openStores(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer backend.close()

	// Engines
	clk := clock.System{}
	ids := idgen.UUID{}
	matchingEngine := engine.NewMatchingEngine(backend.requests, clk, ids)
	bookingEngine := engine.NewBookingEngine(backend.slots, clk, ids, location)

	requestCache := cache.NewRequestCache(cfg.RequestCacheTTL(), cfg.Cache.DisableRequestCache, backend.requests.GetRequest)

	// Outbound event triggers
	dispatcher := trigger.NewDispatcher(httpclient.NewStandardClient(httpclient.DefaultTimeout))

	// Services
	consultationService := services.NewConsultationService(matchingEngine, requestCache, dispatcher, cfg)
	bookingService := services.NewBookingService(bookingEngine, dispatcher, cfg)
	sessionService := services.NewSessionService(cfg)

	// Handlers
	consultationHandler := handlers.NewConsultationHandler(consultationService)
	slotHandler := handlers.NewSlotHandler(bookingService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	logsHandler := handlers.NewLogsHandler(cfg.Logging.Dir)
	healthHandler := handlers.NewHealthHandler(backend.pinger)

	// Aggregate gauges
	var statsJob *jobs.StatsJob
	if cfg.Jobs.StatsCronSpec != "" {
		statsJob = jobs.NewStatsJob(backend.requests, backend.slots)
		if err := statsJob.Start(cfg.Jobs.StatsCronSpec); err != nil {
			logger.Fatal("Failed to start stats job", zap.Error(err))
		}
	}

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName)) // OpenTelemetry tracing
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// CORS configuration - SECURITY: Only allow specific origins
	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://127.0.0.1:3000")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.InternalTokenHeader, "traceparent", "tracestate"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	limiterCtx, stopLimiters := context.WithCancel(context.Background())
	defer stopLimiters()
	opsRateLimiter := middleware.NewRateLimiter(limiterCtx, 100, 200)    // 100 req/sec, burst of 200
	apiRateLimiter := middleware.NewRateLimiter(limiterCtx, 20, 40)      // per actor
	sessionRateLimiter := middleware.NewRateLimiter(limiterCtx, 50, 100) // per calling platform

	// Utility endpoints (not versioned - operational endpoints)
	api := router.Group("/api")
	api.GET("/healthcheck", opsRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", opsRateLimiter.Middleware(), gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	registerRoutes(router, cfg, sessionService.GetTokenManager(), apiRateLimiter, sessionRateLimiter,
		consultationHandler, slotHandler, sessionHandler, logsHandler)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // SECURITY: 1 MB max header size
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if statsJob != nil {
		statsJob.Stop()
	}

	// Let in-flight webhook deliveries finish before the stores close
	dispatcher.Wait()

	if err := logsHandler.Close(); err != nil {
		logger.Warn("Failed to close client log file", zap.Error(err))
	}

	logger.Info("Server exited")
}
