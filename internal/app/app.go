package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"adaptiveclean/internal/config"
	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/eventbus"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/ingest"
	customMiddleware "adaptiveclean/internal/middleware"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/services"
	"adaptiveclean/internal/storage"
	_ "adaptiveclean/internal/storage/all"
	handlers "adaptiveclean/internal/transport/http"
	ws "adaptiveclean/internal/websocket"
)

// AppName is reported in logs and telemetry.
const AppName = "adaptiveclean"

var (
	// Version is set at link time.
	Version = "dev"
	// BuildTime is set at link time.
	BuildTime = ""
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

const (
	runtimeMetricsInterval = 15 * time.Second
	redisDialTimeout       = 5 * time.Second
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(Version))
	h.Write([]byte(BuildTime))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Store         storage.Repository
	WebSocketHub  *ws.Hub
	Manager       *operations.Manager
	Learner       *feedback.Learner
	Services      *ServiceContainer

	runtime    *infrastructure.RuntimeCollector
	redis      *redis.Client
	relay      *eventbus.Relay
	stopRelay  context.CancelFunc
	background sync.WaitGroup
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Datasets *services.DatasetService
	Cleaning *services.CleaningService
	Learning *services.LearningService
	Health   *services.HealthService
}

// NewApplication loads the configuration from the environment and builds
// the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, apierrors.NewConfigError("failed to load configuration", err).
			WithContext("env_prefix", config.EnvPrefix).
			WithContext("config_file", os.Getenv(config.ConfigFileEnv))
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(context.Background(), cfg, logger)
}

// New builds the application from cfg. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.InfoContext(ctx, "application_starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("build_id", BuildID),
		slog.String("storage", cfg.Storage.Kind))

	paths := cfg.Paths()
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	providers, err := infrastructure.InitializeOTel(otelConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
	}

	if err := a.initializeServices(ctx); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func otelConfig(cfg *config.Config) *infrastructure.OTelConfig {
	return &infrastructure.OTelConfig{
		ServiceName:    infrastructure.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}
}

// initializeServices initializes all application services
func (a *Application) initializeServices(ctx context.Context) error {
	if meter := a.OTelProviders.Meter; meter != nil {
		metrics, err := infrastructure.CreateBusinessMetrics(meter)
		if err != nil {
			return fmt.Errorf("failed to create business metrics: %w", err)
		}
		a.Metrics = metrics

		collector, err := infrastructure.NewRuntimeCollector(meter, runtimeMetricsInterval)
		if err != nil {
			return fmt.Errorf("failed to create runtime metrics: %w", err)
		}
		a.runtime = collector
	}

	store, err := storage.New(ctx, storage.Config{Kind: a.Config.Storage.Kind, DSN: a.Config.Storage.DSN})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.Store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure storage schema: %w", err)
	}

	a.Learner = feedback.NewLearner(feedback.WithLogger(a.Logger))
	a.Manager = operations.NewManager(a.Logger)
	a.WebSocketHub = ws.NewHub(a.Logger)

	observers := []operations.EventSink{operations.HubSink{Hub: a.WebSocketHub}}
	if a.Config.Redis.Enabled {
		sink, err := a.connectRedis(ctx)
		if err != nil {
			// Fan-out is optional; local clients still get every event.
			a.Logger.WarnContext(ctx, "redis_unavailable",
				slog.String("addr", a.Config.Redis.Addr),
				slog.String("error", err.Error()))
		} else {
			observers = append(observers, sink)
		}
	}

	controller := operations.NewController(operations.Dependencies{
		Datasets:     store,
		History:      store,
		Variants:     store,
		Learner:      a.Learner,
		Manager:      a.Manager,
		Metrics:      a.Metrics,
		Logger:       a.Logger,
		HistoryLimit: a.Config.Storage.HistoryLimit,
	})

	a.Services = &ServiceContainer{
		Datasets: services.NewDatasetService(store, a.sheetsReader(ctx), a.Logger),
		Cleaning: services.NewCleaningService(services.CleaningDeps{
			Controller:    controller,
			Manager:       a.Manager,
			Datasets:      store,
			Variants:      store,
			Observers:     observers,
			StaticConfig:  !a.Config.Pipeline.AdaptiveConfig,
			MaxConcurrent: a.Config.Pipeline.MaxConcurrentRuns,
			Logger:        a.Logger,
		}),
		Learning: services.NewLearningService(a.Learner, store, a.Config.Storage.HistoryLimit, a.Logger),
		Health: services.NewHealthService(services.HealthDeps{
			Version:   Version,
			BuildTime: BuildTime,
			StoreKind: a.Config.Storage.Kind,
			Store:     store,
			Hub:       a.WebSocketHub,
			Runs:      a.Manager,
			Logger:    a.Logger,
		}),
	}
	return nil
}

// connectRedis pings the configured server and returns the publishing sink.
// The relay for other instances' events starts with the application.
func (a *Application) connectRedis(ctx context.Context) (*eventbus.RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	sink := eventbus.NewRedisSink(client, a.Config.Redis.Channel, "")
	a.redis = client
	a.relay = eventbus.NewRelay(client, a.Config.Redis.Channel, sink.NodeID(), a.WebSocketHub, a.Logger)
	a.Logger.InfoContext(ctx, "redis_connected",
		slog.String("addr", a.Config.Redis.Addr),
		slog.String("channel", a.Config.Redis.Channel),
		slog.String("node_id", sink.NodeID()))
	return sink, nil
}

// sheetsReader returns nil, which disables imports, unless the
// credentials file exists and yields a client.
func (a *Application) sheetsReader(ctx context.Context) ingest.SheetReader {
	file := a.Config.Sheets.CredentialsFile
	if file == "" || !config.FileExists(file) {
		a.Logger.InfoContext(ctx, "sheets_import_disabled", slog.String("credentials_file", file))
		return nil
	}
	client, err := ingest.NewSheetsClientFromFile(ctx, file)
	if err != nil {
		a.Logger.WarnContext(ctx, "sheets_client_failed",
			slog.String("credentials_file", file),
			slog.String("error", err.Error()))
		return nil
	}
	return timeoutReader{reader: client, timeout: a.Config.Sheets.Timeout}
}

// timeoutReader bounds every sheet read.
type timeoutReader struct {
	reader  ingest.SheetReader
	timeout time.Duration
}

func (t timeoutReader) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.reader.ReadRange(ctx, spreadsheetID, readRange)
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	errHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	validator := customMiddleware.NewValidator(a.Logger)

	r := chi.NewRouter()
	r.NotFound(errHandler.NotFound)
	r.MethodNotAllowed(errHandler.MethodNotAllowed)

	// Websocket upgrades need the raw ResponseWriter, so /ws only gets the
	// middleware that leaves it alone.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).
		Handle("/ws", ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger))

	health := handlers.NewHealthHandler(a.Services.Health, a.Logger)

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
		r.Use(customMiddleware.Recoverer(errHandler))
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.StructuredLogger(a.Logger))
			r.Get("/healthz", health.LivenessCheck)
			r.Get("/readyz", health.ReadinessCheck)
			if a.OTelProviders.PrometheusHTTP != nil {
				r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
			}
		})

		api := handlers.APIRoutes(handlers.Handlers{
			Datasets:  handlers.NewDatasetHandler(a.Services.Datasets, a.Services.Cleaning, validator, errHandler, a.Config.Server.MaxUploadBytes, a.Logger),
			Runs:      handlers.NewRunHandler(a.Services.Cleaning, validator, errHandler, a.Logger),
			Learning:  handlers.NewLearningHandler(a.Services.Learning, validator, errHandler, a.Logger),
			Health:    health,
			ClientLog: handlers.NewClientLogHandler(validator, errHandler, a.Logger),
		}, a.Config.Server.RequestTimeout)

		r.With(
			apierrors.NewErrorMiddleware(errHandler, a.Logger).Handler,
			customMiddleware.Scope(a.Logger),
		).Mount("/api", api)
	})

	a.Router = r
}

// getCORSConfig returns the CORS configuration for the browser clients
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		ExposedHeaders: []string{customMiddleware.RequestIDHeader, handlers.RunIDHeader, "Retry-After"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the background services and the HTTP listener. A listener
// failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "application_started",
		slog.String("address", a.Server.Addr),
		slog.String("version", Version),
		slog.String("level", a.Config.Logging.Level))

	a.WebSocketHub.Start()
	if a.runtime != nil {
		go a.runtime.Start(ctx)
	}
	if a.relay != nil {
		relayCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		a.stopRelay = stop
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			if err := a.relay.Run(relayCtx); err != nil {
				a.Logger.ErrorContext(relayCtx, "event_relay_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server_error", slog.String("error", err.Error()))
			cancel()
		}
	}()
	return nil
}

// Stop gracefully stops the application. In-flight runs are cancelled
// after the listener has drained.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "application_stopping")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	for _, run := range a.Manager.List() {
		if err := a.Manager.Cancel(run.ID); err == nil {
			a.Logger.InfoContext(ctx, "run_cancelled_on_shutdown", slog.String("run_id", run.ID))
		}
	}

	a.WebSocketHub.Stop()
	if a.stopRelay != nil {
		a.stopRelay()
		a.background.Wait()
	}
	if a.runtime != nil {
		a.runtime.Stop()
	}
	a.release(shutdownCtx)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.Logger.InfoContext(ctx, "application_stopped")
	return nil
}

// release closes the connections opened by initializeServices.
func (a *Application) release(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WarnContext(ctx, "redis_close_failed", slog.String("error", err.Error()))
		}
		a.redis = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WarnContext(ctx, "storage_close_failed", slog.String("error", err.Error()))
		}
		a.Store = nil
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.WarnContext(ctx, "otel_shutdown_failed", slog.String("error", err.Error()))
		}
		a.OTelProviders = nil
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("shutdown_signal_received")
	return a.Stop(context.Background())
}
