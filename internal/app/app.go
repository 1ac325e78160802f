package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/mqttbench/internal/broker"
	"github.com/simp-lee/mqttbench/internal/config"
	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/live"
	"github.com/simp-lee/mqttbench/internal/logging"
	"github.com/simp-lee/mqttbench/internal/master"
	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/module/linktest"
	"github.com/simp-lee/mqttbench/internal/module/message"
	"github.com/simp-lee/mqttbench/internal/module/report"
	"github.com/simp-lee/mqttbench/internal/module/slave"
	"github.com/simp-lee/mqttbench/internal/view"
	"github.com/simp-lee/mqttbench/web"
)

// shutdownTimeout bounds the graceful shutdown of both servers.
const shutdownTimeout = 5 * time.Second

// App holds the core application dependencies: the console server, the
// slave control server and the background status monitor.
type App struct {
	engine  *gin.Engine
	control *gin.Engine
	monitor *master.Monitor
	db      *gorm.DB
	logger  *logger.Logger
	cfg     *config.Config
	// closers release services in reverse start order on shutdown.
	closers []func()
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// newHTTPServer builds a server for handler. A positive timeout replaces the
// default read and write deadlines.
var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration) httpServer {
	read, write := 30*time.Second, 60*time.Second
	if timeout > 0 {
		read, write = timeout, timeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       read,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, repositories, services, handlers,
// middleware, template rendering and routes for both servers.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := logging.Setup(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. AutoMigrate. The console owns its schema in every mode.
	if err := db.AutoMigrate(&domain.Slave{}, &domain.LinkTest{}, &domain.MessageTest{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("auto migration completed")

	// In release mode, when no allowlist is configured, default to deny cross-origin requests.
	corsConfig, err := resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)
	if err != nil {
		return nil, err
	}

	// 4. Manual dependency injection: repository → service → handler.
	hub := live.NewHub(log.Logger)
	hub.SetOriginCheck(middleware.WebSocketOriginCheck(corsConfig))
	slaveSvc := slave.NewSlaveService(slave.ServiceDeps{
		Repo:       slave.NewSlaveRepository(db),
		Controller: master.NewDispatcher(cfg.Master.DialTimeoutDuration(), cfg.Master.SettleDelayDuration(), log.Logger),
		Results:    master.NewResultStore(),
		Events:     hub,
		Logger:     log.Logger,
	})
	linkSvc := linktest.NewLinkTestService(linktest.NewLinkTestRepository(db), log.Logger)
	if _, err := linkSvc.FailInterrupted(context.Background()); err != nil {
		return nil, fmt.Errorf("fail interrupted link tests: %w", err)
	}
	publisher := broker.NewPublisher(broker.PublisherConfig{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: cfg.Broker.ConnectTimeoutDuration(),
	}, log.Logger)
	messageSvc := message.NewMessageTestService(message.NewMessageTestRepository(db), publisher, log.Logger)
	reportSvc := report.NewReportService(report.NewReportRepository(db))

	modules := []Module{
		slave.NewModule(slave.NewSlaveHandler(slaveSvc), slave.NewSlavePageHandler(slaveSvc)),
		linktest.NewModule(linktest.NewLinkTestHandler(linkSvc), linktest.NewLinkTestPageHandler(linkSvc, slaveSvc)),
		message.NewModule(message.NewMessageTestHandler(messageSvc), message.NewMessagePageHandler(messageSvc)),
		report.NewModule(report.NewReportHandler(reportSvc), report.NewReportPageHandler(reportSvc)),
	}

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{
			SkipPaths:    []string{"/health"},
			SkipPrefixes: []string{"/static/"},
		}),
		middleware.CORSWithConfig(corsConfig),
	)

	// 6. Determine filesystem mode and set up template renderer.
	var fsys fs.FS
	if cfg.Server.Mode == "debug" {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == "debug")
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	// 7. Resolve CSRF secret.
	csrfSecret := cfg.Server.CSRFSecret
	if isPlaceholderCSRFSecret(csrfSecret) {
		if cfg.Server.Mode == gin.ReleaseMode {
			return nil, errors.New("csrf_secret must be a non-placeholder value in release mode")
		}

		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate csrf secret: %w", err)
		}
		csrfSecret = hex.EncodeToString(b)
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	}

	// 8. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:     modules,
		Routes:      view.Routes(),
		DB:          db,
		Mode:        cfg.Server.Mode,
		CSRFSecret:  csrfSecret,
		RateLimit:   resolveRateLimit(cfg.Server.RateLimit),
		SlaveEvents: hub.ServeWS,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	// 9. Control plane for slave agents.
	control := master.NewControlRouter(slaveSvc, log.Logger)
	monitor := master.NewMonitor(slaveSvc, cfg.Master.StatusCheckEvery(), cfg.Master.OfflineAfterDuration(), log.Logger)

	success = true
	return &App{
		engine:  engine,
		control: control,
		monitor: monitor,
		db:      db,
		logger:  log,
		cfg:     cfg,
		closers: []func(){hub.Close, linkSvc.Close, messageSvc.Close},
	}, nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

// resolveCORSConfig overlays the configured CORS settings on the defaults.
// Release mode without an allowlist denies every cross-origin request.
func resolveCORSConfig(mode string, cfg config.CORSConfig) (middleware.CORSConfig, error) {
	corsConfig := middleware.DefaultCORSConfig()

	switch {
	case len(cfg.AllowOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowOrigins
	case mode == gin.ReleaseMode:
		corsConfig.AllowOrigins = []string{}
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials

	if maxAge := strings.TrimSpace(cfg.MaxAge); maxAge != "" {
		d, err := time.ParseDuration(maxAge)
		if err != nil || d < 0 {
			return middleware.CORSConfig{}, fmt.Errorf("invalid server.cors.max_age %q", cfg.MaxAge)
		}
		corsConfig.MaxAge = d
	}

	return corsConfig, nil
}

// resolveRateLimit returns the API limiter settings, or nil when disabled.
func resolveRateLimit(cfg config.RateLimitConfig) *middleware.RateLimitConfig {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
	}
	return &middleware.RateLimitConfig{RPS: cfg.RPS, Burst: burst}
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// Run starts the console and control servers plus the status monitor, and
// blocks until a shutdown signal or a server error. Both servers get a
// graceful shutdown with a 5-second deadline; services, the database and
// the logger are closed afterwards.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	type namedServer struct {
		name string
		addr string
		srv  httpServer
	}
	consoleAddr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	servers := []namedServer{{
		name: "console",
		addr: consoleAddr,
		srv:  newHTTPServer(consoleAddr, a.engine, a.cfg.Server.TimeoutDuration()),
	}}
	if a.control != nil {
		controlAddr := a.cfg.Master.Addr()
		servers = append(servers, namedServer{
			name: "control",
			addr: controlAddr,
			srv:  newHTTPServer(controlAddr, a.control, 0),
		})
	}

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			log.Info("server started", slog.String("server", s.name), slog.String("addr", s.addr))
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", s.name, err)
			}
		}()
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	var monitorDone sync.WaitGroup
	if a.monitor != nil {
		monitorDone.Add(1)
		go func() {
			defer monitorDone.Done()
			a.monitor.Run(monitorCtx)
		}()
	}

	var runErr error

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Close long-lived streams first so Shutdown does not wait on them.
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	for _, s := range servers {
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.String("server", s.name), slog.Any("error", err))
		}
	}
	stopMonitor()
	monitorDone.Wait()

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
