package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/probehost/internal/api/http"
	"github.com/GriffinCanCode/probehost/internal/api/middleware"
	"github.com/GriffinCanCode/probehost/internal/app"
	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/ws"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	app     *app.App
	hub     *ws.Hub
	router  *gin.Engine
	handler http.Handler
	logger  *logging.Logger
	config  *config.Config

	// baseCtx bounds batches and the hub; cancelled on shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// Options customizes NewServer.
type Options struct {
	// Emitter also receives batch events, next to websocket clients.
	Emitter batch.Emitter

	// RateLimit overrides middleware.DefaultRateLimitConfig.
	RateLimit *middleware.RateLimitConfig
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger.Info("Initializing probe host server",
		zap.String("addr", cfg.Addr()),
		zap.String("app_data_dir", cfg.Runtime.AppDataDir),
		zap.Strings("plugin_dirs", cfg.Plugins.Dirs),
	)

	metrics := monitoring.NewMetrics()
	hub := ws.NewHub(logger.Named("ws"), metrics)

	a, err := app.New(cfg, logger, app.Options{
		Emitter: batch.Emitters{hub, opts.Emitter},
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	if err := a.LoadPlugins(baseCtx); err != nil {
		cancel()
		return nil, err
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	rateCfg := middleware.DefaultRateLimitConfig()
	if opts.RateLimit != nil {
		rateCfg = *opts.RateLimit
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	router.Use(middleware.CORS(corsCfg))
	router.Use(middleware.RateLimit(rateCfg))

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Registry:     a.Registry,
		Batches:      a.Batches,
		Settings:     a.Settings,
		History:      a.History,
		Metrics:      metrics,
		Logger:       logger,
		Version:      cfg.Runtime.Version,
		BatchContext: baseCtx,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(hub, a.Batches, baseCtx, logger.Named("ws"))
	router.GET("/ws", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully", zap.Int("plugins", len(a.Registry.IDs())))

	return &Server{
		app:     a,
		hub:     hub,
		router:  router,
		handler: rootHandler(router),
		logger:  logger,
		config:  cfg,
		baseCtx: baseCtx,
		cancel:  cancel,
	}, nil
}

// rootHandler compresses every route except the websocket upgrade, which
// needs the raw connection.
func rootHandler(router *gin.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", router)
	mux.Handle("/", gzhttp.GzipHandler(router))
	return mux
}

// Handler is the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// App returns the wired components.
func (s *Server) App() *app.App {
	return s.app
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully. In-flight batches finish before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(s.baseCtx)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown: %w", err)
	}

	s.cancel()
	s.app.Close()
	return serveErr
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}
