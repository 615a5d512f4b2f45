package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/util"
)

// Server is the REST gateway in front of the session manager.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	manager  *server.Manager
	history  *db.HistoryDatabase
	tokens   *db.TokensDatabase

	startedAt  time.Time
	httpServer *http.Server
	router     *gin.Engine
	logger     zerolog.Logger
}

// NewServer creates an API server. history and tokens may be nil: history
// endpoints then answer 503 and, unless auth is disabled, protected
// endpoints reject every request.
func NewServer(cfg *config.Config, eventBus *events.EventBus, manager *server.Manager,
	history *db.HistoryDatabase, tokens *db.TokensDatabase) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		manager:   manager,
		history:   history,
		tokens:    tokens,
		startedAt: time.Now(),
		logger:    log.With().Str("component", "api").Logger(),
	}
}

// Handler returns the HTTP handler, building the router on first use.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.router = s.buildRouter()
	}
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	app := s.cfg.GetApplicationData()
	addr := app.API.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	if app.Security.TLSEnabled {
		ln, err = s.tlsListener(ln, app.Security, app.API.Host)
		if err != nil {
			return err
		}
	}

	s.logger.Info().Str("addr", addr).Bool("tls", app.Security.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) tlsListener(ln net.Listener, sec config.SecurityConfig, host string) (net.Listener, error) {
	if err := util.EnsureCertificate(sec.TLSCertFile, sec.TLSKeyFile, host); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to prepare TLS certificate: %w", err)
	}
	cert, err := tls.LoadX509KeyPair(sec.TLSCertFile, sec.TLSKeyFile)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	s.httpServer.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}
	return tls.NewListener(ln, s.httpServer.TLSConfig), nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	sec := s.cfg.GetApplicationData().Security
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())
	router.Use(IPWhitelist(sec.IPWhitelist))

	allowedOrigins := sec.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(sec.RateLimitRPS).Middleware())

	auth := NewAuthMiddleware(s.tokens, sec.AuthDisabled)

	router.GET("/metrics", s.handleMetrics)

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	monitor.Use(auth.RequirePermission(db.PermissionMonitor))
	{
		monitor.GET("/servers", s.handleListServers)
		monitor.GET("/servers/:name", s.handleGetServer)
		monitor.GET("/servers/:name/status", s.handleServerStatus)
		monitor.GET("/history", s.handleHistory)
		monitor.GET("/system", s.handleSystem)
	}

	control := protected.Group("/control")
	control.Use(auth.RequirePermission(db.PermissionControl))
	{
		control.POST("/servers/:name/execute", s.handleExecute)
		control.POST("/servers/:name/disconnect", s.handleDisconnect)
	}

	configure := protected.Group("/configure")
	configure.Use(auth.RequirePermission(db.PermissionConfigure))
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/servers", s.handleUpsertServer)
		configure.DELETE("/servers/:name", s.handleRemoveServer)

		configure.GET("/tokens", s.handleListTokens)
		configure.POST("/tokens", s.handleCreateToken)
		configure.DELETE("/tokens/:name", s.handleRevokeToken)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": util.AppName + " API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
