package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smc-signal-engine/config"
	"smc-signal-engine/internal/cache"
	"smc-signal-engine/internal/database"
	"smc-signal-engine/internal/engine"
	"smc-signal-engine/internal/events"
	"smc-signal-engine/internal/logging"
	"smc-signal-engine/internal/marketdata"
	"smc-signal-engine/internal/scanner"
)

// RateLimiter provides simple in-memory rate limiting per client and endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// SignalGenerator is the generation service; *generator.Service satisfies it
type SignalGenerator interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Signal, error)
}

// PriceResolver is the price fallback chain; *marketdata.PriceService satisfies it
type PriceResolver interface {
	CurrentPrice(ctx context.Context, symbol string, fallback float64) (float64, marketdata.PriceSource, error)
}

// ScanReporter exposes the newest scan; *scanner.Scanner satisfies it
type ScanReporter interface {
	GetLastResult() *scanner.ScanResult
}

// Dependencies are the collaborators the handlers call. Only Generator is required.
type Dependencies struct {
	Generator SignalGenerator
	Store     database.Store
	Prices    PriceResolver
	Scanner   ScanReporter
	Bus       *events.EventBus
	Cache     *cache.CacheService
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	deps        Dependencies
	config      ServerConfig
	rateLimiter *RateLimiter
	hub         *WSHub
	logger      *logging.Logger
	startedAt   time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               int
	Host               string
	ProductionMode     bool
	AllowedOrigins     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int
}

// ServerConfigFrom converts the file configuration
func ServerConfigFrom(c config.ServerConfig) ServerConfig {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return ServerConfig{
		Port:               c.Port,
		Host:               c.Host,
		ProductionMode:     true,
		AllowedOrigins:     origins,
		ReadTimeout:        time.Duration(c.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(c.WriteTimeout) * time.Second,
		RateLimitPerMinute: c.RateLimitPerMinute,
	}
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		deps:        deps,
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		hub:         NewWSHub(),
		logger:      logging.WithComponent("api"),
		startedAt:   time.Now(),
	}

	if deps.Bus != nil {
		deps.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}
	s.setupRoutes()
	return s
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// requestLogger logs each request through the structured logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, _ := logging.WithTraceContext(c.Request.Context())
		traceID := logging.TraceIDFromContext(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)

		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := logging.APIContext(c.Request.Method, path, c.Writer.Status()).
			WithTraceID(traceID).
			WithDuration(time.Since(start))
		if c.Writer.Status() >= http.StatusInternalServerError {
			l.Error("request failed", "client_ip", c.ClientIP())
		} else {
			l.Debug("request served", "client_ip", c.ClientIP())
		}
	}
}

// rateLimitMiddleware rate limits requests by client and endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(c.ClientIP() + " " + path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "Too many requests to this endpoint, slow down",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		api.POST("/signals/generate", s.handleGenerateSignal)
		api.GET("/signals", s.handleListSignals)
		api.GET("/signals/:id", s.handleGetSignal)
		api.GET("/signals/:id/updates", s.handleGetSignalUpdates)
		api.GET("/price/:symbol", s.handleGetPrice)
		api.GET("/timeframes/:tf/higher", s.handleHigherTimeframe)
		api.GET("/scanner/last", s.handleLastScan)
		api.GET("/analysis/confidence", s.handleConfidenceOutcomes)
	}
}

// Start starts the websocket hub and the HTTP server
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":     "healthy",
		"uptime_sec": int64(time.Since(s.startedAt).Seconds()),
		"ws_clients": s.hub.GetClientCount(),
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "healthy"
	} else {
		body["database"] = "disabled"
	}

	if s.deps.Cache != nil {
		stats := s.deps.Cache.GetStats()
		if stats.Healthy {
			body["redis"] = "healthy"
		} else {
			body["redis"] = "degraded"
		}
	} else {
		body["redis"] = "disabled"
	}

	c.JSON(http.StatusOK, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
