package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signdesk/certsync/internal/api/handlers"
	"github.com/signdesk/certsync/internal/api/middleware"
	"github.com/signdesk/certsync/internal/certsync"
	"github.com/signdesk/certsync/internal/config"
	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/policy"
)

// Engine is the part of the sync engine the HTTP layer drives
type Engine interface {
	handlers.EventProcessor
	handlers.Syncer
}

var _ Engine = (*certsync.Engine)(nil)

// Dependencies are the collaborators of the HTTP server
type Dependencies struct {
	Engine        Engine
	Requests      repository.Requests
	Audits        repository.Audits
	Notifications repository.Notifications
	Logger        *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	srv    *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Create handlers
	webhookHandler := handlers.NewWebhookHandler(deps.Engine, logger)
	requestsHandler := handlers.NewRequestsHandler(deps.Requests, logger)
	adminHandler := handlers.NewAdminHandler(deps.Requests, deps.Audits, deps.Notifications, deps.Engine, policy.NewValidator(), logger)

	webhookAuth := middleware.WebhookAuth(cfg.Webhook.TokenHash)
	router.POST("/webhooks/bry", webhookAuth, webhookHandler.Receive)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		v1.POST("/webhooks/bry", webhookAuth, webhookHandler.Receive)

		// Public endpoints
		requests := v1.Group("/requests")
		{
			requests.GET("/:protocol/status", requestsHandler.GetStatus)
		}

		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token, cfg.Admin.TOTPSecret))
		{
			admin.POST("/requests", adminHandler.CreateRequest)
			admin.GET("/requests", adminHandler.ListRequests)
			admin.GET("/requests/:protocol", adminHandler.GetRequest)
			admin.POST("/requests/:protocol/sync", adminHandler.SyncRequest)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
		srv:    &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
