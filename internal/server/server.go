// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "petpals/docs" // swagger docs
	"petpals/internal/blobstore"
	"petpals/internal/bootstrap"
	"petpals/internal/config"
	"petpals/internal/featureflags"
	"petpals/internal/identity"
	"petpals/internal/middleware"
	"petpals/internal/models"
	"petpals/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Authenticator is the identity surface the HTTP API needs.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyToken(token string) (string, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Identity Authenticator
	Blobs    blobstore.Store
	Flags    *featureflags.Manager
	Services *bootstrap.Services
}

// Server holds all dependencies and provides handlers
type Server struct {
	config          *config.Config
	db              *gorm.DB
	redis           *redis.Client
	app             *fiber.App
	promMiddleware  *fiberprometheus.FiberPrometheus
	runtime         *bootstrap.Runtime
	identity        Authenticator
	blobs           blobstore.Store
	featureFlags    *featureflags.Manager
	services        *bootstrap.Services
	defaultRadiusKm float64
	maxUploadBytes  int64
	stopTracing     func(context.Context) error
}

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// metricsMiddleware returns the process-wide HTTP metrics collector. The
// collectors register on the default registry, so they are created once.
func metricsMiddleware() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("petpals-api")
	})
	return prom
}

// NewServer creates a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config, opts bootstrap.Options) (*Server, error) {
	stopTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "petpals-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	rt, err := bootstrap.InitRuntime(ctx, cfg, opts)
	if err != nil {
		_ = stopTracing(ctx)
		return nil, err
	}

	s := NewServerWithDeps(cfg, Deps{
		DB:       rt.DB,
		Redis:    rt.Redis,
		Identity: rt.Identity,
		Blobs:    rt.Blobs,
		Flags:    rt.Flags,
		Services: rt.Services,
	})
	s.runtime = rt
	s.stopTracing = stopTracing
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the stores.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	flags := deps.Flags
	if flags == nil {
		flags = featureflags.NewManagerWithDefaults(cfg.FeatureFlags)
	}
	radius := cfg.DefaultRadiusKm
	if radius <= 0 {
		radius = 5
	}
	maxUpload := cfg.ImageMaxUploadBytes()
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	if deps.Identity != nil {
		middleware.InitMiddleware(deps.Identity)
	}

	return &Server{
		config:          cfg,
		db:              deps.DB,
		redis:           deps.Redis,
		promMiddleware:  metricsMiddleware(),
		identity:        deps.Identity,
		blobs:           deps.Blobs,
		featureFlags:    flags,
		services:        deps.Services,
		defaultRadiusKm: radius,
		maxUploadBytes:  maxUpload,
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(middleware.TracingMiddleware())

	// Security headers
	app.Use(helmet.New(helmet.Config{
		// map markers and media are embedded by the web client from another origin
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Locally stored images are served by the API itself
	if local, ok := s.blobs.(*blobstore.LocalStore); ok {
		app.Static("/media", local.Root(), fiber.Static{
			Browse: false,
			MaxAge: 300,
		})
	}

	// Live streams authenticate with ?token= since browsers cannot set headers on upgrade
	ws := app.Group("/ws", middleware.WebSocketAuthRequired, requireUpgrade,
		s.FeatureRequired(featureflags.LiveFeed))
	ws.Get("/feed", s.FeedStream())
	ws.Get("/posts/:id/comments", s.CommentStream())

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/signin", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "signin"), s.Signin)
	auth.Post("/password-reset", middleware.RateLimit(
		s.redis, 3, 15*time.Minute, "password_reset"), s.RequestPasswordReset)
	auth.Post("/password-reset/confirm", middleware.RateLimit(
		s.redis, 5, 15*time.Minute, "password_reset_confirm"), s.ConfirmPasswordReset)

	// Marker images are loaded by <img> tags and carry no credentials
	api.Get("/map/markers/:userId", s.FeatureRequired(featureflags.MapMarkers), s.GetMarker)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	protected.Get("/feed", s.GetFeed)
	protected.Get("/feature-flags", s.GetFeatureFlags)

	mapRoutes := protected.Group("/map")
	mapRoutes.Get("/posts", s.GetNearbyPosts)
	mapRoutes.Get("/users", s.GetNearbyUsers)

	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", s.ToggleLike)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", middleware.RateLimit(
		s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	posts.Get("/:id", s.GetPost)
	posts.Patch("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	profile := protected.Group("/profile")
	profile.Get("/me", s.GetMyProfile)
	profile.Put("/", s.UpdateMyProfile)
	profile.Post("/avatar", s.UploadAvatar)
	profile.Put("/location", s.UpdateMyLocation)

	users := protected.Group("/users")
	users.Get("/:userId/profile", s.GetUserProfile)
	users.Get("/:userId/stats", s.GetUserStats)
	users.Get("/:userId/posts", s.GetUserPosts)
}

// FeatureRequired hides a route behind a feature flag. Disabled features
// answer 404 so clients treat them as absent.
func (s *Server) FeatureRequired(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.featureFlags.Enabled(flag, currentUserID(c)) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Feature", flag))
		}
		return c.Next()
	}
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. The SQL database is
// required; Redis is optional and only reported.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unhealthy"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "disabled"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// NewApp returns a Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "PetPals API",
		BodyLimit: int(s.maxUploadBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.NewApp()
	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Shutdown the HTTP/WS server; open streams see their connections close
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if s.runtime != nil {
		if err := s.runtime.Close(); err != nil {
			log.Printf("error closing runtime: %v", err)
		}
	}

	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			log.Printf("error flushing traces: %v", err)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
