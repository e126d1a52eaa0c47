// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "appforge/docs" // swagger docs
	"appforge/internal/cache"
	"appforge/internal/config"
	"appforge/internal/database"
	"appforge/internal/middleware"
	"appforge/internal/repository"
	"appforge/internal/security"
	"appforge/internal/service"
	"appforge/internal/session"

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

const defaultOrigins = "http://localhost:3000,http://127.0.0.1:3000"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	sessions       *session.Manager
	promMiddleware *fiberprometheus.FiberPrometheus
	userService    *service.UserService
	appService     *service.AppService
	chatService    *service.ChatHistoryService
}

// NewServer connects the database and Redis and wires every service. Without
// Redis, sessions live in process memory.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	var store session.Store
	if redisClient != nil {
		store = session.NewRedisStore(redisClient)
	} else {
		middleware.Logger.Warn("redis unavailable, sessions are kept in memory")
		store = session.NewMemoryStore()
	}

	return NewServerWithDeps(cfg, db, redisClient, store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store session.Store) (*Server, error) {
	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	signer, err := session.NewSigner(cfg.SessionSecret, ttl)
	if err != nil {
		return nil, err
	}

	var legacy []security.PasswordHasher
	if cfg.LegacyPasswordSalt != "" {
		legacy = append(legacy, security.LegacyDigestHasher{Salt: cfg.LegacyPasswordSalt})
	}
	creds := security.NewCredentials(security.BcryptHasher{}, legacy...)

	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewAppRepository(db)
	chatRepo := repository.NewChatHistoryRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		sessions:       session.NewManager(store, signer, ttl),
		promMiddleware: middleware.InitMetrics("appforge-api"),
	}
	s.userService = service.NewUserService(userRepo, creds, cfg.DefaultUserPassword)
	s.chatService = service.NewChatHistoryService(chatRepo, appRepo, s.userService.GetLoginUser)
	s.appService = service.NewAppService(appRepo, userRepo, s.chatService, s.userService.GetLoginUser)
	return s, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "appforge API",
		BodyLimit:    1024 * 1024,
		ErrorHandler: ErrorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Sessions run before the context middleware so the bound user id reaches the logs.
	app.Use(middleware.Sessions(s.sessions, middleware.SessionConfig{
		CookieName: s.config.SessionCookieName,
		Secure:     s.config.IsProduction(),
	}))
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, please try again later")
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	user := api.Group("/user")
	user.Post("/register", middleware.RateLimit(s.redis, 3, 10*time.Minute, "register"), s.Register)
	user.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	user.Post("/logout", s.Logout)
	user.Get("/get/login", s.GetLoginUser)
	user.Get("/get/vo", s.GetUserView)
	user.Post("/add", s.AddUser)
	user.Post("/update", s.UpdateUser)
	user.Post("/delete", s.DeleteUser)
	user.Post("/list/page/vo", s.ListUserViews)

	apps := api.Group("/app")
	apps.Post("/add", middleware.RateLimit(s.redis, 20, time.Minute, "create_app"), s.CreateApp)
	apps.Post("/update", s.UpdateMyApp)
	apps.Post("/delete", s.DeleteApp)
	apps.Get("/get/vo", s.GetAppView)
	apps.Post("/my/list/page/vo", s.ListMyApps)
	apps.Post("/good/list/page/vo", s.ListFeaturedApps)
	apps.Post("/deploy", s.RecordDeployment)
	apps.Post("/deployed/list/page/vo", s.ListDeployedApps)
	apps.Get("/deployed/:deployKey", s.GetDeployedApp)
	apps.Post("/admin/update", s.AdminUpdateApp)
	apps.Post("/admin/list/page/vo", s.AdminListApps)

	chats := api.Group("/chat-history")
	chats.Post("/add", middleware.RateLimit(s.redis, 30, time.Minute, "chat_add"), s.AddMessage)
	chats.Get("/app/:appId", s.ListAppChatHistory)
	chats.Get("/app/:appId/sync", s.SyncChatHistory)
	chats.Post("/admin/list/page/vo", s.AdminListChatHistory)
	chats.Post("/admin/cleanup", s.CleanupChatHistory)
}

func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings the database and, when configured, Redis. Redis being
// absent is reported but does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Shutdown releases the Redis client and the database pools.
func (s *Server) Shutdown(_ context.Context) error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if len(errs) > 0 {
		middleware.Logger.Error("shutdown finished with errors", slog.Any("errors", errs))
	}
	return errors.Join(errs...)
}
