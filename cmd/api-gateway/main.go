package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/alers-api/api/swagger"
	"github.com/noah-isme/alers-api/internal/handler"
	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/prompt"
	"github.com/noah-isme/alers-api/internal/repository"
	"github.com/noah-isme/alers-api/internal/service"
	"github.com/noah-isme/alers-api/pkg/cache"
	"github.com/noah-isme/alers-api/pkg/config"
	"github.com/noah-isme/alers-api/pkg/database"
	"github.com/noah-isme/alers-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/alers-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/alers-api/pkg/middleware/requestid"
	"github.com/noah-isme/alers-api/pkg/tracing"
)

// @title ALERS API
// @version 1.0.0
// @description AI tutor backend: courses, intake, tutor chat and dashboards.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	catalog := prompt.Default()
	if cfg.Chat.PromptFile != "" {
		catalog, err = prompt.Load(cfg.Chat.PromptFile)
		if err != nil {
			logr.Fatal("failed to load prompt catalog", zap.String("path", cfg.Chat.PromptFile), zap.Error(err))
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	chats := repository.NewChatRepository(db)
	summaries := repository.NewSummaryRepository(db)
	profiles := repository.NewStudentProfileRepository(db)
	intake := repository.NewIntakeRepository(db)
	dashboards := repository.NewDashboardRepository(db)

	var cacheRepo service.CacheRepository
	var locker service.SessionLocker = service.NewMemorySessionLocker()
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		locker = service.NewRedisSessionLocker(repository.NewSessionLockRepository(redisClient, cfg.Chat.SessionLockTTL), logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	gateway := service.NewCompletionGateway(llm.NewGateway(llm.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Model:             cfg.OpenAI.Model,
		CompletionTimeout: cfg.OpenAI.CompletionTimeout,
	}, nil, logr))
	if cfg.OpenAI.APIKey == "" {
		logr.Warn("OPENAI_API_KEY is not set, chat endpoints will answer 503")
	}

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "alers-api",
	})
	userSvc := service.NewUserService(users, validate, logr)
	courseSvc := service.NewCourseService(courses, enrollments, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, courses, validate, logr)
	activitySvc := service.NewActivityService(dashboards, cacheSvc, logr)
	assembler := service.NewContextAssembler(chats, summaries, catalog, cfg.Chat.RecentWindow)
	summarySvc := service.NewSummaryService(service.SummaryServiceParams{
		Summaries: summaries,
		Messages:  chats,
		Gateway:   gateway,
		Metrics:   metricsSvc,
		Catalog:   catalog,
		BatchSize: cfg.Chat.SummaryBatchSize,
		Logger:    logr,
	})
	progressSvc := service.NewProgressService(profiles, assembler, gateway, metricsSvc, catalog, logr)
	chatSvc := service.NewChatService(service.ChatServiceParams{
		Chats:            chats,
		Enrollments:      enrollments,
		Courses:          courses,
		Seeds:            service.NewSeedBuilder(courses, enrollments, profiles, catalog),
		Assembler:        assembler,
		Summaries:        summarySvc,
		Progress:         progressSvc,
		Activity:         activitySvc,
		Locker:           locker,
		Gateway:          gateway,
		Metrics:          metricsSvc,
		Catalog:          catalog,
		PrivilegedModels: cfg.OpenAI.PrivilegedModels,
		Validator:        validate,
		Logger:           logr,
	})
	intakeSvc := service.NewIntakeService(service.IntakeServiceParams{
		Intake:    intake,
		Profiles:  profiles,
		Locker:    locker,
		Gateway:   gateway,
		Metrics:   metricsSvc,
		Catalog:   catalog,
		Validator: validate,
		Logger:    logr,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Dashboards:  dashboards,
		Enrollments: enrollments,
		Profiles:    profiles,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Dashboard.CacheTTL,
		Logger:      logr,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware("alers-api"))
	}
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, routes{
		authenticate: middleware.JWT(authSvc),
		intakeGate:   middleware.RequireIntake(intakeSvc),
		auth:         handler.NewAuthHandler(authSvc),
		courses:      handler.NewCourseHandler(courseSvc, enrollmentSvc),
		chat:         handler.NewChatHandler(chatSvc),
		intake:       handler.NewIntakeHandler(intakeSvc),
		dashboard:    handler.NewDashboardHandler(dashboardSvc),
		users:        handler.NewUserHandler(userSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown failed", zap.Error(err))
	}
}
