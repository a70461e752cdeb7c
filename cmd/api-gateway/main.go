package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/admission-portal-api/api/swagger"
	"github.com/noah-isme/admission-portal-api/internal/handler"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	"github.com/noah-isme/admission-portal-api/internal/service"
	"github.com/noah-isme/admission-portal-api/pkg/cache"
	"github.com/noah-isme/admission-portal-api/pkg/config"
	"github.com/noah-isme/admission-portal-api/pkg/database"
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	"github.com/noah-isme/admission-portal-api/pkg/mailer"
)

// @title Admission Portal API
// @version 1.0.0
// @description University admission portal: applications, review workflow and scoring
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable; caching disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	useJSONFieldNames(validate)
	if ginValidate, ok := binding.Validator.Engine().(*validator.Validate); ok {
		useJSONFieldNames(ginValidate)
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scoring.CacheTTL, logr, redisClient != nil)

	mail, err := mailer.New(ctx, cfg.Email, logr)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	emailQueue := jobs.NewQueue("email", service.NewEmailJobHandler(mail, metrics, logr), jobs.QueueConfig{
		Workers:    cfg.Email.Workers,
		BufferSize: cfg.Email.QueueSize,
		MaxRetries: cfg.Email.MaxRetries,
		RetryDelay: 2 * time.Second,
		JobTimeout: 15 * time.Second,
		Logger:     logr,
	})
	emailQueue.Start(context.WithoutCancel(ctx))
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		emailQueue.Stop(drainCtx)
	}()
	metrics.TrackQueue("email", func() int { return emailQueue.Stats().Pending })

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	if cfg.Bootstrap.AdminEmail != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	notificationSvc := service.NewNotificationService(notificationRepo, emailQueue, mail.Enabled(), metrics, logr)
	courseSvc := service.NewCourseService(courseRepo, auditRepo, cacheSvc, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, courseRepo, notificationSvc, auditRepo, cacheSvc, metrics, validate, logr)
	smartSvc := service.NewSmartService(courseRepo, applicationRepo, cacheSvc, metrics, validate, logr, service.SmartServiceConfig{
		CacheTTL:             cfg.Scoring.CacheTTL,
		RecommendationLimit:  cfg.Scoring.RecommendationLimit,
		MeritListLimit:       cfg.Scoring.MeritListLimit,
		PredictionMinHistory: cfg.Scoring.PredictionMinHistory,
		CycleDeadline:        cfg.Admission.CycleDeadline,
	})

	r := newRouter(cfg, logr, routeDeps{
		auth:          authSvc,
		audit:         auditRepo,
		metrics:       metrics,
		authHandler:   handler.NewAuthHandler(authSvc),
		smart:         handler.NewSmartHandler(smartSvc),
		applications:  handler.NewApplicationHandler(applicationSvc),
		courses:       handler.NewCourseHandler(courseSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		health: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
			"cache":    cacheRepo,
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// useJSONFieldNames makes validation details report the wire name of a field.
func useJSONFieldNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return ""
	})
}
