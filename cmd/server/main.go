// Package main runs the meetings HTTP server with the live event websocket and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fincoach/backend/config"
	"github.com/fincoach/backend/internal/attendance"
	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/communities"
	"github.com/fincoach/backend/internal/meetings"
	"github.com/fincoach/backend/internal/middleware"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/internal/notifications"
	"github.com/fincoach/backend/internal/realtime"
	"github.com/fincoach/backend/internal/recordings"
	"github.com/fincoach/backend/pkg/database"
	"github.com/fincoach/backend/pkg/metrics"
	"github.com/fincoach/backend/pkg/mongodb"
	"github.com/fincoach/backend/pkg/queue"
	"github.com/fincoach/backend/pkg/redis"
	"github.com/fincoach/backend/pkg/response"
	"github.com/fincoach/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg, cfg.Metrics.Namespace)
	if err := metrics.RegisterPoolStats(reg, pool, cfg.Metrics.Namespace, "server"); err != nil {
		logger.Warn("pool stats metrics disabled", zap.Error(err))
	}

	// Meeting and attendance documents
	var (
		meetingStore    meetings.MeetingStore
		attendanceStore meetings.AttendanceStore
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		mongoClient, mongoDB, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
		if err != nil {
			logger.Fatal("mongodb", zap.Error(err))
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()

		meetingRepo := meetings.NewMongoRepository(mongoDB)
		attendanceRepo := attendance.NewMongoRepository(mongoDB)
		if err := meetingRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("meeting indexes", zap.Error(err))
		}
		if err := attendanceRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("attendance indexes", zap.Error(err))
		}
		meetingStore, attendanceStore = meetingRepo, attendanceRepo
	default:
		meetingStore, attendanceStore = meetings.NewRepository(pool), attendance.NewRepository(pool)
	}
	logger.Info("meeting store ready", zap.String("driver", cfg.Store.Driver))

	// Redis: cross-instance events and the email queue. Both degrade when Redis is down.
	var (
		broker   realtime.Broker
		notifier meetings.RegistrationNotifier
	)
	rdb, err := redis.NewClient(ctx, cfg.Redis.Options(), logger)
	if err != nil {
		logger.Warn("redis unavailable, events stay local and confirmations are off", zap.Error(err))
	} else {
		defer rdb.Close()
		broker = realtime.NewRedisPubSub(rdb, logger)
		notifier = notifications.NewNotifier(queue.NewQueue(rdb, logger), logger)
	}
	hub := realtime.NewHub(broker, logger)

	var recordingStore recordings.ObjectStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			recordingStore = s3Client
		}
	}

	loc, _ := cfg.Meetings.Location()
	opts := []meetings.Option{
		meetings.WithEvents(hub),
		meetings.WithMetrics(appMetrics),
		meetings.WithLogger(logger),
		meetings.WithMaxListLimit(cfg.Meetings.ListMaxLimit),
	}
	if notifier != nil {
		opts = append(opts, meetings.WithNotifier(notifier))
	}
	meetingSvc := meetings.NewService(meetingStore, attendanceStore,
		meetings.NewLiveWindow(loc, cfg.Meetings.LiveWindow()), opts...)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, cfg.JWT.CookieName, logger)
	meetingHandler := meetings.NewHandler(meetingSvc, logger)
	recordingHandler := recordings.NewHandler(meetingSvc, recordingStore, logger)
	emailHandler := notifications.NewHandler(meetingSvc, notifications.NewRepository(pool), logger)
	communityHandler := communities.NewHandler(communities.NewService(communities.NewRepository(pool), logger), logger)
	requireAuth := middleware.RequireAuth()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(appMetrics))
	router.Use(middleware.Authenticate(jwtService, cfg.JWT.CookieName))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", requireAuth, authHandler.Me)
		authGroup.GET("/users", requireAuth, middleware.RequireRole(models.RoleAdmin), authHandler.List)
	}

	meetingGroup := router.Group("/api/meetings")
	meetingHandler.Register(meetingGroup, requireAuth)
	recordingHandler.Register(meetingGroup, requireAuth)
	meetingGroup.GET("/:id/emails", requireAuth, emailHandler.ListByMeeting)

	communityHandler.Register(router.Group("/api/communities"), requireAuth)

	router.GET("/ws", realtime.ServeWs(hub, meetingSvc, jwtService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
