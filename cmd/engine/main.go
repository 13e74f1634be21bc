package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	entityapp "github.com/stdin/venezuelawatch-sub000/internal/entity/application"
	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	entitymysql "github.com/stdin/venezuelawatch-sub000/internal/entity/infrastructure/persistence/mysql"
	entityhttp "github.com/stdin/venezuelawatch-sub000/internal/entity/interfaces/http"
	ingestapp "github.com/stdin/venezuelawatch-sub000/internal/ingest/application"
	"github.com/stdin/venezuelawatch-sub000/internal/ingest/interfaces/consumer"
	riskapp "github.com/stdin/venezuelawatch-sub000/internal/risk/application"
	riskdomain "github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	riskmysql "github.com/stdin/venezuelawatch-sub000/internal/risk/infrastructure/persistence/mysql"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/infrastructure/qualitative"
	riskhttp "github.com/stdin/venezuelawatch-sub000/internal/risk/interfaces/http"
	trendingapp "github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	trendingdomain "github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	trendingredis "github.com/stdin/venezuelawatch-sub000/internal/trending/infrastructure/persistence/redis"
	trendinghttp "github.com/stdin/venezuelawatch-sub000/internal/trending/interfaces/http"
	"github.com/stdin/venezuelawatch-sub000/pkg/cache"
	"github.com/stdin/venezuelawatch-sub000/pkg/config"
	"github.com/stdin/venezuelawatch-sub000/pkg/db"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/middleware"
	"github.com/stdin/venezuelawatch-sub000/pkg/mq"
	"github.com/stdin/venezuelawatch-sub000/pkg/ratelimit"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

func main() {
	configPath := config.GetEnv("APP_CONFIG", "configs/engine/config.toml")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&entitydomain.Entity{},
		&entitydomain.EntityAlias{},
		&entitydomain.EntityNameKey{},
		&entitydomain.Mention{},
		&riskdomain.RiskAssessment{},
	); err != nil {
		logger.Fatal(ctx, "Failed to migrate database", "error", err)
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to connect to redis", "error", err)
	}
	defer redisCache.Close()

	idGen := utils.NewSnowflakeID(1)

	// Repositories.
	entityRepo := entitymysql.NewEntityRepository(database)
	mentionRepo := entitymysql.NewMentionRepository(database)
	assessmentRepo := riskmysql.NewAssessmentRepository(database)
	leaderboardRepo := trendingredis.NewLeaderboardRepository(redisCache)

	// Trending.
	engine := trendingdomain.NewEngine(
		time.Duration(cfg.Trending.HalfLifeHours*float64(time.Hour)),
		time.Duration(cfg.Trending.RetentionDays)*24*time.Hour,
	)
	trendingService := trendingapp.NewTrendingService(engine, mentionRepo, leaderboardRepo, m, cfg.Trending.SnapshotSize)

	// Entity resolution.
	matcher := entitydomain.NewMatcher()
	resolver := entityapp.NewResolverService(entityRepo, matcher, cfg.Matching, m)
	recorder := entityapp.NewRecorderService(mentionRepo, entityRepo, trendingService, idGen, m)
	reconciler := entityapp.NewReconcilerService(entityRepo, matcher, cfg.Matching, m)

	// Risk scoring.
	scorerCfg := riskdomain.ScorerConfig{
		SignalWeights: riskdomain.SignalWeights{
			Conflict:       cfg.Scoring.SignalWeights.Conflict,
			Tone:           cfg.Scoring.SignalWeights.Tone,
			ThemePresence:  cfg.Scoring.SignalWeights.ThemePresence,
			ThemeIntensity: cfg.Scoring.SignalWeights.ThemeIntensity,
		},
		CompositeWeights: riskdomain.CompositeWeights{
			Quantitative: cfg.Scoring.CompositeWeights.Quantitative,
			Qualitative:  cfg.Scoring.CompositeWeights.Qualitative,
		},
	}
	copy(scorerCfg.SeverityCutoffs[:], cfg.Scoring.SeverityCutoffs)
	scorer := riskdomain.NewScorer(scorerCfg)

	var qualitativeScorer riskdomain.QualitativeScorer
	if cfg.Qualitative.Enabled {
		qualitativeScorer = qualitative.NewClient(
			cfg.Qualitative.Endpoint,
			time.Duration(cfg.Qualitative.TimeoutMS)*time.Millisecond,
		)
	}
	riskService := riskapp.NewRiskService(scorer, assessmentRepo, mentionRepo, qualitativeScorer, trendingService, idGen, m)

	// Rebuild trending state before serving or consuming.
	if err := trendingService.Rehydrate(ctx); err != nil {
		logger.Fatal(ctx, "Failed to rehydrate trending state", "error", err)
	}
	trendingService.StartSnapshots(ctx, time.Duration(cfg.Trending.SnapshotInterval)*time.Second)

	// Kafka ingestion.
	mqCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}
	producer, err := mq.NewProducer(mqCfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to create kafka producer", "error", err)
	}
	defer producer.Close()
	eventConsumer, err := mq.NewConsumer(mqCfg, cfg.Kafka.EventTopic)
	if err != nil {
		logger.Fatal(ctx, "Failed to create kafka consumer", "error", err)
	}
	defer eventConsumer.Close()

	pipeline := ingestapp.NewPipeline(resolver, recorder, riskService)
	dlq := mq.NewDeadLetterQueue(producer, cfg.Kafka.DeadLetterTopic)
	consumer.NewEventConsumer(eventConsumer, dlq, pipeline).Start(ctx)

	// Metrics endpoint.
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "Metrics server stopped", "error", err)
			}
		}()
	}

	// HTTP API.
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))
	router.Use(middleware.GinCORSMiddleware())
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		router.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "version": cfg.Version})
	})

	api := router.Group("/api")
	entityhttp.NewEntityHandler(resolver, recorder, reconciler).RegisterRoutes(api)
	trendinghttp.NewTrendingHandler(trendingService).RegisterRoutes(api)
	riskhttp.NewRiskHandler(riskService).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info(ctx, "Shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP shutdown failed", "error", err)
	}
	logger.Info(shutdownCtx, "Server stopped")
}
