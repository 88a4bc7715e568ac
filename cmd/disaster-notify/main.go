package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-disaster-notify/internal/api"
	"github.com/mr1hm/go-disaster-notify/internal/config"
	"github.com/mr1hm/go-disaster-notify/internal/ingestion"
	"github.com/mr1hm/go-disaster-notify/internal/logging"
	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/notify"
	"github.com/mr1hm/go-disaster-notify/internal/observability"
	"github.com/mr1hm/go-disaster-notify/internal/publisher"
	"github.com/mr1hm/go-disaster-notify/internal/region"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
	"github.com/mr1hm/go-disaster-notify/internal/stream"
	"github.com/mr1hm/go-disaster-notify/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loadRegions(ctx, cfg, db); err != nil {
		logging.Fatalf("Failed to load regions: %v", err)
	}

	loc, err := cfg.Feed.Location()
	if err != nil {
		logging.Fatalf("Failed to load feed timezone: %v", err)
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	senders, err := buildSenders(ctx, cfg)
	if err != nil {
		logging.Fatalf("Failed to configure delivery channels: %v", err)
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Channel:       cfg.Dispatch.Channel,
		Workers:       cfg.Worker.Count,
		BufferSize:    cfg.Worker.BufferSize,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
		Burst:         cfg.Dispatch.Burst,
	}, db, senders, clock, metrics)

	// Live stream clients and, optionally, Kafka see every stored disaster.
	broadcaster := stream.NewBroadcaster()
	observability.RegisterStream(broadcaster)
	publishers := []ingestion.Publisher{broadcaster}
	var kafka *publisher.Kafka
	if cfg.Kafka.Enabled() {
		kafka = publisher.NewKafka(cfg.Kafka)
		publishers = append(publishers, kafka)
		slog.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	feed := ingestion.NewFeedClient(cfg.Feed, loc, nil)
	ingester := ingestion.NewIngester(ingestion.IngesterConfig{
		Location:      loc,
		RecencyWindow: cfg.Ingest.RecencyWindow,
	}, feed, db, dispatcher, clock, metrics, publishers...)
	sw := sweeper.New(db, cfg.Sweep.Retention, clock, metrics)

	mgr := ingestion.NewManager(cfg, ingester, sw, dispatcher, clock)
	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := api.NewHandler(db, db, broadcaster, cfg.Auth.JWTSecret, cfg.Dispatch.Channel)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	mgr.Stop()
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

func loadRegions(ctx context.Context, cfg *config.Config, db *repository.SQLiteDB) error {
	if cfg.Regions.CSVPath != "" {
		f, err := os.Open(cfg.Regions.CSVPath)
		if err != nil {
			return fmt.Errorf("open region csv: %w", err)
		}
		defer f.Close()

		n, err := region.NewLoader(db).LoadCSV(ctx, f)
		if err != nil {
			return fmt.Errorf("load %s: %w", cfg.Regions.CSVPath, err)
		}
		slog.Info("region dataset loaded", "path", cfg.Regions.CSVPath, "inserted", n)
	}

	count, err := db.CountRegions(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Warn("region table is empty; no alert will resolve to a region")
	}
	return nil
}

func buildSenders(ctx context.Context, cfg *config.Config) (notify.Senders, error) {
	if !cfg.AWS.Enabled {
		slog.Warn("AWS delivery disabled, notifications will only be logged")
		return notify.LogSenders(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	snsClient := sns.NewFromConfig(awsCfg)
	senders := notify.Senders{
		models.ChannelSMS: notify.NewSMSSender(snsClient),
	}
	if cfg.AWS.SNSPlatformARN != "" {
		senders[models.ChannelPush] = notify.NewPushSender(snsClient, cfg.AWS.SNSPlatformARN)
	}
	if cfg.AWS.SESSender != "" {
		senders[models.ChannelEmail] = notify.NewEmailSender(ses.NewFromConfig(awsCfg), cfg.AWS.SESSender)
	}
	return senders, nil
}
