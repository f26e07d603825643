package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mtg-tracker/internal/api"
	"mtg-tracker/internal/cache"
	"mtg-tracker/internal/config"
	"mtg-tracker/internal/database"
	"mtg-tracker/internal/lock"
	"mtg-tracker/internal/scheduler"
	"mtg-tracker/internal/services"
	"mtg-tracker/internal/services/push"
	"mtg-tracker/internal/services/scryfall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	cfg := config.Load()

	logger := newLogger(cfg.Environment)
	defer logger.Sync()
	log := logger.Sugar()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	log.Info("database initialized")

	// Clients and services
	scryfallClient := scryfall.NewClient(cfg.ScryfallBaseURL, log)
	pushClient := push.NewClient(cfg.PushURL, log)
	priceCache := cache.New(cfg.CacheTTL, cfg.CacheMaxSize)

	ingestSvc := services.NewBulkIngestService(db, scryfallClient, cfg.IngestBatch, cfg.BulkTimeout, log)
	alertSvc := services.NewAlertService(db, pushClient, log)
	reportSvc := services.NewReportService(db)

	// Scheduled jobs, each cycle guarded by the advisory job lock
	jobLock := lock.NewJobLock(lock.NewMySQLLocker(db), log)
	sched := scheduler.New(jobLock, ingestSvc, alertSvc, cfg.IngestInterval, cfg.AlertInterval, log)
	sched.Start()
	defer sched.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(apiGroup, db, ingestSvc, reportSvc, priceCache, scryfallClient, log)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")
	_ = srv.Close()
}

func newLogger(environment string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
