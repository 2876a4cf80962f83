package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/examind/test-engine/internal/config"
	"github.com/examind/test-engine/internal/events"
	"github.com/examind/test-engine/internal/handlers"
	"github.com/examind/test-engine/internal/questionbank"
	"github.com/examind/test-engine/internal/session"
	"github.com/examind/test-engine/internal/store"
	"github.com/examind/test-engine/internal/sweeper"
	"github.com/examind/test-engine/internal/utils"
	"github.com/examind/test-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to database")
		os.Exit(1)
	}
	bank := questionbank.NewGormRepository(db)
	if err := bank.AutoMigrate(); err != nil {
		logger.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to redis")
		os.Exit(1)
	}
	sessionStore := store.NewRedisStore(redisClient)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaPublisher(events.PublisherConfig{
			KafkaBrokers: cfg.KafkaBrokers,
			TopicName:    cfg.EventsTopic,
			Logger:       utils.ToSlogLogger(logger),
		})
		if err != nil {
			logger.LogError(err, "Failed to create Kafka publisher")
			os.Exit(1)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set, session events will not be published")
		publisher = events.NopPublisher{}
	}
	defer publisher.Close()

	manager := session.NewManager(bank, bank, sessionStore, publisher, logger, session.Options{})
	defer manager.Close()

	sweep := sweeper.New(sessionStore, bank, bank, publisher, logger, cfg.SweepInterval)
	sweep.Start()
	defer sweep.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	validator := utils.NewValidator()
	importer := questionbank.NewImporter(bank, logger)
	handlers.NewHandlerManager(manager, importer, validator, logger).SetupRoutes(router)

	go func() {
		logger.Info("Test engine listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := router.Run(":" + cfg.Port); err != nil {
			logger.LogError(err, "HTTP server stopped")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
}
