package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/suteetoe/umbrella/gomicro/config"
	"github.com/suteetoe/umbrella/gomicro/database"
	"github.com/suteetoe/umbrella/gomicro/jwtutil"
	"github.com/suteetoe/umbrella/gomicro/logger"
	"github.com/suteetoe/umbrella/gomicro/metrics"
	"github.com/suteetoe/umbrella/gomicro/middleware"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/client"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/content"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/engine"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/handler"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/model"
	"github.com/suteetoe/umbrella/services/umbrella-service/internal/scheduler"
	umbrellametrics "github.com/suteetoe/umbrella/services/umbrella-service/prometheus"
	"go.uber.org/zap"
)

func main() {
	conf, err := config.Load("umbrella")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.InitLogger(&logger.LogConfig{
		Level:       conf.Log.Level,
		Environment: conf.Server.Env,
		ServiceName: conf.ServiceName,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Configuration loaded", conf.LogConfig()...)

	db, err := database.InitDB(&conf.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(db, model.AllModels()...); err != nil {
		log.Fatal("Failed to migrate database models", zap.Error(err))
	}

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      conf.JWT.SigningKey,
		ExpirationHours: conf.JWT.ExpirationHours,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(conf.ServiceName, registry)
	umbrellaMetrics := umbrellametrics.NewMetrics(conf.Metrics.Prefix, registry)

	users := client.NewUserClient(conf.UserDirectory.BaseURL, conf.UserDirectory.Timeout, func() (string, error) {
		return jwt.GenerateToken(conf.ServiceName+"@service", conf.ServiceName+"-service", "service")
	})
	agreements, err := content.NewGenerator(conf.Umbrella.AgreementTemplate)
	if err != nil {
		log.Fatal("Failed to load agreement template", zap.Error(err))
	}

	eng, err := engine.New(engine.Options{
		DB:               db,
		Users:            users,
		Content:          agreements,
		Logger:           log,
		Metrics:          umbrellaMetrics,
		SignatureKey:     []byte(conf.Umbrella.SignatureKey),
		ShareListLimit:   conf.Umbrella.ShareListLimit,
		InstanceCacheTTL: conf.Umbrella.InstanceCacheTTL,
	})
	if err != nil {
		log.Fatal("Failed to build umbrella engine", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())

	e.GET("/metrics", echo.WrapHandler(metrics.GetPrometheusHandler(registry)))
	e.GET("/health", handler.Health(func() error { return database.Ping(db) }))

	api := e.Group("/api/v1", middleware.JWTAuthMiddleware(jwt))
	handler.New(eng).Register(api)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := scheduler.New(log.Named("scheduler"),
		scheduler.RollupJob(eng, conf.Umbrella.RollupInterval, conf.Umbrella.RollupBatchSize),
		scheduler.InstanceSweepJob(eng, conf.Umbrella.InstanceCacheTTL),
	)
	jobs.Start(ctx)

	go func() {
		log.Info("Starting umbrella-service on port " + conf.Server.Port)
		if err := e.Start(":" + conf.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down umbrella-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop scheduler", zap.Error(err))
	}
}
