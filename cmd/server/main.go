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
	"github.com/stockflow/backend/internal/bootstrap"
	"github.com/stockflow/backend/internal/infrastructure/auth"
	"github.com/stockflow/backend/internal/infrastructure/config"
	"github.com/stockflow/backend/internal/infrastructure/logger"
	"github.com/stockflow/backend/internal/infrastructure/persistence"
	"github.com/stockflow/backend/internal/infrastructure/scheduler"
	"github.com/stockflow/backend/internal/interfaces/http/handler"
	"github.com/stockflow/backend/internal/interfaces/http/middleware"
	"github.com/stockflow/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.ForEnvironment(cfg.App.Env, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.App.Name))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting invoice automation server",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	tel, err := bootstrap.NewTelemetry(ctx, &cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.EnsureSchema(); err != nil {
		log.Fatal("Failed to create schema", zap.Error(err))
	}
	if err := bootstrap.InstrumentDatabase(db.DB, cfg, log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	meter := tel.Meter(cfg.Telemetry.ServiceName)
	auto, err := bootstrap.NewAutomation(ctx, cfg, db.DB, meter, log)
	if err != nil {
		log.Fatal("Failed to initialize invoice automation", zap.Error(err))
	}
	defer func() {
		if err := auto.Close(); err != nil {
			log.Error("Error closing automation resources", zap.Error(err))
		}
	}()
	log.Info("Collection policy loaded",
		zap.Duration("reminder_delay", auto.Policy.ReminderDelay),
		zap.Duration("lease_duration", auto.Policy.LeaseDuration),
		zap.String("late_fee", auto.Policy.LateFeeAmount.StringFixed(2)),
		zap.String("timezone", auto.Policy.Location.String()),
		zap.Duration("worst_case_staleness", auto.Policy.WorstCaseStaleness(cfg.Automation.Interval)),
	)

	trigger := scheduler.NewAutomationTrigger(scheduler.AutomationTriggerConfig{
		Interval:   cfg.Automation.Interval,
		RunOnStart: true,
	}, auto.Driver, log)
	if cfg.Automation.Enabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start automation trigger", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := trigger.Stop(stopCtx); err != nil {
				log.Warn("Automation trigger did not stop cleanly", zap.Error(err))
			}
		}()
	} else {
		log.Info("Interval trigger disabled, runs start only through the HTTP trigger")
	}

	tokens := auth.NewTriggerTokenService(cfg.Automation.TriggerSecret, cfg.App.Name)
	if !tokens.Enabled() {
		log.Warn("Trigger secret not set, the HTTP trigger endpoints are disabled")
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Meter:      meter,
		Tokens:     tokens,
		System:     handler.NewSystemHandler(db, version),
		Automation: handler.NewAutomationHandler(trigger),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
