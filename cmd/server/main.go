package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/bootstrap"
	"github.com/gridbase/backend/internal/config"
	"github.com/gridbase/backend/internal/infrastructure/database"
	"github.com/gridbase/backend/internal/interfaces/middleware"
	"github.com/gridbase/backend/internal/interfaces/rest"
	"github.com/gridbase/backend/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Development: cfg.Debug})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logging.SetLogger(logger)

	conn, err := database.GetInstance(cfg.DB)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	log.Println("✅ Database connection established")

	app, err := bootstrap.New(conn.DB(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire application", zap.Error(err))
	}

	startup, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := app.InitializeSchema(startup, conn.DB()); err != nil {
		cancel()
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}
	cancel()
	log.Println("📦 Metadata schema and formulas up to date")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.NewRouter(
		rest.NewFieldHandler(app.Fields),
		rest.NewFormulaHandler(app.Fields, app.Engine),
		conn,
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		middleware.Cors(),
	)

	app.Periodic.Start()
	log.Printf("⏰ Periodic formula updater started (%s)", cfg.PeriodicSchedule)

	log.Println("🚀 Grid backend started")
	log.Printf("📍 Server:         http://localhost:%s", cfg.Port)
	log.Printf("📐 Formula API:    http://localhost:%s/api/formula", cfg.Port)
	log.Printf("💚 Health check:   http://localhost:%s/health", cfg.Port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	app.Periodic.Stop(ctx)
	log.Println("🛑 Periodic formula updater stopped")

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	log.Println("Server exiting")
}
