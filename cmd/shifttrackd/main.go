package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shift-tracker-backend/config"
	"shift-tracker-backend/internal/api"
	"shift-tracker-backend/internal/db"
	"shift-tracker-backend/internal/engine"
	"shift-tracker-backend/internal/ledger"
	"shift-tracker-backend/internal/notification"
	"shift-tracker-backend/internal/org"
	"shift-tracker-backend/internal/tracking"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "shift-tracker ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	tz, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Ledger.Timezone, err)
	}
	now := func() time.Time { return time.Now().In(tz) }

	// Web push is optional: without VAPID keys the service runs with chat
	// notifications only.
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured; push notifications disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Open the timesheet workbook
	workbook, err := ledger.OpenWorkbook(cfg.Ledger.Path, cfg.Ledger.Sheet)
	if err != nil {
		logger.Fatalf("failed to open timesheet: %v", err)
	}
	defer workbook.Close()
	locator := ledger.NewLocator(workbook, cfg.Ledger.MonthLabels, cfg.Ledger.NameColumn, cfg.Ledger.HeaderScanRows, cfg.Ledger.LocatorCacheTTL)
	logger.Printf("timesheet %s opened", cfg.Ledger.Path)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Org directory snapshot
	directory := org.NewGormDirectory(gormDB)
	if err := directory.Reload(ctx); err != nil {
		logger.Fatalf("failed to load the employee directory: %v", err)
	}

	// Geotracking store and retention sweeper
	store := tracking.NewGormStore(gormDB, tracking.Thresholds{
		MaxAccuracyMeters: cfg.Tracking.MaxAccuracyMeters,
		MaxJumpSpeedKmh:   cfg.Tracking.MaxJumpSpeedKmh,
	})
	sweeper := tracking.NewSweeper(store, cfg.Tracking.RetentionDays, cfg.Tracking.CleanupInterval)
	go sweeper.Run(ctx)

	// Notifications: chat sender plus the optional push worker pool
	chat := notification.NewBotAPISender(&cfg.Chat)
	var pool *notification.WorkerPool
	var pusher engine.Pusher
	if webpushOptions != nil {
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		pusher = pool
	}

	eng := engine.New(workbook, locator, store, directory, chat, pusher)

	// Initialize router
	handler := api.NewHandler(eng, store, directory, gormDB, webpushOptions, now)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
