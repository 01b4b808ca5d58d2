package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"questionbank/internal/api"
	"questionbank/internal/config"
	"questionbank/internal/files"
	"questionbank/internal/logging"
	"questionbank/internal/questions"
	"questionbank/internal/store"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dataDir := flag.String("data", "", "Data directory (overrides config)")
	devMode := flag.Bool("dev", false, "Development mode: disables CORS restrictions and rate limiting")
	flag.Parse()

	// Flags override through the environment, the top configuration layer.
	if *addr != "" {
		os.Setenv("LISTEN_ADDR", *addr)
	}
	if *dataDir != "" {
		os.Setenv("DATA_DIR", *dataDir)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Internal.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize stores
	recordStore, err := store.NewFSStore(filepath.Join(cfg.Server.DataDir, "questions"))
	if err != nil {
		logging.Internal.Fatalf("failed to initialize record store: %v", err)
	}
	blobStore, err := files.NewStore(cfg.Server.DataDir)
	if err != nil {
		logging.Internal.Fatalf("failed to initialize blob store: %v", err)
	}
	logging.Internal.Printf("storing data under %s", cfg.Server.DataDir)

	// Initialize service and HTTP handler
	questionsSvc := questions.NewService(recordStore)
	handler := api.NewHandler(questionsSvc, blobStore, cfg.Auth.APIKey, cfg.Server.PublicBaseURL)

	// Configure CORS
	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Println("development mode: CORS allowing all origins")
	} else if len(cfg.Security.CORSOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.Security.CORSOrigins
		logging.Internal.Printf("CORS restricted to origins: %v", corsConfig.AllowedOrigins)
	} else {
		logging.Internal.Println("CORS allowing all origins (no corsOrigins configured)")
	}

	// Apply middleware (order: Logger -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = handler
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !*devMode {
		finalHandler = api.RateLimit(api.DefaultRateLimitConfig())(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
	}()

	logging.Internal.Printf("starting server on %s", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatalf("server error: %v", err)
	}
}
