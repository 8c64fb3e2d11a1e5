package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Brownie44l1/canopy-aq/internal/app"
	"github.com/Brownie44l1/canopy-aq/internal/config"
	"github.com/Brownie44l1/canopy-aq/internal/handlers"
	"github.com/Brownie44l1/canopy-aq/internal/logging"
)

func main() {
	cfgFile := flag.String("config", "", "Path to YAML config file (optional)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || *debug

	log, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	a, err := app.Build(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}
	defer a.Close()

	// Load the model before accepting traffic; /health reports if this failed.
	if err := a.Detector.EnsureInitialized(); err != nil {
		log.Errorf("Tree detection model unavailable: %v", err)
	}

	handler := handlers.NewHandler(a.Analyzer, a.Detector, log.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Server starting on port %s", cfg.Port)
	log.Infof("Detector backend: %s", cfg.Detector.Backend)
	log.Info("Endpoints:")
	log.Info("  GET  /health        - Health check")
	log.Info("  POST /analyze       - JSON {image or satelliteUrl, lat, lon}")
	log.Info("  POST /analyze/image - Multipart image upload with lat/lon fields")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
