package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/workflow/internal/application/services"
	"github.com/nexuscrm/workflow/internal/bootstrap"
	"github.com/nexuscrm/workflow/internal/config"
	"github.com/nexuscrm/workflow/internal/interfaces/middleware"
	"github.com/nexuscrm/workflow/internal/interfaces/rest"
	"github.com/nexuscrm/workflow/pkg/auth"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret (WORKFLOW_AUTH_JWT_SECRET) must be set")
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer app.Close()

	var scheduler *services.SweepScheduler
	if cfg.Sweep.Enabled {
		scheduler = app.Services.NewSweepScheduler(cfg.Sweep.Schedule, cfg.Sweep.Timeout)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start sweep scheduler: %v", err)
		}
	} else {
		log.Println("⏸️ Sweep scheduler disabled")
	}

	gin.SetMode(cfg.HTTP.GinMode)
	router := gin.Default()
	router.Use(middleware.Cors())
	rest.RegisterRoutes(router, app.Services, auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Workflow engine listening on %s (store: %s)", srv.Addr, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	log.Println("👋 Server exited")
}
