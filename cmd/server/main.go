// Command server runs the elevation query HTTP API.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jcom-dev/elevation-service/internal/cache"
	"github.com/jcom-dev/elevation-service/internal/config"
	"github.com/jcom-dev/elevation-service/internal/dataset"
	"github.com/jcom-dev/elevation-service/internal/httpapi"
	custommw "github.com/jcom-dev/elevation-service/internal/middleware"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)

	datasetCfg, err := dataset.LoadConfig(cfg.DatasetConfigPath)
	if err != nil {
		log.Fatalf("loading dataset config: %v", err)
	}

	registry, err := dataset.NewRegistry(datasetCfg, cfg.HandleCacheSize)
	if err != nil {
		log.Fatalf("building dataset registry: %v", err)
	}
	defer registry.Close()

	var respCache *cache.Cache
	if cfg.CacheEnabled {
		respCache, err = cache.New()
		if err != nil {
			slog.Warn("response cache disabled: connection failed", "error", err)
			respCache = nil
		} else {
			defer respCache.Close()
		}
	}

	handler := httpapi.NewHandler(registry, respCache)

	r := chi.NewRouter()
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.LogFailedRequestBodies)
	r.Use(custommw.NewLogger(cfg.SlowRequestLog))
	r.Use(custommw.Recoverer)
	r.Use(custommw.Timeout(cfg.RequestTimeout))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.ContentType("application/json"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handler.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("elevation service listening", "port", cfg.Port, "datasets", registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	slog.Info("shutdown complete")
}
