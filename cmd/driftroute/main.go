package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftlabs/driftroute/internal/api"
	"github.com/driftlabs/driftroute/internal/backend"
	"github.com/driftlabs/driftroute/internal/cache"
	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/internal/engine"
	"github.com/driftlabs/driftroute/internal/metrics"
	"github.com/driftlabs/driftroute/internal/store"
	"github.com/driftlabs/driftroute/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.Fatal("Failed to load configuration: %v", err)
	}
	utils.SetDefaultLevel(utils.ParseLevel(cfg.App.LogLevel))

	log := utils.NewLogger()
	log.Info("Starting %s %s...", cfg.App.Name, cfg.App.Version)

	registry, err := backend.BuildRegistry(cfg.Backends, backend.NewHTTPClient(30*time.Second))
	if err != nil {
		utils.Fatal("Failed to build backend registry: %v", err)
	}
	log.Info("Registered backends: %v", registry.IDs())

	st, err := store.NewBadgerStore(cfg.Checkpoint.Dir, cfg.Checkpoint.InMemory)
	if err != nil {
		utils.Fatal("Failed to open checkpoint store: %v", err)
	}
	log.Info("Checkpoint store ready at %s", cfg.Checkpoint.Dir)

	responseCache, err := cache.Connect(cfg, log)
	if err != nil {
		log.Warn("Response cache unavailable, continuing without it: %v", err)
		responseCache = nil
	}

	collector := metrics.NewCollector(nil)

	var engineCache engine.ResponseCache
	if responseCache != nil {
		engineCache = responseCache
	}

	eng, err := engine.New(cfg, registry, st, engineCache, collector, log)
	if err != nil {
		utils.Fatal("Failed to initialize routing engine: %v", err)
	}
	eng.Start()

	router := api.NewRouter(eng, collector, cfg.Server.RateLimitPerMinute, log)
	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown: %v", err)
		}
		if err := eng.Shutdown(shutdownCtx); err != nil {
			log.Error("Engine shutdown: %v", err)
		}
		if responseCache != nil {
			responseCache.Close()
		}
	}()

	log.Info("Serving on %s", cfg.GetServerAddr())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Fatal("Server failed: %v", err)
	}
	log.Info("Shutdown complete")
}

func printBanner() {
	banner := `
╔╦╗┬─┐┬┌─┐┌┬┐╦═╗┌─┐┬ ┬┌┬┐┌─┐
 ║║├┬┘│├┤  │ ╠╦╝│ ││ │ │ ├┤
═╩╝┴└─┴└   ┴ ╩╚═└─┘└─┘ ┴ └─┘
    Adaptive Request Routing
    ========================
`
	fmt.Println(banner)
}
