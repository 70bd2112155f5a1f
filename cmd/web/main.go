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

	"github.com/AdamBeresnev/fpv-bracket/internal/config"
	"github.com/AdamBeresnev/fpv-bracket/internal/db"
	"github.com/AdamBeresnev/fpv-bracket/internal/live"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/AdamBeresnev/fpv-bracket/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load(os.Getenv("FPV_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, cfg.Migrations); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Store = sqlite3store.New(database.DB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := live.NewHub(cfg.AllowedOrigins)
	go hub.Run(ctx)

	deps := service.Deps{
		DB:        database,
		Store:     store.NewTournamentStore(database),
		Locks:     service.NewLocks(),
		Metrics:   service.NewMetrics(registry),
		Publisher: hub,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, deps, sessionManager, hub, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Println("Shutdown failed:", err)
		}
	}()

	log.Printf("Server starting on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
