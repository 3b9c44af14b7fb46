package main

import (
	"log"
	"path/filepath"

	"github.com/joho/godotenv"

	"gateport/internal/api"
	"gateport/internal/audit"
	"gateport/internal/backend"
	"gateport/internal/broker"
	"gateport/internal/config"
	"gateport/internal/store"
)

func main() {
	// .env is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}

	auditLog, err := audit.New(filepath.Join(cfg.DataDir, "audit"))
	if err != nil {
		log.Printf("⚠️ Audit logging disabled: %v", err)
	}

	b := broker.New(cfg, st, auditLog)
	defer b.Close()

	prober := backend.NewProber(cfg.BackendAddr(), cfg.ProbeInterval, cfg.DialTimeout)
	prober.Start()
	defer prober.Stop()

	// NewServer registers the event feed callback, which must happen before
	// the reaper starts emitting.
	srv := api.NewServer(cfg, b, prober)
	b.Start()
	srv.Run()
}
