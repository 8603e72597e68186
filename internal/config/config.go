package config

import (
	"fmt"
	"os"
)

type Config struct {
	Env             string
	ListenAddr      string
	DatabaseURL     string
	LedgerURL       string
	MethodologyFile string
	AnchorWorkers   int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:             getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LedgerURL:       os.Getenv("LEDGER_URL"),
		MethodologyFile: os.Getenv("METHODOLOGY_FILE"),
		AnchorWorkers:   getenvInt("ANCHOR_WORKERS", 2),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal: the in-memory adapters serve local runs. Warn via error
		// value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set, using in-memory storage")
	}
	return cfg, nil
}
