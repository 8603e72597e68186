package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "verona/internal/adapters/http"
	"verona/internal/adapters/ledger"
	"verona/internal/adapters/memory"
	pg "verona/internal/adapters/postgres"
	"verona/internal/config"
	"verona/internal/locks"
	"verona/internal/ports"
	"verona/internal/registry"
	auditsvc "verona/internal/services/audit"
	evidencesvc "verona/internal/services/evidence"
	scoringsvc "verona/internal/services/scoring"
	verificationsvc "verona/internal/services/verification"
	"verona/internal/workers/anchorrunner"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("config", "warning", err)
	}

	// A broken methodology must refuse startup; published tiers would stop
	// being reproducible otherwise.
	meth, err := loadMethodology(cfg)
	if err != nil {
		slog.Error("methodology load failed", "error", err)
		os.Exit(1)
	}
	reg, err := registry.NewRegistry(meth)
	if err != nil {
		slog.Error("registry init failed", "error", err)
		os.Exit(1)
	}
	taxonomy, err := registry.LoadBuiltinTaxonomy()
	if err != nil {
		slog.Error("taxonomy load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		evRepo    ports.EvidenceRepository
		runRepo   ports.ScoreRunRepository
		attRepo   ports.AttestationRepository
		dispRepo  ports.DisputeRepository
		auditRepo ports.AuditRepository
		jobRepo   ports.AnchorJobRepository
		committer ports.Committer
	)
	if cfg.DatabaseURL != "" {
		if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("db connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		evRepo, runRepo, attRepo, dispRepo, auditRepo, jobRepo, committer = db, db, db, db, db, db, db
	} else {
		store := memory.NewStore()
		evRepo, runRepo, attRepo, dispRepo, auditRepo, jobRepo, committer = store, store, store, store, store, store, store
	}

	var led ports.Ledger
	if cfg.LedgerURL != "" {
		led = ledger.NewClient(cfg.LedgerURL)
	} else {
		slog.Warn("LEDGER_URL not set, using in-process ledger stub")
		led = ledger.NewStub()
	}

	keyed := locks.NewKeyed()
	recorder := auditsvc.New(committer, auditRepo)
	scoring := scoringsvc.New(runRepo, reg, recorder, keyed)
	evidence := evidencesvc.New(evRepo, taxonomy, keyed)
	verification := verificationsvc.New(evRepo, attRepo, dispRepo, recorder, keyed)

	srv := httpadapter.New(scoring, evidence, verification, recorder)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	if cfg.AnchorWorkers > 0 {
		runner := anchorrunner.New(jobRepo, led, runRepo, attRepo)
		go runner.Run(ctx, cfg.AnchorWorkers, time.Second)
		slog.Info("anchor workers started", "count", cfg.AnchorWorkers)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	slog.Info("listening", "addr", cfg.ListenAddr, "methodology", meth.Version, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadMethodology(cfg config.Config) (*registry.Methodology, error) {
	if cfg.MethodologyFile != "" {
		data, err := os.ReadFile(cfg.MethodologyFile)
		if err != nil {
			return nil, err
		}
		return registry.LoadMethodology(data)
	}
	return registry.LoadBuiltinMethodology("methodology")
}
