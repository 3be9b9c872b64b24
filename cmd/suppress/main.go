// Command suppress runs the cell-suppression engine, either as a one-shot
// CSV-to-CSV conversion or as an HTTP service exposing the same engine
// plus a run ledger, mirroring the control-plane services' env-var +
// flag configuration style.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Ap3pp3rs94/cellsuppress/pkg/config"
	"github.com/Ap3pp3rs94/cellsuppress/pkg/suppress"
	"github.com/Ap3pp3rs94/cellsuppress/pkg/telemetry"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/api"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/internal/ingest"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/internal/ledger"
)

// fileConfig is the on-disk shape of a suppress config file: the engine's
// own Config plus the handful of options only the CLI/service care about.
type fileConfig struct {
	Suppress  suppress.Config `yaml:"suppress" json:"suppress"`
	LedgerDSN string          `yaml:"ledger_dsn" json:"ledger_dsn"`
	Addr      string          `yaml:"addr" json:"addr"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: suppress run --config cfg.yaml --input in.csv --output out.csv")
	fmt.Fprintln(os.Stderr, "       suppress serve --config cfg.yaml")
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file (required)")
	inputPath := fs.String("input", "", "input CSV path (default: stdin)")
	outputPath := fs.String("output", "", "output CSV path (default: stdout)")
	fs.Parse(args)

	log := telemetry.NewDefaultLogger(os.Stderr, "suppress-cli")
	ctx := context.Background()

	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Error(ctx, "input_open_failed", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	records, err := ingest.ReadCSV(in, cfg.Suppress)
	if err != nil {
		log.Error(ctx, "ingest_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}

	started := time.Now().UTC()
	result, err := suppress.SuppressWithProgress(records, cfg.Suppress, func(ev suppress.ProgressEvent) {
		log.Debug(ctx, "pass_progress", map[string]any{
			"pass":           ev.Pass,
			"partition":      strings.Join(ev.Axis.Partition, ","),
			"scan_dim":       ev.Axis.ScanDim,
			"newly_redacted": ev.NewlyRedacted,
		})
	})
	if err != nil {
		log.Error(ctx, "suppress_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}
	duration := time.Since(started)

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Error(ctx, "output_open_failed", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := ingest.WriteCSV(out, result, cfg.Suppress); err != nil {
		log.Error(ctx, "ingest_write_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}

	log.Info(ctx, "run_completed", map[string]any{
		"total_cells":    result.Stats.TotalCells,
		"redacted_cells": result.Stats.RedactedCells,
		"passes":         result.Stats.Passes,
		"duration_ms":    duration.Milliseconds(),
	})
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file (required)")
	addrFlag := fs.String("addr", "", "listen address, overrides the config file's addr")
	fs.Parse(args)

	log := telemetry.NewDefaultLogger(os.Stdout, "suppressor-api")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}

	addr := cfg.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}
	if addr == "" {
		addr = ":8090"
	}

	store, err := openLedger(ctx, cfg.LedgerDSN)
	if err != nil {
		log.Error(ctx, "ledger_open_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	}

	srv := &api.Server{Ledger: store, Log: log}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "starting", map[string]any{"addr": addr})
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "listen_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}
}

// openLedger opens a SQLite or Postgres ledger depending on dsn's scheme
// ("postgres://..." vs. a bare file path), or returns a nil Store (run
// history just isn't recorded) when dsn is empty.
func openLedger(ctx context.Context, dsn string) (ledger.Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return ledger.NewPostgresStore(ctx, dsn)
	}
	return ledger.NewSQLiteStore(ctx, dsn)
}

// loadFileConfig loads a suppress config file through pkg/config's
// layered loader (base file only, via ExplicitPath -- the CLI has no
// env/tenant tiers), then decodes the resulting merged document into
// fileConfig by round-tripping it through encoding/json: the loader's
// Bundle.Merged is a plain map[string]any (json.Number for JSON files,
// native Go numbers for YAML files), which encoding/json re-encodes and
// decodes into the struct's json tags.
func loadFileConfig(path string) (fileConfig, error) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, fmt.Errorf("--config is required")
	}
	root := filepath.Dir(path)
	loader, err := config.NewLoader(root, config.Options{
		Service:            "suppress",
		ExplicitPath:       filepath.Base(path),
		EnableEnvOverrides: true,
		EnvPrefix:          "SUPPRESS_",
	})
	if err != nil {
		return fileConfig{}, fmt.Errorf("config loader: %w", err)
	}
	bundle, err := loader.Load(context.Background())
	if err != nil {
		return fileConfig{}, fmt.Errorf("loading config: %w", err)
	}
	b, err := json.Marshal(bundle.Merged)
	if err != nil {
		return fileConfig{}, fmt.Errorf("encoding merged config: %w", err)
	}
	var cfg fileConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decoding merged config: %w", err)
	}
	return cfg, nil
}
