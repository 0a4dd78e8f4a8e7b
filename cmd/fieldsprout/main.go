// Command fieldsprout runs backfills, coverage checks and baseline imports
// from the shell without going through the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fieldsprout/internal/backfill"
	"fieldsprout/internal/baseline"
	"fieldsprout/internal/config"
	"fieldsprout/internal/connections"
	"fieldsprout/internal/db"
	"fieldsprout/internal/logger"
	"fieldsprout/internal/sources"
)

const usage = `usage: fieldsprout <command> [flags]

commands:
  backfill    -account N [-months 12] [-force]
  check       -account N
  import-csv  -account N -source S [-source-id X] -file path
  import-monthly -account N -source S [-source-id X] -file rows.json
`

type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *db.Store
	orch  *backfill.Orchestrator
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "backfill":
		code = runBackfill(ctx, os.Args[2:])
	case "check":
		code = runCheck(ctx, os.Args[2:])
	case "import-csv":
		code = runImport(ctx, os.Args[2:], false)
	case "import-monthly":
		code = runImport(ctx, os.Args[2:], true)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

func newApp() (*app, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sealer, err := connections.NewSealer(cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("token key: %w", err)
	}

	store := db.NewStore(gdb)
	orch := backfill.New(store,
		sources.NewStandardRegistry(cfg, db.NewLeadStore(gdb)),
		connections.NewProvider(gdb, sealer),
		backfill.Options{
			Parallelism:   cfg.BackfillParallelism,
			SourceTimeout: cfg.SourceTimeout,
			Logger:        log,
		})
	return &app{cfg: cfg, log: log, store: store, orch: orch}, nil
}

func runBackfill(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	account := fs.Uint("account", 0, "account id to backfill (required)")
	months := fs.Int("months", 0, "months of history (default APP_DEFAULT_BACKFILL_MONTHS)")
	force := fs.Bool("force", false, "re-fetch dates that are already stored")
	_ = fs.Parse(args)
	if *account == 0 {
		fmt.Fprintln(os.Stderr, "-account is required")
		return 2
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	defer a.log.Sync()
	if *months == 0 {
		*months = a.cfg.DefaultBackfillMonths
	}

	report, err := a.orch.Backfill(ctx, *account, *months, *force)
	if report != nil {
		printJSON(report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		return 1
	}
	return 0
}

func runCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	account := fs.Uint("account", 0, "account id (required)")
	_ = fs.Parse(args)
	if *account == 0 {
		fmt.Fprintln(os.Stderr, "-account is required")
		return 2
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	defer a.log.Sync()

	coverage, err := a.orch.Check(ctx, *account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		return 1
	}
	printJSON(coverage)
	return 0
}

// runImport loads a baseline CSV, or with monthly a JSON array of
// {year, month, metrics} rows.
func runImport(ctx context.Context, args []string, monthly bool) int {
	name := "import-csv"
	if monthly {
		name = "import-monthly"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	account := fs.Uint("account", 0, "account id (required)")
	source := fs.String("source", "", "source type, e.g. google_ads (required)")
	sourceID := fs.String("source-id", "", "platform identifier the rows belong to")
	file := fs.String("file", "", "path to the input file (required)")
	_ = fs.Parse(args)
	if *account == 0 || *source == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "-account, -source and -file are required")
		return 2
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 1
	}
	defer f.Close()

	var rows []baseline.MonthlyRow
	if monthly {
		if err := json.NewDecoder(f).Decode(&rows); err != nil {
			fmt.Fprintf(os.Stderr, "decode %s: %v\n", *file, err)
			return 1
		}
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	defer a.log.Sync()

	var res baseline.Result
	if monthly {
		res, err = baseline.ImportMonthly(ctx, a.store, *account, db.SourceType(*source), *sourceID, rows)
	} else {
		res, err = baseline.ImportCSV(ctx, a.store, *account, db.SourceType(*source), *sourceID, f)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		return 1
	}
	printJSON(res)
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
