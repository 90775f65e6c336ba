// Package main implements the fortunate binary: it proves single Fortunate
// numbers, sweeps ranges of indices, replays recorded batch traces, and
// serves the HTTP and gRPC APIs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/primorial/fortunate/internal/app"
	"github.com/primorial/fortunate/internal/config"
	"github.com/primorial/fortunate/internal/errors"
	"github.com/primorial/fortunate/internal/progress"
	"github.com/primorial/fortunate/internal/search"
	"github.com/primorial/fortunate/internal/sweep"
)

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	configFile string
	dataDir    string
	workers    int
	oracle     string
	sweep      string
	replay     int
	serve      bool
	httpAddr   string
	grpcAddr   string
	noLedger   bool
	quiet      bool
	verbose    bool
}

func main() {
	var (
		opts        options
		showVersion bool
	)

	flag.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&opts.dataDir, "data-dir", "", "Base directory for the ledger and local reports")
	flag.IntVar(&opts.workers, "workers", 0, "Number of concurrent batch testers (default: number of CPUs)")
	flag.StringVar(&opts.oracle, "oracle", "", "Primality oracle: inprocess, gp")
	flag.StringVar(&opts.sweep, "sweep", "", "Compute F(a) through F(b) for the range a-b and upload a report")
	flag.IntVar(&opts.replay, "replay", 0, "Replay the recorded batch trace of F(n)")
	flag.BoolVar(&opts.serve, "serve", false, "Serve the HTTP and gRPC APIs")
	flag.StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address for -serve")
	flag.StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC listen address for -serve")
	flag.BoolVar(&opts.noLedger, "no-ledger", false, "Neither read nor record results in the ledger")
	flag.BoolVar(&opts.quiet, "quiet", false, "Suppress the progress line")
	flag.BoolVar(&opts.verbose, "verbose", false, "Print one line per completed batch")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fortunate - parallel Fortunate number search\n\n")
		fmt.Fprintf(os.Stderr, "Usage: fortunate [options] <n>\n")
		fmt.Fprintf(os.Stderr, "       fortunate [options] -sweep a-b\n")
		fmt.Fprintf(os.Stderr, "       fortunate [options] -replay n\n")
		fmt.Fprintf(os.Stderr, "       fortunate [options] -serve\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  FORTUNATE_DATA_DIR      Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  FORTUNATE_WORKERS       Number of concurrent batch testers\n")
		fmt.Fprintf(os.Stderr, "  FORTUNATE_ORACLE        Primality oracle (inprocess, gp)\n")
		fmt.Fprintf(os.Stderr, "  FORTUNATE_STORAGE_TYPE  Report storage type (local, s3)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("fortunate version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if opts.serve {
		os.Exit(serve(cfg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.sweep != "":
		os.Exit(runSweep(ctx, cfg, opts.sweep))
	case opts.replay != 0:
		os.Exit(runReplay(ctx, cfg, opts.replay))
	case flag.NArg() == 1:
		n, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid index %q\n", flag.Arg(0))
			os.Exit(2)
		}
		os.Exit(runSingle(ctx, cfg, n))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// loadConfig layers defaults, the config file, the environment and the
// command line, in increasing priority.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.workers > 0 {
		cfg.Search.Workers = opts.workers
	}
	if opts.oracle != "" {
		cfg.Oracle.Type = opts.oracle
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if opts.grpcAddr != "" {
		cfg.GRPC.Addr = opts.grpcAddr
	}
	if opts.noLedger {
		cfg.Ledger.Enabled = false
	}
	if opts.quiet {
		cfg.Progress.Enabled = false
	}
	if opts.verbose {
		cfg.Progress.Verbose = true
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(ctx context.Context, cfg *config.Config) (*app.Components, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	var observers []search.Observer
	if cfg.Progress.Enabled || cfg.Progress.Verbose {
		observers = append(observers, progress.NewReporter(os.Stderr, cfg.Progress.Delay, cfg.Progress.Verbose))
	}
	return app.Build(ctx, cfg, observers...)
}

func runSingle(ctx context.Context, cfg *config.Config, n int) int {
	c, err := build(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer c.Close()

	res, err := c.Service.Find(ctx, n, 0)
	if err != nil {
		return report(err)
	}

	source := fmt.Sprintf("%d workers", res.Workers)
	if res.Cached {
		source = "ledger"
	}
	fmt.Printf("F(%d) = %d\n", res.Index, res.Fortunate)
	fmt.Fprintf(os.Stderr, "%s, %d ranges, %d candidates tested, %d skipped (%s)\n",
		progress.FormatDuration(res.Elapsed), res.RangesTested, res.CandidatesTested, res.CandidatesSkipped, source)
	return 0
}

func runSweep(ctx context.Context, cfg *config.Config, rangeArg string) int {
	from, to, err := sweep.ParseRange(rangeArg)
	if err != nil {
		return report(err)
	}
	c, err := build(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer c.Close()

	rep, err := c.Sweep.Run(ctx, from, to)
	if rep != nil {
		fmt.Print(rep.Markdown())
	}
	if err != nil {
		return report(err)
	}
	if rep.ObjectPath != "" {
		fmt.Fprintf(os.Stderr, "report: %s\n", rep.ObjectPath)
	}
	return 0
}

func runReplay(ctx context.Context, cfg *config.Config, n int) int {
	if !cfg.Ledger.Enabled {
		fmt.Fprintln(os.Stderr, "replay needs the ledger")
		return 2
	}
	cfg.Progress.Enabled = false
	c, err := build(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer c.Close()

	entry, err := c.Service.Replay(ctx, n)
	if err != nil {
		return report(err)
	}
	fmt.Printf("F(%d) = %d: %d batch observations replay identically\n", n, entry.Fortunate, len(entry.Trace))
	return 0
}

func serve(cfg *config.Config) int {
	log.Printf("fortunate %s starting", version)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Workers:  %d", cfg.Search.Workers)
	log.Printf("  Oracle:   %s", cfg.Oracle.Type)
	log.Printf("  Storage:  %s", cfg.Storage.Type)

	cfg.Progress.Enabled = false
	application, err := app.New(cfg)
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return 1
	}
	if err := application.Start(context.Background()); err != nil {
		log.Printf("Failed to start application: %v", err)
		return 1
	}
	if err := application.WaitForShutdown(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		return 1
	}
	return 0
}

// report prints err and maps it to an exit status: 2 for bad input, 130
// for an interrupted search, 1 otherwise.
func report(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	switch errors.GetCategory(err) {
	case errors.ErrCategoryValidation:
		return 2
	case errors.ErrCategorySearch:
		if errors.GetCode(err) == errors.CodeSearchCancelled {
			return 130
		}
	}
	return 1
}
