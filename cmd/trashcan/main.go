package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trashcan"
	"trashcan/internal/config"
	"trashcan/internal/exitcodes"
	"trashcan/internal/history"
	"trashcan/internal/log"
	"trashcan/internal/metrics"
	"trashcan/internal/safety"
)

func main() {
	trashcan.ServeWorkerIfRequested()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("trashcan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	threads := fs.Int("threads", 0, "Goroutines per pool (overrides config)")
	processes := fs.Int("processes", 0, "Worker processes (overrides config)")
	fromStdin := fs.Bool("stdin", false, "Read paths to delete from stdin, one per line")
	logLevel := fs.String("log-level", "", "Log level (overrides config)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: trashcan [flags] PATH...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitcodes.InvalidConfig
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: Failed to load config: %v\n", err)
			return exitcodes.InvalidConfig
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threads":
			cfg.Threads = *threads
		case "processes":
			cfg.Processes = *processes
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "ERROR: Invalid configuration: %v\n", err)
		return exitcodes.InvalidConfig
	}

	paths := fs.Args()
	if len(paths) == 0 && !*fromStdin {
		fs.Usage()
		return exitcodes.InvalidConfig
	}

	out, closeLog, err := logOutput(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitcodes.InvalidConfig
	}
	defer closeLog()
	log.Configure(log.Config{Level: cfg.Logging.Level, Output: out})
	logger := log.WithComponent("cli")

	metrics.Init()
	if cfg.Prometheus.Port > 0 {
		addr, err := metrics.StartServer(fmt.Sprintf(":%d", cfg.Prometheus.Port), logger)
		if err != nil {
			logger.Error().Err(err).Int("port", cfg.Prometheus.Port).Msg("start metrics server")
			return exitcodes.RuntimeError
		}
		logger.Info().Str("addr", addr).Msg("serving metrics")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.Shutdown(ctx, logger)
		}()
	}

	tally := &outcomeTally{}
	if cfg.DatabasePath != "" {
		db, err := history.Open(cfg.DatabasePath)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.DatabasePath).Msg("open deletion history")
			return exitcodes.RuntimeError
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("close deletion history")
			}
		}()
		tally.db = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base := log.Base()
	opts := trashcan.Options{
		Threads:       cfg.Threads,
		Processes:     cfg.Processes,
		WorkerCommand: cfg.WorkerCommand,
		Logger:        &base,
		Validator:     safety.NewValidator(cfg.Safety.AllowedRoots, cfg.Safety.ProtectedPaths),
		Recorder:      tally,
	}

	err = trashcan.With(opts, func(tc *trashcan.Trashcan) error {
		logger.Info().Str("strategy", tc.Strategy().String()).Msg("dispatching")
		for _, p := range paths {
			tc.Dispatch(p)
		}
		if *fromStdin {
			return dispatchLines(ctx, tc, stdin)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("trashcan failed")
		return exitcodes.RuntimeError
	}

	completed, failed, refused := tally.counts()
	logger.Info().
		Int64("completed", completed).
		Int64("failed", failed).
		Int64("refused", refused).
		Msg("done")

	switch {
	case refused > 0:
		return exitcodes.SafetyViolation
	case failed > 0:
		return exitcodes.RuntimeError
	default:
		return exitcodes.Success
	}
}

// dispatchLines dispatches every non-blank line of r until EOF or ctx is
// done. Reading happens on its own goroutine so an idle r cannot hold off
// cancellation; that goroutine is abandoned if ctx ends first.
func dispatchLines(ctx context.Context, tc *trashcan.Trashcan, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if line = strings.TrimSpace(line); line != "" {
				tc.Dispatch(line)
			}
		}
	}
}

// logOutput returns stderr, or stderr plus the configured log file.
// Completion events are logged from pool goroutines, so writes are serialised.
func logOutput(cfg *config.Config, stderr io.Writer) (io.Writer, func(), error) {
	if cfg.Logging.File == "" {
		return zerolog.SyncWriter(stderr), func() {}, nil
	}
	f, err := log.OpenFile(cfg.Logging.File, cfg.Logging.RotationDays)
	if err != nil {
		return nil, nil, err
	}
	return zerolog.SyncWriter(zerolog.MultiLevelWriter(stderr, f)), func() { _ = f.Close() }, nil
}
