package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/italolelis/asset_harvester/internal/config"
	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/storage"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitConfigError  = 3
	ExitStorageError = 5
)

var version = "dev"

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	var cmd func(ctx context.Context, a *app, args []string) error

	switch command {
	case "scrape":
		cmd = runScrape
	case "download":
		cmd = runDownload
	case "probe":
		cmd = runProbe
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logctx.WithRunID(logctx.WithLogger(ctx, logger), uuid.NewString())

	logger.InfoContext(ctx, "asset harvester starting", "command", command, "version", version, "log_level", cfg.LogLevel)

	a, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize", "err", err)
		return exitCode(err)
	}
	defer a.close(ctx)

	if err := cmd(ctx, a, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}

		var argErr *argumentError
		if errors.As(err, &argErr) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}

		logger.ErrorContext(ctx, "fatal error", "command", command, "err", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return exitCode(err)
	}

	return ExitSuccess
}

// argumentError reports bad command line usage.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string {
	return e.msg
}

func exitCode(err error) int {
	var (
		cfgErr     *config.ConfigurationError
		storageErr *storage.StorageError
	)

	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &storageErr):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: asset_harvester <command> [options]

Commands:
  scrape    Harvest the remote tables of a language and write the asset manifest
  download  Download the assets listed in previously scraped manifests
  probe     Find the first answering resource among candidate names

Settings are read from the environment (SUPABASE_KEY, DATA_DIR, ...);
flags override them. Run 'asset_harvester <command> -h' for command-specific help.`)
}
