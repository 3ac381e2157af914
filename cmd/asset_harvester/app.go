package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/italolelis/asset_harvester/internal/catalog"
	"github.com/italolelis/asset_harvester/internal/config"
	"github.com/italolelis/asset_harvester/internal/downloader"
	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/http/rest"
	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/notifier"
	"github.com/italolelis/asset_harvester/internal/run"
	"github.com/italolelis/asset_harvester/internal/supabase"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

// app holds the process-wide collaborators shared by the subcommands.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	status *run.Status
	server *http.Server
	stdout io.Writer
	stderr io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*app, error) {
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		cfg:    cfg,
		tel:    tel,
		status: run.NewStatus(),
		stdout: stdout,
		stderr: stderr,
	}

	a.startServer(ctx)

	return a, nil
}

// startServer serves health, status and metrics when a bind address is set.
func (a *app) startServer(ctx context.Context) {
	if a.cfg.Web.BindAddress == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	a.server = &http.Server{
		Addr:         a.cfg.Web.BindAddress,
		ReadTimeout:  a.cfg.Web.ReadTimeout,
		WriteTimeout: a.cfg.Web.WriteTimeout,
		IdleTimeout:  a.cfg.Web.IdleTimeout,
		Handler:      rest.NewStatusHandler(a.status, a.tel).Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("initializing status server", "host", a.cfg.Web.BindAddress)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "err", err)
		}
	}()
}

func (a *app) close(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	if a.server != nil {
		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(sctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err := a.server.Close(); err != nil {
				logger.Error("could not stop server", "err", err)
			}
		}
	}

	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to shutdown telemetry", "err", err)
	}
}

func (a *app) supabaseClient(pageSize int) *supabase.Client {
	return supabase.NewClient(supabase.Options{
		BaseURL:        a.cfg.Supabase.URL,
		APIKey:         a.cfg.Supabase.Key,
		CollectionPath: a.cfg.Supabase.CollectionPath,
		Select:         a.cfg.Supabase.Select,
		PageSize:       pageSize,
		Timeout:        a.cfg.Supabase.Timeout,
		Telemetry:      a.tel,
	})
}

// runner builds a Runner. fetcher may be nil for download-only runs.
func (a *app) runner(fetcher harvest.Fetcher, harvestOpts harvest.Options, dl downloader.Options) *run.Runner {
	var notif notifier.Notifier
	if a.cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(a.cfg.DiscordWebhookURL)
	}

	dl.Telemetry = a.tel

	return run.New(run.Options{
		Fetcher:  fetcher,
		Harvest:  harvestOpts,
		Download: dl,
		Derive:   catalog.Deriver{AssetBase: a.cfg.AssetBase}.Derive,
		Notifier: notif,
		Status:   a.status,
	})
}

// flagSet returns a flag set that reports parse errors instead of exiting.
func (a *app) flagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	fs.Usage = func() {
		fmt.Fprintln(a.stderr, usage)
		fs.PrintDefaults()
	}

	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}

		return &argumentError{msg: err.Error()}
	}

	return nil
}

// splitList parses a comma separated flag value.
func splitList(v string) []string {
	var out []string

	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

func (a *app) downloadOptions() downloader.Options {
	return downloader.Options{
		Timeout:    a.cfg.Download.Timeout,
		MaxRetries: a.cfg.Download.Retries,
		Backoff:    a.cfg.Download.Backoff,
		Delay:      a.cfg.Download.Delay,
		Force:      a.cfg.Download.Force,
		Parallel:   a.cfg.Download.Parallel,
	}
}
