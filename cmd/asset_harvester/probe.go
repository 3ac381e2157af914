package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/supabase"
)

func runProbe(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("probe", `Usage: asset_harvester probe [options] NAME [NAME ...]

Request a few rows of each candidate resource in order and print the first
one that answers, with its sample rows.

Options:`)

	limit := fs.Int("limit", 10, "Rows requested per candidate")

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		return &argumentError{msg: "probe needs at least one resource name"}
	}

	if *limit <= 0 {
		return &argumentError{msg: fmt.Sprintf("-limit must be positive, got %d", *limit)}
	}

	if err := a.cfg.RequireSupabase(); err != nil {
		return err
	}

	name, rows, err := a.supabaseClient(a.cfg.Supabase.PageSize).Probe(ctx, fs.Args(), *limit)
	if err != nil {
		if errors.Is(err, supabase.ErrNoResource) {
			logctx.LoggerFromContext(ctx).Warn("no candidate answered", "candidates", fs.Args())
		}

		return err
	}

	fmt.Fprintf(a.stdout, "Found resource %s (%d rows)\n", name, len(rows))

	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	return enc.Encode(rows)
}
