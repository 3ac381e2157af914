package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/run"
	"github.com/italolelis/asset_harvester/internal/supabase"
)

func runScrape(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("scrape", `Usage: asset_harvester scrape [options]

Harvest the remote tables of one language, write every table and the asset
URL manifest under <data-dir>/<LANG>/, and optionally download the assets.

Options:`)

	lang := fs.String("lang", "EN", "Language package to fetch (e.g. EN, PT, CN)")
	download := fs.Bool("download", false, "Download all referenced assets instead of only writing the manifest")
	dataDir := fs.String("data-dir", a.cfg.DataDir, "Directory to write JSON data")
	assetsDir := fs.String("assets-dir", a.cfg.AssetsDir, "Directory to store downloaded assets")
	tables := fs.String("tables", strings.Join(a.cfg.Tables, ","), "Comma separated resources to harvest (default: built-in catalog)")
	pageSize := fs.Int("page-size", a.cfg.Supabase.PageSize, "Records requested per page")
	parallel := fs.Int("parallel", a.cfg.HarvestParallel, "Resources fetched concurrently")

	dl := a.downloadOptions()
	bindDownloadFlags(fs, &dl, "download-parallel")

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *pageSize <= 0 {
		return &argumentError{msg: fmt.Sprintf("-page-size must be positive, got %d", *pageSize)}
	}

	if err := validateDownloadFlags(dl); err != nil {
		return err
	}

	if err := a.cfg.RequireSupabase(); err != nil {
		return err
	}

	fetcher := supabase.NewInstrumentedClient(a.supabaseClient(*pageSize), a.tel)

	r := a.runner(fetcher, harvest.Options{PageSize: *pageSize, Parallel: *parallel}, dl)

	summary, err := r.Scrape(ctx, run.ScrapeOptions{
		Lang:      *lang,
		Download:  *download,
		DataDir:   *dataDir,
		AssetsDir: *assetsDir,
		Tables:    splitList(*tables),
	})
	if summary != nil {
		printScrapeSummary(a, summary)
	}

	return err
}

func printScrapeSummary(a *app, s *run.ScrapeSummary) {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintf(a.stdout, "\nScrape summary for %s:\n", s.Lang)

	for _, name := range names {
		fmt.Fprintf(a.stdout, "  %s: %s rows\n", name, humanize.Comma(int64(s.Tables[name])))
	}

	failed := make([]string, 0, len(s.FailedTables))
	for name := range s.FailedTables {
		failed = append(failed, name)
	}

	sort.Strings(failed)

	for _, name := range failed {
		fmt.Fprintf(a.stdout, "  %s: FAILED (%s)\n", name, s.FailedTables[name])
	}

	fmt.Fprintf(a.stdout, "Asset URLs: %d\n", s.ImageURLCount)

	if s.Report != nil {
		printReport(a, s.Lang, s.Report)
	}
}
