// Package run wires harvesting, URL derivation and asset downloads into the
// scrape and download entry points.
package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/asset_harvester/internal/catalog"
	"github.com/italolelis/asset_harvester/internal/cleanup"
	"github.com/italolelis/asset_harvester/internal/config"
	"github.com/italolelis/asset_harvester/internal/downloader"
	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/notifier"
	"github.com/italolelis/asset_harvester/internal/storage"
)

const defaultStaleAfter = time.Hour

// Options configures a Runner.
type Options struct {
	// Fetcher pages through remote resources. Required by Scrape.
	Fetcher harvest.Fetcher

	Harvest  harvest.Options
	Download downloader.Options

	// Derive maps harvested tables to asset URLs. Required by Scrape.
	Derive catalog.DeriveFunc

	// Notifier receives a message per finished language. Optional.
	Notifier notifier.Notifier

	// Status is updated while the run progresses. Optional.
	Status *Status

	// StaleAfter is the age after which leftover partial files are removed.
	// Default: 1h
	StaleAfter time.Duration
}

// Runner executes scrape and download runs.
type Runner struct {
	fetcher    harvest.Fetcher
	harvestOpt harvest.Options
	engine     *downloader.Engine
	derive     catalog.DeriveFunc
	notifier   notifier.Notifier
	status     *Status
	staleAfter time.Duration
}

func New(opts Options) *Runner {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}

	status := opts.Status
	onResult := opts.Download.OnResult

	opts.Download.OnResult = func(res downloader.Result) {
		status.Advance(res)

		if onResult != nil {
			onResult(res)
		}
	}

	return &Runner{
		fetcher:    opts.Fetcher,
		harvestOpt: opts.Harvest,
		engine:     downloader.New(opts.Download),
		derive:     opts.Derive,
		notifier:   opts.Notifier,
		status:     status,
		staleAfter: opts.StaleAfter,
	}
}

// ScrapeOptions selects what Scrape harvests and where it writes.
type ScrapeOptions struct {
	Lang      string
	Download  bool
	DataDir   string
	AssetsDir string
	// Tables overrides the default resource list. The language table is
	// always added.
	Tables []string
}

// DownloadCounts mirrors the counters of a downloader.Report.
type DownloadCounts struct {
	Total      int   `json:"total"`
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// ScrapeSummary is persisted as summary.json.
type ScrapeSummary struct {
	Lang             string            `json:"lang"`
	Tables           map[string]int    `json:"tables"`
	FailedTables     map[string]string `json:"failed_tables"`
	ImageURLCount    int               `json:"image_url_count"`
	AssetsDownloaded bool              `json:"assets_downloaded"`
	Downloads        *DownloadCounts   `json:"downloads,omitempty"`

	Report *downloader.Report `json:"-"`
}

// Scrape harvests the resources of one language, persists every table and
// the asset manifest, and optionally downloads the assets.
func (r *Runner) Scrape(ctx context.Context, opts ScrapeOptions) (summary *ScrapeSummary, err error) {
	lang := strings.ToUpper(strings.TrimSpace(opts.Lang))
	if lang == "" {
		return nil, &config.ConfigurationError{Field: "lang", Reason: "must not be empty"}
	}

	if r.fetcher == nil || r.derive == nil {
		return nil, &config.ConfigurationError{Field: "runner", Reason: "scrape needs a fetcher and a derive function"}
	}

	ctx = logctx.WithAttrs(ctx, "lang", lang)
	logger := logctx.LoggerFromContext(ctx)

	r.status.Begin(logctx.RunIDFromContext(ctx))
	defer func() { r.status.Finish(err) }()

	resources := opts.Tables
	if len(resources) == 0 {
		resources = catalog.DefaultResources()
	}

	resources = append(append([]string(nil), resources...), catalog.LanguageResource(lang))

	r.status.Enter(PhaseHarvesting, lang, len(harvest.UniqueNames(resources)))

	result := harvest.NewHarvester(r.fetcher, r.harvestOpt).Harvest(ctx, resources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := storage.NewStore(opts.DataDir)

	for _, entry := range result.Entries() {
		if !entry.OK() {
			continue
		}

		if err := store.SaveTable(lang, entry.Name, entry.Records); err != nil {
			return nil, fmt.Errorf("failed to save table %s: %w", entry.Name, err)
		}
	}

	urls := r.derive(result.Tables()).Sorted()

	if err := store.SaveManifest(lang, urls); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	logger.Info("saved manifest", "urls", len(urls), "path", store.ManifestPath(lang))

	summary = &ScrapeSummary{
		Lang:             lang,
		Tables:           result.Counts(),
		FailedTables:     map[string]string{},
		ImageURLCount:    len(urls),
		AssetsDownloaded: opts.Download,
	}

	for name, ferr := range result.Errors() {
		summary.FailedTables[name] = ferr.Error()
	}

	var downloadErr error

	if opts.Download {
		report, err := r.downloadLang(ctx, lang, urls, opts.AssetsDir)
		if report == nil {
			return nil, err
		}

		downloadErr = err

		if err := store.SaveDownloaded(lang, report.DownloadedPaths()); err != nil {
			return nil, fmt.Errorf("failed to save downloaded list: %w", err)
		}

		if err := storage.SaveJSON(storage.FailureLogPath(store.Dir(lang), lang), report.Failures); err != nil {
			return nil, fmt.Errorf("failed to save failures: %w", err)
		}

		summary.Report = report
		summary.Downloads = countsOf(report)
	}

	if err := store.SaveSummary(lang, summary); err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}

	if downloadErr != nil {
		return summary, downloadErr
	}

	r.notify(ctx, scrapeMessage(summary))

	logger.Info("scrape finished", "tables", len(summary.Tables), "failed_tables", len(summary.FailedTables), "urls", len(urls))

	return summary, nil
}

// DownloadOptions selects the languages Download processes.
type DownloadOptions struct {
	Langs     []string
	DataDir   string
	AssetsDir string
	// FailureLog, when set, receives the failures of each language. A
	// directory or extension-less path gets <LANG>_failures.json inside.
	FailureLog string
	// Filter keeps only URLs containing this substring.
	Filter string
}

// LangSummary is the outcome of downloading one language.
type LangSummary struct {
	Lang   string
	Report *downloader.Report
}

// Download fetches the assets listed in previously scraped manifests. Every
// manifest is checked before any request is made.
func (r *Runner) Download(ctx context.Context, opts DownloadOptions) (summaries []LangSummary, err error) {
	langs := make([]string, 0, len(opts.Langs))

	for _, l := range opts.Langs {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			langs = append(langs, l)
		}
	}

	langs = harvest.UniqueNames(langs)
	if len(langs) == 0 {
		return nil, &config.ConfigurationError{Field: "langs", Reason: "at least one language is required"}
	}

	store := storage.NewStore(opts.DataDir)

	for _, lang := range langs {
		if err := store.CheckManifest(lang); err != nil {
			return nil, err
		}
	}

	r.status.Begin(logctx.RunIDFromContext(ctx))
	defer func() { r.status.Finish(err) }()

	for _, lang := range langs {
		lctx := logctx.WithAttrs(ctx, "lang", lang)
		logger := logctx.LoggerFromContext(lctx)

		urls, err := store.LoadManifest(lang)
		if err != nil {
			return summaries, err
		}

		if opts.Filter != "" {
			urls = filterURLs(urls, opts.Filter)
			logger.Info("filtered manifest", "filter", opts.Filter, "urls", len(urls))
		}

		report, err := r.downloadLang(lctx, lang, urls, opts.AssetsDir)
		if report == nil {
			return summaries, err
		}

		summaries = append(summaries, LangSummary{Lang: lang, Report: report})

		if opts.FailureLog != "" {
			path := storage.FailureLogPath(opts.FailureLog, lang)

			if err := storage.SaveJSON(path, report.Failures); err != nil {
				return summaries, fmt.Errorf("failed to save failure log: %w", err)
			}

			logger.Info("saved failure log", "path", path, "failures", len(report.Failures))
		}

		if err != nil {
			return summaries, err
		}

		r.notify(lctx, downloadMessage(lang, report))
	}

	return summaries, nil
}

// downloadLang removes stale partial files and downloads urls into the
// language's asset root. A nil report means the run was aborted.
func (r *Runner) downloadLang(ctx context.Context, lang string, urls []string, assetsDir string) (*downloader.Report, error) {
	logger := logctx.LoggerFromContext(ctx)
	root := filepath.Join(assetsDir, lang)

	if n, err := cleanup.DeleteStalePartials(ctx, root, r.staleAfter); err != nil {
		var storageErr *storage.StorageError
		if errors.As(err, &storageErr) {
			return nil, err
		}

		logger.Warn("failed to clean stale partial files", "root", root, "err", err)
	} else if n > 0 {
		logger.Info("cleaned stale partial files", "root", root, "deleted", n)
	}

	r.status.Enter(PhaseDownloading, lang, len(downloader.UniqueURLs(urls)))

	report, err := r.engine.DownloadAll(ctx, urls, root)
	if report != nil {
		r.status.Report(report)
	}

	return report, err
}

func (r *Runner) notify(ctx context.Context, msg string) {
	if r.notifier == nil {
		return
	}

	if err := r.notifier.Notify(ctx, msg); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}

func filterURLs(urls []string, substr string) []string {
	out := make([]string, 0, len(urls))

	for _, u := range urls {
		if strings.Contains(u, substr) {
			out = append(out, u)
		}
	}

	return out
}

func countsOf(r *downloader.Report) *DownloadCounts {
	return &DownloadCounts{
		Total:      r.Total,
		Downloaded: r.Downloaded,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Bytes:      r.Bytes,
	}
}

func scrapeMessage(s *ScrapeSummary) string {
	msg := fmt.Sprintf("✅ Scrape finished for %s: %d tables, %d failed tables, %d asset URLs",
		s.Lang, len(s.Tables), len(s.FailedTables), s.ImageURLCount)

	if s.Downloads != nil {
		msg += fmt.Sprintf(" (downloaded=%d skipped=%d failed=%d)", s.Downloads.Downloaded, s.Downloads.Skipped, s.Downloads.Failed)
	}

	return msg
}

func downloadMessage(lang string, r *downloader.Report) string {
	icon := "✅"
	if r.Failed > 0 {
		icon = "⚠️"
	}

	return fmt.Sprintf("%s Download finished for %s: total=%d downloaded=%d skipped=%d failed=%d",
		icon, lang, r.Total, r.Downloaded, r.Skipped, r.Failed)
}
