package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/asset_harvester/internal/downloader"
	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/run"
)

const previewFailures = 10

func runDownload(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("download", `Usage: asset_harvester download [options] [LANG ...]

Download all assets listed in <data-dir>/<LANG>/image_urls.json into
<assets-dir>/<LANG>/. Existing files are skipped unless -force is set.

Options:`)

	dl := a.downloadOptions()

	langs := fs.String("langs", "EN", "Comma separated languages to download (e.g. EN,PT,ES)")
	dataDir := fs.String("data-dir", a.cfg.DataDir, "Base directory containing <LANG>/image_urls.json files")
	assetsDir := fs.String("assets-dir", a.cfg.AssetsDir, "Base directory to store downloaded assets")
	bindDownloadFlags(fs, &dl, "parallel")
	failureLog := fs.String("failure-log", "", "Path to write the JSON list of failed downloads (a directory gets <LANG>_failures.json)")
	filter := fs.String("filter", "", "Only download URLs containing this substring")

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := validateDownloadFlags(dl); err != nil {
		return err
	}

	selected := splitList(*langs)
	if fs.NArg() > 0 {
		if isFlagSet(fs, "langs") {
			selected = append(selected, fs.Args()...)
		} else {
			selected = fs.Args()
		}
	}

	r := a.runner(nil, harvest.Options{}, dl)

	summaries, err := r.Download(ctx, run.DownloadOptions{
		Langs:      selected,
		DataDir:    *dataDir,
		AssetsDir:  *assetsDir,
		FailureLog: *failureLog,
		Filter:     *filter,
	})

	if len(summaries) > 0 {
		fmt.Fprintln(a.stdout, "\nSummary:")

		for _, s := range summaries {
			printReport(a, s.Lang, s.Report)
		}
	}

	return err
}

// bindDownloadFlags registers the engine settings on fs, defaulting to dl.
// parallelName names the concurrency flag, which differs per command.
func bindDownloadFlags(fs *flag.FlagSet, dl *downloader.Options, parallelName string) {
	fs.DurationVar(&dl.Timeout, "timeout", dl.Timeout, "HTTP timeout per request")
	fs.IntVar(&dl.MaxRetries, "retries", dl.MaxRetries, "Retries per URL on failure")
	fs.DurationVar(&dl.Backoff, "backoff", dl.Backoff, "Backoff multiplied by the attempt number between retries")
	fs.DurationVar(&dl.Delay, "delay", dl.Delay, "Delay between requests")
	fs.BoolVar(&dl.Force, "force", dl.Force, "Re-download and overwrite existing files")
	fs.IntVar(&dl.Parallel, parallelName, dl.Parallel, "Concurrent downloads")
}

func validateDownloadFlags(dl downloader.Options) error {
	if dl.MaxRetries < 0 {
		return &argumentError{msg: fmt.Sprintf("-retries must not be negative, got %d", dl.MaxRetries)}
	}

	return nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false

	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})

	return found
}

func printReport(a *app, lang string, r *downloader.Report) {
	fmt.Fprintf(a.stdout, "%s: total=%d downloaded=%d skipped=%d failed=%d (%s)\n",
		lang, r.Total, r.Downloaded, r.Skipped, r.Failed, humanize.Bytes(uint64(r.Bytes)))

	shown, more := r.Preview(previewFailures)

	for _, f := range shown {
		fmt.Fprintf(a.stdout, "  - %s -> %s\n", f.URL, f.Error)
	}

	if more > 0 {
		fmt.Fprintf(a.stdout, "  ... %d more failures\n", more)
	}
}
