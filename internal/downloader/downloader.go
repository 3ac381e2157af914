// Package downloader fetches asset URLs to local files with skip-existing,
// bounded retries and a per-run report.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/asset_harvester/internal/downloader/progress"
	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/storage"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

const (
	progressEvery    = 500
	progressInterval = 10 * 1024 * 1024 // 10MB
)

// Options configures an Engine.
type Options struct {
	// Timeout bounds a single request.
	// Default: 30s
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int

	// Backoff is multiplied by the number of attempts already made before
	// each retry.
	Backoff time.Duration

	// Delay pauses between consecutive URLs.
	Delay time.Duration

	// Force re-downloads files that already exist.
	Force bool

	// Parallel is the number of concurrent downloads.
	// Default: 1
	Parallel int

	// OnResult is called once per processed URL. It must be safe for
	// concurrent use when Parallel > 1.
	OnResult func(Result)

	// Transport is the base round tripper. Default: http.DefaultTransport.
	Transport http.RoundTripper

	Telemetry *telemetry.Telemetry
}

// Engine downloads asset URLs.
type Engine struct {
	opts       Options
	httpClient *http.Client
	locks      *keyedMutex

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}

	return &Engine{
		opts: opts,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: telemetry.Transport(opts.Transport),
		},
		locks: newKeyedMutex(),
		sleep: sleepContext,
	}
}

// DownloadAll processes urls in order and writes them under destRoot.
//
// Per-URL failures end up in the report. A local write failure aborts the
// run and is returned without a report. When ctx is cancelled the report
// covers the URLs processed so far and ctx.Err() is returned alongside it.
func (e *Engine) DownloadAll(ctx context.Context, urls []string, destRoot string) (*Report, error) {
	logger := logctx.LoggerFromContext(ctx)

	urls = UniqueURLs(urls)

	logger.Info("starting downloads", "urls", len(urls), "dest", destRoot, "parallel", e.opts.Parallel)

	var (
		slots      = make([]Result, len(urls))
		done       = make([]bool, len(urls))
		processed  atomic.Int64
		sequential = e.opts.Parallel == 1
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)

dispatch:
	for i, u := range urls {
		// Parallel runs space out dispatches; sequential runs pause in the worker
		// once the previous URL is done.
		if !sequential && i > 0 && e.opts.Delay > 0 {
			if err := e.sleep(gctx, e.opts.Delay); err != nil {
				break dispatch
			}
		}

		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			res, err := e.process(gctx, u, destRoot)
			if err != nil {
				return err
			}

			slots[i] = res
			done[i] = true

			if e.opts.OnResult != nil {
				e.opts.OnResult(res)
			}

			if n := processed.Add(1); n%progressEvery == 0 {
				logger.Info("download progress", "processed", n, "total", len(urls))
			}

			if sequential && i < len(urls)-1 && e.opts.Delay > 0 {
				// A cancelled wait stops the dispatcher through gctx.
				_ = e.sleep(gctx, e.opts.Delay)
			}

			return nil
		})
	}

	err := g.Wait()

	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		logger.Error("aborting downloads", "err", err)
		e.opts.Telemetry.RecordSystemError(ctx, "downloader", storageErr.Op)

		return nil, fmt.Errorf("failed to download assets: %w", err)
	}

	results := make([]Result, 0, len(urls))

	for i := range slots {
		if done[i] {
			results = append(results, slots[i])
		}
	}

	report := NewReport(results)

	logger.Info("downloads finished",
		"total", report.Total,
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"bytes", humanize.Bytes(uint64(report.Bytes)),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}

	return report, nil
}

// process takes one URL to a terminal outcome. The returned error is fatal:
// a storage failure or a cancelled context.
func (e *Engine) process(ctx context.Context, rawURL, destRoot string) (Result, error) {
	res := Result{URL: rawURL}

	dest, err := Destination(destRoot, rawURL)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = &DownloadError{URL: rawURL, Err: err}

		return res, nil
	}

	res.Path = dest

	unlock := e.locks.Lock(dest)
	defer unlock()

	var fatal error

	err = e.opts.Telemetry.InstrumentDownload(ctx, func(ctx context.Context) (string, int64, error) {
		res, fatal = e.download(ctx, res)
		if fatal != nil {
			return "error", 0, fatal
		}

		return string(res.Outcome), res.Bytes, res.Err
	})
	if fatal != nil {
		return res, fatal
	}

	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to download asset",
			"url", rawURL, "attempts", res.Attempts, "err", err)
	}

	return res, nil
}

func (e *Engine) download(ctx context.Context, res Result) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	if !e.opts.Force {
		exists, err := storage.Exists(res.Path)
		if err != nil {
			return res, err
		}

		if exists {
			logger.Debug("asset already exists", "path", res.Path)

			res.Outcome = OutcomeSkippedExists

			return res, nil
		}
	}

	var (
		lastStatus int
		lastErr    error
	)

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.opts.Backoff*time.Duration(attempt)); err != nil {
				return res, err
			}
		}

		res.Attempts++

		data, status, err := e.fetch(ctx, res.URL)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}

			e.opts.Telemetry.RecordDownloadAttempt(ctx, "error")

			logger.Debug("download attempt failed", "url", res.URL, "attempt", res.Attempts, "err", err)

			lastStatus, lastErr = status, err

			continue
		}

		e.opts.Telemetry.RecordDownloadAttempt(ctx, "success")

		if err := storage.WriteFileAtomic(res.Path, data); err != nil {
			return res, err
		}

		logger.Debug("downloaded asset", "path", res.Path, "size", humanize.Bytes(uint64(len(data))))

		res.Outcome = OutcomeDownloaded
		res.Bytes = int64(len(data))

		return res, nil
	}

	res.Outcome = OutcomeFailed
	res.Err = &DownloadError{URL: res.URL, Attempts: res.Attempts, StatusCode: lastStatus, Err: lastErr}

	return res, nil
}

// fetch performs one GET. Anything but 200 is an error.
func (e *Engine) fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	logger := logctx.LoggerFromContext(ctx)

	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, func(read, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"url", rawURL,
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "url", rawURL, "downloaded", humanize.Bytes(uint64(read)))
		}
	})

	data, err := io.ReadAll(pr)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return data, resp.StatusCode, nil
}

// Destination maps an asset URL to its file under root: the URL path without
// its leading slash. URLs without a path, or whose path would leave root,
// are rejected.
func Destination(root, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDestination, u.Scheme)
	}

	// Percent-escapes are kept so a%20b.png stays a single file named as in the URL.
	rel := strings.TrimLeft(u.EscapedPath(), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidDestination)
	}

	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasSuffix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, u.EscapedPath())
	}

	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// UniqueURLs drops repeated URLs. The first occurrence wins and order is kept.
// Empty strings are kept once so they are reported as failures.
func UniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))

	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}
		out = append(out, u)
	}

	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()

	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}

	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--

		if m.refs == 0 {
			delete(k.locks, key)
		}

		k.mu.Unlock()
	}
}
