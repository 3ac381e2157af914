package run

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/asset_harvester/internal/catalog"
	"github.com/italolelis/asset_harvester/internal/config"
	"github.com/italolelis/asset_harvester/internal/downloader"
	"github.com/italolelis/asset_harvester/internal/supabase"
)

// backend serves both the REST tables and the asset files.
type backend struct {
	*httptest.Server

	mu          sync.Mutex
	assetHits   int
	tableHits   int
	missingPath string
}

var remoteTables = map[string]string{
	"RoleConfig":         `[{"id":1},{"id":2}]`,
	"SkillConfig":        `[{"skillid":11}]`,
	"LanguagePackage_EN": `[{"key":"LC_1","value":"Hi"}]`,
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{missingPath: "/assets/resources/textures/hero/circleherohead/CircleHeroHead_20.png"}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Close)

	return b
}

func (b *backend) handle(w http.ResponseWriter, r *http.Request) {
	if name, ok := strings.CutPrefix(r.URL.Path, "/rest/v1/"); ok {
		b.mu.Lock()
		b.tableHits++
		b.mu.Unlock()

		body, found := remoteTables[name]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))

			return
		}

		var rows []json.RawMessage
		_ = json.Unmarshal([]byte(body), &rows)

		from, _ := strconv.Atoi(strings.SplitN(r.Header.Get("Range"), "-", 2)[0])
		if from > len(rows) {
			from = len(rows)
		}

		_ = json.NewEncoder(w).Encode(rows[from:])

		return
	}

	b.mu.Lock()
	b.assetHits++
	b.mu.Unlock()

	if r.URL.Path == b.missingPath {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	_, _ = w.Write([]byte("img"))
}

func (b *backend) hits() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tableHits, b.assetHits
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, content)

	return n.err
}

func newTestRunner(b *backend, n *recordingNotifier, status *Status) *Runner {
	opts := Options{
		Fetcher:  supabase.NewClient(supabase.Options{BaseURL: b.URL, APIKey: "key"}),
		Derive:   catalog.Deriver{AssetBase: b.URL}.Derive,
		Download: downloader.Options{MaxRetries: 0},
		Status:   status,
	}

	if n != nil {
		opts.Notifier = n
	}

	return New(opts)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestScrape_EndToEnd(t *testing.T) {
	b := newBackend(t)
	n := &recordingNotifier{}
	status := NewStatus()
	dataDir, assetsDir := t.TempDir(), t.TempDir()

	r := newTestRunner(b, n, status)

	summary, err := r.Scrape(context.Background(), ScrapeOptions{
		Lang:      "en",
		Download:  true,
		DataDir:   dataDir,
		AssetsDir: assetsDir,
		Tables:    []string{"RoleConfig", "SkillConfig", "MissingConfig", "RoleConfig"},
	})
	require.NoError(t, err)

	assert.Equal(t, "EN", summary.Lang)
	assert.Equal(t, map[string]int{"RoleConfig": 2, "SkillConfig": 1, "LanguagePackage_EN": 1}, summary.Tables)
	assert.Contains(t, summary.FailedTables, "MissingConfig")
	assert.Equal(t, 8, summary.ImageURLCount)
	require.NotNil(t, summary.Downloads)
	assert.Equal(t, DownloadCounts{Total: 8, Downloaded: 7, Failed: 1, Bytes: 21}, *summary.Downloads)

	langDir := filepath.Join(dataDir, "EN")

	assert.FileExists(t, filepath.Join(langDir, "tables", "RoleConfig.json"))
	assert.FileExists(t, filepath.Join(langDir, "tables", "LanguagePackage_EN.json"))
	assert.NoFileExists(t, filepath.Join(langDir, "tables", "MissingConfig.json"))

	var manifest []string
	readJSON(t, filepath.Join(langDir, "image_urls.json"), &manifest)
	assert.Len(t, manifest, 8)
	assert.IsNonDecreasing(t, manifest)

	var downloaded []string
	readJSON(t, filepath.Join(langDir, "downloaded_images.json"), &downloaded)
	assert.Len(t, downloaded, 7)

	var failures [][]string
	readJSON(t, filepath.Join(langDir, "EN_failures.json"), &failures)
	require.Len(t, failures, 1)
	assert.Equal(t, []string{b.URL + b.missingPath, "status 404"}, failures[0])

	var persisted map[string]any
	readJSON(t, filepath.Join(langDir, "summary.json"), &persisted)
	assert.Equal(t, true, persisted["assets_downloaded"])
	assert.EqualValues(t, 8, persisted["image_url_count"])

	assert.FileExists(t, filepath.Join(assetsDir, "EN", "assets", "resources", "textures", "dynamis", "card", "ItemIcon_10000.png"))

	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "Scrape finished for EN")

	snap := status.Snapshot()
	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Equal(t, 8, snap.Processed)
	require.NotNil(t, snap.LastReport)
	assert.Equal(t, 7, snap.LastReport.Downloaded)
}

func TestScrape_ManifestOnly(t *testing.T) {
	b := newBackend(t)
	dataDir := t.TempDir()

	r := newTestRunner(b, nil, nil)

	summary, err := r.Scrape(context.Background(), ScrapeOptions{Lang: "EN", DataDir: dataDir, AssetsDir: t.TempDir()})
	require.NoError(t, err)

	assert.False(t, summary.AssetsDownloaded)
	assert.Nil(t, summary.Downloads)
	assert.NoFileExists(t, filepath.Join(dataDir, "EN", "downloaded_images.json"))

	_, assetHits := b.hits()
	assert.Zero(t, assetHits)

	// Default catalog plus the language table; only three exist remotely.
	assert.Len(t, summary.Tables, 3)
	assert.Len(t, summary.FailedTables, len(catalog.DefaultResources())-2)
}

func TestScrape_RequiresLang(t *testing.T) {
	r := New(Options{})

	_, err := r.Scrape(context.Background(), ScrapeOptions{})

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "lang", cfgErr.Field)
}

func TestDownload_RerunIsIdempotent(t *testing.T) {
	b := newBackend(t)
	n := &recordingNotifier{err: errors.New("webhook down")}
	dataDir, assetsDir := t.TempDir(), t.TempDir()

	r := newTestRunner(b, n, nil)

	_, err := r.Scrape(context.Background(), ScrapeOptions{Lang: "EN", Download: true, DataDir: dataDir, AssetsDir: assetsDir})
	require.NoError(t, err)

	_, before := b.hits()

	failureDir := filepath.Join(t.TempDir(), "logs")

	summaries, err := r.Download(context.Background(), DownloadOptions{
		Langs:      []string{"en", "EN"},
		DataDir:    dataDir,
		AssetsDir:  assetsDir,
		FailureLog: failureDir,
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	report := summaries[0].Report
	assert.Equal(t, 8, report.Total)
	assert.Equal(t, 7, report.Skipped)
	assert.Equal(t, 1, report.Failed)

	_, after := b.hits()
	assert.Equal(t, before+1, after)

	var failures []downloader.Failure
	readJSON(t, filepath.Join(failureDir, "EN_failures.json"), &failures)
	assert.Len(t, failures, 1)

	assert.Len(t, n.messages, 2)
}

func TestDownload_Filter(t *testing.T) {
	b := newBackend(t)
	dataDir, assetsDir := t.TempDir(), t.TempDir()

	r := newTestRunner(b, nil, nil)

	_, err := r.Scrape(context.Background(), ScrapeOptions{Lang: "EN", DataDir: dataDir, AssetsDir: assetsDir})
	require.NoError(t, err)

	summaries, err := r.Download(context.Background(), DownloadOptions{
		Langs:     []string{"EN"},
		DataDir:   dataDir,
		AssetsDir: assetsDir,
		Filter:    "SkillIcon",
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, 1, summaries[0].Report.Total)
	assert.Equal(t, 1, summaries[0].Report.Downloaded)
}

func TestDownload_MissingManifestBeforeAnyRequest(t *testing.T) {
	b := newBackend(t)
	dataDir := t.TempDir()

	r := newTestRunner(b, nil, nil)

	_, err := r.Scrape(context.Background(), ScrapeOptions{Lang: "EN", DataDir: dataDir, AssetsDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.Download(context.Background(), DownloadOptions{
		Langs:     []string{"EN", "PT"},
		DataDir:   dataDir,
		AssetsDir: t.TempDir(),
	})

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "manifest", cfgErr.Field)

	_, assetHits := b.hits()
	assert.Zero(t, assetHits)
}

func TestDownload_RequiresLangs(t *testing.T) {
	_, err := New(Options{}).Download(context.Background(), DownloadOptions{Langs: []string{" "}})

	var cfgErr *config.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestStatus_NilIsSafe(t *testing.T) {
	var s *Status

	s.Begin("id")
	s.Enter(PhaseHarvesting, "EN", 3)
	s.Advance(downloader.Result{})
	s.Finish(nil)

	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestStatus_Lifecycle(t *testing.T) {
	s := NewStatus()

	s.Begin("run-1")
	s.Enter(PhaseDownloading, "EN", 2)
	s.Advance(downloader.Result{})
	s.Finish(errors.New("disk full"))

	snap := s.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, 1, snap.Processed)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, "disk full", snap.Error)
}
