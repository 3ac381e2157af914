package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/asset_harvester/internal/config"
)

const (
	tablesDir      = "tables"
	manifestFile   = "image_urls.json"
	downloadedFile = "downloaded_images.json"
	summaryFile    = "summary.json"
	failuresSuffix = "_failures.json"
)

// Store lays out the per-language artifacts of a run under a data directory:
//
//	<dir>/<LANG>/tables/<resource>.json
//	<dir>/<LANG>/image_urls.json
//	<dir>/<LANG>/downloaded_images.json
//	<dir>/<LANG>/summary.json
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the artifacts of lang.
func (s *Store) Dir(lang string) string {
	return filepath.Join(s.dir, lang)
}

func (s *Store) ManifestPath(lang string) string {
	return filepath.Join(s.Dir(lang), manifestFile)
}

func (s *Store) TablePath(lang, resource string) string {
	return filepath.Join(s.Dir(lang), tablesDir, SanitizeResource(resource)+".json")
}

// SaveTable persists one harvested record set.
func (s *Store) SaveTable(lang, resource string, records any) error {
	return SaveJSON(s.TablePath(lang, resource), records)
}

// SaveManifest persists the asset URL list consumed by later download runs.
func (s *Store) SaveManifest(lang string, urls []string) error {
	if urls == nil {
		urls = []string{}
	}

	return SaveJSON(s.ManifestPath(lang), urls)
}

// LoadManifest reads the asset URL list of lang. A missing manifest is a
// configuration error: the caller asked to download a language that was
// never scraped.
func (s *Store) LoadManifest(lang string) ([]string, error) {
	path := s.ManifestPath(lang)

	var urls []string
	if err := LoadJSON(path, &urls); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &config.ConfigurationError{
				Field:  "manifest",
				Reason: fmt.Sprintf("missing %s for %s at %s", manifestFile, lang, path),
				Err:    err,
			}
		}

		return nil, err
	}

	return urls, nil
}

// CheckManifest reports the same error as LoadManifest without decoding.
func (s *Store) CheckManifest(lang string) error {
	path := s.ManifestPath(lang)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &config.ConfigurationError{
				Field:  "manifest",
				Reason: fmt.Sprintf("missing %s for %s at %s", manifestFile, lang, path),
				Err:    err,
			}
		}

		return &StorageError{Op: "stat", Path: path, Err: err}
	}

	return nil
}

func (s *Store) SaveDownloaded(lang string, paths []string) error {
	if paths == nil {
		paths = []string{}
	}

	return SaveJSON(filepath.Join(s.Dir(lang), downloadedFile), paths)
}

func (s *Store) SaveSummary(lang string, summary any) error {
	return SaveJSON(filepath.Join(s.Dir(lang), summaryFile), summary)
}

// FailureLogPath resolves the failures file of lang. A directory, or a path
// without extension, gets a per-language file inside it.
func FailureLogPath(path, lang string) string {
	if path == "" {
		return ""
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, lang+failuresSuffix)
	}

	if filepath.Ext(path) == "" {
		return filepath.Join(path, lang+failuresSuffix)
	}

	return path
}

// SanitizeResource makes a resource name safe to use as a file name.
func SanitizeResource(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
}
