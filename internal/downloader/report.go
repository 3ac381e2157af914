package downloader

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outcome is the terminal state of one asset URL.
type Outcome string

const (
	OutcomeDownloaded    Outcome = "downloaded"
	OutcomeSkippedExists Outcome = "skipped-exists"
	OutcomeFailed        Outcome = "failed"
)

// Result is the outcome of processing one URL.
type Result struct {
	URL      string
	Path     string // Destination on disk, empty when the URL had none
	Outcome  Outcome
	Attempts int
	Bytes    int64
	Err      error // Set when Outcome is failed
}

// Failure is a failed URL with its last error message. It is encoded as a
// two element JSON array: ["url", "error"].
type Failure struct {
	URL   string
	Error string
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.URL, f.Error})
}

func (f *Failure) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode failure: %w", err)
	}

	if len(pair) != 2 {
		return errors.New("decode failure: expected [url, error] pair")
	}

	f.URL, f.Error = pair[0], pair[1]

	return nil
}

// Report aggregates the results of a run. Downloaded + Skipped + Failed
// always equals Total.
type Report struct {
	Total      int       `json:"total"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Failures   []Failure `json:"failures"`

	paths []string
}

// NewReport folds results, in order, into a Report.
func NewReport(results []Result) *Report {
	r := &Report{Failures: []Failure{}, paths: []string{}}

	for _, res := range results {
		r.Total++

		switch res.Outcome {
		case OutcomeDownloaded:
			r.Downloaded++
			r.Bytes += res.Bytes
			r.paths = append(r.paths, res.Path)
		case OutcomeSkippedExists:
			r.Skipped++
		default:
			r.Failed++

			msg := "unknown error"
			if res.Err != nil {
				msg = res.Err.Error()
			}

			r.Failures = append(r.Failures, Failure{URL: res.URL, Error: msg})
		}
	}

	return r
}

// Preview returns at most limit failures and how many were left out.
func (r *Report) Preview(limit int) ([]Failure, int) {
	if limit < 0 {
		limit = 0
	}

	if len(r.Failures) <= limit {
		return r.Failures, 0
	}

	return r.Failures[:limit], len(r.Failures) - limit
}

// DownloadedPaths lists the files written during the run, in input order.
func (r *Report) DownloadedPaths() []string {
	return r.paths
}
