package run

import (
	"sync"
	"time"

	"github.com/italolelis/asset_harvester/internal/downloader"
)

// Phases reported by Status.
const (
	PhaseIdle        = "idle"
	PhaseHarvesting  = "harvesting"
	PhaseDownloading = "downloading"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// Status tracks the progress of the current run. It is safe for concurrent
// use; the status server reads it while the runner writes.
type Status struct {
	mu sync.RWMutex

	runID      string
	phase      string
	lang       string
	processed  int
	total      int
	lastReport *downloader.Report
	startedAt  time.Time
	updatedAt  time.Time
	err        string
}

// Snapshot is a point-in-time copy of Status.
type Snapshot struct {
	RunID      string             `json:"run_id,omitempty"`
	Phase      string             `json:"phase"`
	Lang       string             `json:"lang,omitempty"`
	Processed  int                `json:"processed"`
	Total      int                `json:"total"`
	LastReport *downloader.Report `json:"last_report,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Error      string             `json:"error,omitempty"`
}

func NewStatus() *Status {
	return &Status{phase: PhaseIdle}
}

// Begin starts tracking a new run.
func (s *Status) Begin(runID string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	s.runID = runID
	s.phase = PhaseIdle
	s.lang = ""
	s.processed, s.total = 0, 0
	s.lastReport = nil
	s.err = ""
	s.startedAt, s.updatedAt = now, now
}

// Enter moves to phase for lang, expecting total items.
func (s *Status) Enter(phase, lang string, total int) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = phase
	s.lang = lang
	s.processed = 0
	s.total = total
	s.updatedAt = time.Now()
}

// Advance counts one processed URL.
func (s *Status) Advance(downloader.Result) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.updatedAt = time.Now()
}

// Report stores the report of the language that just finished.
func (s *Status) Report(r *downloader.Report) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastReport = r
	s.updatedAt = time.Now()
}

// Finish ends the run, failed when err is not nil.
func (s *Status) Finish(err error) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseDone
	if err != nil {
		s.phase = PhaseFailed
		s.err = err.Error()
	}

	s.updatedAt = time.Now()
}

func (s *Status) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{Phase: PhaseIdle}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		RunID:      s.runID,
		Phase:      s.phase,
		Lang:       s.lang,
		Processed:  s.processed,
		Total:      s.total,
		LastReport: s.lastReport,
		StartedAt:  s.startedAt,
		UpdatedAt:  s.updatedAt,
		Error:      s.err,
	}
}
