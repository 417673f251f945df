package httpapi

import (
	"errors"
	"sync"

	"duat/internal/domain"
	"duat/internal/scan"
)

// ErrScanInProgress is returned when a folder scan is requested while
// another is still running.
var ErrScanInProgress = errors.New("parsing already in progress")

// Progress is the polled state of the background folder scan.
type Progress struct {
	InProgress   bool    `json:"in_progress"`
	Progress     float64 `json:"progress"`
	CurrentFile  string  `json:"current_file"`
	TotalFiles   int     `json:"total_files"`
	RecordsCount int     `json:"records_count"`
	MaxWeek      int     `json:"max_week"`
	Error        string  `json:"error,omitempty"`
}

// Results is the outcome of the last completed folder scan.
type Results struct {
	Success      bool                    `json:"success"`
	Folder       string                  `json:"folder"`
	TotalRecords int                     `json:"total_records"`
	MaxWeek      int                     `json:"max_week"`
	Records      []domain.DeliveryRecord `json:"records"`
	Skipped      []scan.Skip             `json:"skipped"`
}

// Tracker holds the state of at most one background delivery scan.
type Tracker struct {
	mu      sync.Mutex
	state   Progress
	folder  string
	records []domain.DeliveryRecord
	skipped []scan.Skip
	done    chan struct{}
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	done := make(chan struct{})
	close(done)
	return &Tracker{records: []domain.DeliveryRecord{}, skipped: []scan.Skip{}, done: done}
}

// Begin claims the tracker for a scan of folder over total files.
func (t *Tracker) Begin(folder string, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.InProgress {
		return ErrScanInProgress
	}
	t.state = Progress{InProgress: true, TotalFiles: total}
	t.folder = folder
	t.records = []domain.DeliveryRecord{}
	t.skipped = []scan.Skip{}
	t.done = make(chan struct{})
	return nil
}

// Update is a scan.Progress callback.
func (t *Tracker) Update(name string, fraction float64) {
	t.mu.Lock()
	t.state.CurrentFile = name
	t.state.Progress = fraction
	t.mu.Unlock()
}

// Finish releases the tracker with the scan's outcome.
func (t *Tracker) Finish(records []domain.DeliveryRecord, skipped []scan.Skip, maxWeek int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = records
	t.skipped = skipped
	t.state.RecordsCount = len(records)
	t.state.MaxWeek = maxWeek
	if err != nil {
		t.state.Error = err.Error()
	} else {
		t.state.Progress = 1.0
	}
	t.state.InProgress = false
	close(t.done)
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Results returns the last completed scan, or ErrScanInProgress.
func (t *Tracker) Results() (Results, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.InProgress {
		return Results{}, ErrScanInProgress
	}
	return Results{
		Success:      t.state.Error == "",
		Folder:       t.folder,
		TotalRecords: len(t.records),
		MaxWeek:      t.state.MaxWeek,
		Records:      t.records,
		Skipped:      t.skipped,
	}, nil
}

// Done is closed when the current scan finishes; it is already closed when
// the tracker is idle.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
