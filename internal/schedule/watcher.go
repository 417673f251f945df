package schedule

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"duat/internal/scan"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher triggers a rescan when report documents in the folder are created,
// written or renamed. Bursts of events are collapsed into one rescan once the
// folder has been quiet for the debounce interval.
type Watcher struct {
	rescanner *Rescanner
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	pending bool
	lastAt  time.Time
}

// NewWatcher returns a watcher for r.Folder. A zero debounce uses 2s.
func NewWatcher(r *Rescanner, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{rescanner: r, debounce: debounce, logger: r.logger()}
}

// IsReportFile reports whether name looks like a daily report document and
// not an editor lock file.
func IsReportFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		return false
	}
	ok, err := filepath.Match(scan.ReportGlob, base)
	return err == nil && ok
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating folder watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.rescanner.Folder); err != nil {
		return fmt.Errorf("watching %s: %w", w.rescanner.Folder, err)
	}
	w.logger.Info("watching report folder", zap.String("folder", w.rescanner.Folder))

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("folder watcher error", zap.Error(err))

		case now := <-tick.C:
			if w.due(now) {
				w.rescanner.RescanAndNotify(ctx, "folder change")
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsReportFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	w.logger.Debug("report file changed", zap.String("file", filepath.Base(event.Name)), zap.String("op", event.Op.String()))
	w.mark(time.Now())
}

func (w *Watcher) mark(at time.Time) {
	w.mu.Lock()
	w.pending = true
	w.lastAt = at
	w.mu.Unlock()
}

// due clears and reports a pending rescan whose last event is older than the
// debounce interval.
func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending || now.Sub(w.lastAt) < w.debounce {
		return false
	}
	w.pending = false
	return true
}
