// Package schedule runs unattended folder rescans: on a cron schedule, or
// when report files appear in the watched folder.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"duat/internal/delivery"
	"duat/internal/domain"
	"duat/internal/manpower"
	"duat/internal/storage/sqlite"

	"go.uber.org/zap"
)

// Notifier receives the text summary of each rescan.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ScanResult tracks the outcome of one rescan of both record streams.
type ScanResult struct {
	Folder          string
	Files           int
	DeliveryRecords int
	MaxWeek         int
	ShiftRecords    int
	Jobs            int
	Skipped         int
	Pruned          int64
	Errors          []string
}

// Rescanner parses a report folder, stores the runs and reports a summary.
// Runs are serialised; a rescan requested while one is active waits for it.
type Rescanner struct {
	Folder    string
	Keywords  []string
	DB        *sql.DB  // optional
	Notifier  Notifier // optional
	Retention time.Duration
	Logger    *zap.Logger

	mu sync.Mutex
}

func (r *Rescanner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Rescan runs the delivery and manpower scanners over the folder. Storage
// failures are collected in the result rather than aborting the rescan. The
// returned error is non-nil only when ctx is cancelled.
func (r *Rescanner) Rescan(ctx context.Context) (ScanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger()
	result := ScanResult{Folder: r.Folder}

	started := time.Now()
	dp := delivery.NewDailyReportParser(r.Folder, delivery.WithLogger(logger), delivery.WithKeywords(r.Keywords))
	files := dp.ReportFiles()
	result.Files = len(files)

	records, err := dp.ProcessAll(ctx, nil)
	if err != nil {
		return result, err
	}
	result.DeliveryRecords = len(records)
	result.MaxWeek = dp.MaxWeek()
	result.Skipped = len(dp.Skipped())
	r.storeDelivery(&result, sqlite.ScanRun{
		Folder:     r.Folder,
		Files:      len(files),
		Processed:  len(files) - len(dp.Skipped()),
		MaxWeek:    dp.MaxWeek(),
		Skipped:    dp.Skipped(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, records)

	started = time.Now()
	mp := manpower.NewManpowerParser(r.Folder, manpower.WithLogger(logger))
	shifts, err := mp.ProcessAll(ctx)
	if err != nil {
		return result, err
	}
	result.ShiftRecords = len(shifts)
	result.Jobs = domain.TotalJobs(shifts)
	r.storeManpower(&result, sqlite.ScanRun{
		Folder:     r.Folder,
		Files:      len(files),
		Processed:  len(files) - len(mp.Skipped()),
		Skipped:    mp.Skipped(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, shifts)

	r.prune(&result)
	return result, nil
}

func (r *Rescanner) storeDelivery(result *ScanResult, run sqlite.ScanRun, records []domain.DeliveryRecord) {
	if r.DB == nil {
		return
	}
	if _, err := sqlite.SaveDeliveryRun(r.DB, run, records); err != nil {
		r.logger().Error("failed to store delivery run", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("storing delivery run: %v", err))
	}
}

func (r *Rescanner) storeManpower(result *ScanResult, run sqlite.ScanRun, records []domain.ShiftRecord) {
	if r.DB == nil {
		return
	}
	if _, err := sqlite.SaveManpowerRun(r.DB, run, records); err != nil {
		r.logger().Error("failed to store manpower run", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("storing manpower run: %v", err))
	}
}

func (r *Rescanner) prune(result *ScanResult) {
	if r.DB == nil || r.Retention <= 0 {
		return
	}
	n, err := sqlite.DeleteRunsBefore(r.DB, time.Now().Add(-r.Retention))
	if err != nil {
		r.logger().Error("failed to prune scan runs", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("pruning runs: %v", err))
		return
	}
	result.Pruned = n
}

// RescanAndNotify rescans, logs the summary and posts it when a notifier is
// configured.
func (r *Rescanner) RescanAndNotify(ctx context.Context, trigger string) {
	logger := r.logger()
	result, err := r.Rescan(ctx)
	if err != nil {
		logger.Info("rescan interrupted", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	summary := FormatScanSummary(result)
	logger.Info("rescan complete", zap.String("trigger", trigger), zap.String("summary", summary))

	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Notify(ctx, fmt.Sprintf("Rescan (%s) complete: %s", trigger, summary)); err != nil {
		logger.Warn("rescan post error", zap.Error(err))
	}
}

// FormatScanSummary returns a human-readable summary of a ScanResult.
func FormatScanSummary(result ScanResult) string {
	if result.Files == 0 {
		msg := fmt.Sprintf("No daily reports found in %s.", result.Folder)
		if len(result.Errors) > 0 {
			msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
		}
		return msg
	}

	var details []string
	details = append(details, fmt.Sprintf("%d delivery records", result.DeliveryRecords))
	details = append(details, fmt.Sprintf("%d shift records", result.ShiftRecords))
	details = append(details, fmt.Sprintf("%d jobs", result.Jobs))
	if result.Skipped > 0 {
		details = append(details, fmt.Sprintf("%d skipped", result.Skipped))
	}
	if result.Pruned > 0 {
		details = append(details, fmt.Sprintf("%d old runs pruned", result.Pruned))
	}
	msg := fmt.Sprintf("Scanned %d reports (latest WK%d): %s",
		result.Files, result.MaxWeek, strings.Join(details, ", "))
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}
