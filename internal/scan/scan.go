// Package scan enumerates daily report files in a folder and folds per-file
// extraction outcomes into a batch, so one unreadable document never aborts
// the rest of the folder.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ReportGlob matches daily report documents within one folder.
const ReportGlob = "PS-OHLR_DUAT_Daily Report_*.docx"

// tempPrefix marks Word lock files left next to open documents.
const tempPrefix = "~$"

// ReportFiles returns the report documents directly inside folder, sorted by
// file name. A missing folder or a non-directory yields an empty list.
func ReportFiles(folder string) []string {
	files := []string{}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return files
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return files
	}
	// os.ReadDir returns entries sorted by name.
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if ok, _ := filepath.Match(ReportGlob, name); ok {
			files = append(files, filepath.Join(folder, name))
		}
	}
	return files
}

// Outcome is the tagged result of processing one file: either records, or a
// skip reason.
type Outcome[T any] struct {
	File    string
	Records []T
	Err     error
}

// Done wraps the records extracted from file.
func Done[T any](file string, records []T) Outcome[T] {
	return Outcome[T]{File: file, Records: records}
}

// Skipped records that file contributed nothing and why.
func Skipped[T any](file string, err error) Outcome[T] {
	return Outcome[T]{File: file, Err: err}
}

// Ok reports whether the file was processed.
func (o Outcome[T]) Ok() bool { return o.Err == nil }

// Skip is one entry of a batch's skip log.
type Skip struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Batch accumulates the records and skip log of a folder run.
type Batch[T any] struct {
	Records   []T
	Processed int
	Skipped   []Skip
}

// Progress is called after each file with its base name and the completed
// fraction in (0, 1].
type Progress func(name string, fraction float64)

// Run processes files in order. ctx is only consulted between files; when it
// is cancelled the records gathered so far are returned along with ctx.Err().
func Run[T any](ctx context.Context, files []string, process func(path string) Outcome[T], progress Progress, logger *zap.Logger) (Batch[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := Batch[T]{Records: []T{}, Skipped: []Skip{}}
	total := len(files)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			logger.Info("scan cancelled", zap.Int("completed", i), zap.Int("total", total))
			return batch, err
		}

		name := filepath.Base(path)
		out := process(path)
		if out.Ok() {
			batch.Records = append(batch.Records, out.Records...)
			batch.Processed++
			logger.Debug("parsed report", zap.String("file", name), zap.Int("records", len(out.Records)))
		} else {
			batch.Skipped = append(batch.Skipped, Skip{File: name, Reason: out.Err.Error()})
			logger.Warn("skipping report", zap.String("file", name), zap.Error(out.Err))
		}

		if progress != nil {
			progress(name, float64(i+1)/float64(total))
		}
	}
	return batch, nil
}
