package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"duat/internal/docx"
	"duat/internal/domain"
	"duat/internal/pattern"
	"duat/internal/scan"

	"go.uber.org/zap"
)

// ProcessDocx parses every table of one report document with the default
// keyword list.
func ProcessDocx(path string) ([]domain.DeliveryRecord, error) {
	return Extractor{}.ProcessFile(path)
}

// ProcessFile parses every table of the report at path. Week and year come
// from the filename and are empty when it does not follow the template.
func (e Extractor) ProcessFile(path string) ([]domain.DeliveryRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file does not exist: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".docx") {
		return nil, fmt.Errorf("not a .docx file: %s", filepath.Base(path))
	}

	doc, err := docx.Open(path)
	if err != nil {
		return nil, err
	}
	week, year := provenance(filepath.Base(path))
	return e.Document(doc, week, year), nil
}

// Document extracts delivery records from every table in doc.
func (e Extractor) Document(doc *docx.Document, week, year string) []domain.DeliveryRecord {
	records := []domain.DeliveryRecord{}
	for _, table := range doc.Tables {
		records = append(records, e.Table(table, week, year, false)...)
	}
	return records
}

// provenance formats the filename week and year, using "" for a missing part.
func provenance(name string) (string, string) {
	wk, yr := pattern.ExtractWeekYearFromFilename(name)
	week, year := "", ""
	if wk != 0 {
		week = strconv.Itoa(wk)
	}
	if yr != 0 {
		year = strconv.Itoa(yr)
	}
	return week, year
}

// Option configures a DailyReportParser.
type Option func(*DailyReportParser)

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *DailyReportParser) { p.logger = logger }
}

// WithKeywords replaces the project keyword list.
func WithKeywords(keywords []string) Option {
	return func(p *DailyReportParser) { p.extractor.Keywords = keywords }
}

// DailyReportParser scans a folder of daily reports for delivery records.
// A parser is not safe for concurrent ProcessAll calls.
type DailyReportParser struct {
	folder    string
	logger    *zap.Logger
	extractor Extractor

	records []domain.DeliveryRecord
	skipped []scan.Skip
	maxWeek int
}

// NewDailyReportParser returns a parser for folder.
func NewDailyReportParser(folder string, opts ...Option) *DailyReportParser {
	p := &DailyReportParser{folder: folder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Folder is the scanned directory.
func (p *DailyReportParser) Folder() string { return p.folder }

// ReportFiles lists the folder's report documents in name order.
func (p *DailyReportParser) ReportFiles() []string {
	return scan.ReportFiles(p.folder)
}

// ProcessAll parses every report file. Files that cannot be read are logged
// and skipped. progress, if non-nil, is called after each file. The only
// error returned is ctx's, in which case the records gathered before
// cancellation are still returned.
func (p *DailyReportParser) ProcessAll(ctx context.Context, progress scan.Progress) ([]domain.DeliveryRecord, error) {
	files := p.ReportFiles()
	p.logger.Info("delivery scan started", zap.String("folder", p.folder), zap.Int("files", len(files)))

	batch, err := scan.Run(ctx, files, func(path string) scan.Outcome[domain.DeliveryRecord] {
		if wk, _ := pattern.ExtractWeekYearFromFilename(filepath.Base(path)); wk > p.maxWeek {
			p.maxWeek = wk
		}
		records, err := p.extractor.ProcessFile(path)
		if err != nil {
			return scan.Skipped[domain.DeliveryRecord](path, err)
		}
		return scan.Done(path, records)
	}, progress, p.logger)

	p.records = batch.Records
	p.skipped = batch.Skipped
	p.logger.Info("delivery scan finished",
		zap.Int("records", len(batch.Records)),
		zap.Int("processed", batch.Processed),
		zap.Int("skipped", len(batch.Skipped)),
		zap.Int("max_week", p.maxWeek),
	)
	return batch.Records, err
}

// Records returns the result of the last ProcessAll.
func (p *DailyReportParser) Records() []domain.DeliveryRecord { return p.records }

// Skipped returns the skip log of the last ProcessAll.
func (p *DailyReportParser) Skipped() []scan.Skip { return p.skipped }

// MaxWeek is the highest filename week seen, 0 before any file is processed.
func (p *DailyReportParser) MaxWeek() int { return p.maxWeek }
