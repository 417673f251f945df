package manpower

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"

	"duat/internal/docx"
	"duat/internal/domain"
	"duat/internal/scan"

	"go.uber.org/zap"
)

// ShiftTableIndex is the position of the shift table in a daily report.
const ShiftTableIndex = 1

// ErrNoShiftTable marks a report without a second table.
var ErrNoShiftTable = errors.New("fewer than 2 tables")

var (
	nameWeekRe = regexp.MustCompile(`(?i)WK(\d+)`)
	nameYearRe = regexp.MustCompile(`20\d{2}`)
)

// WeekYearFromName reads the week and year hints from a report file name.
// Either is "" when absent. This is looser than the delivery filename rule.
func WeekYearFromName(name string) (week, year string) {
	if m := nameWeekRe.FindStringSubmatch(name); m != nil {
		week = m[1]
	}
	year = nameYearRe.FindString(name)
	return week, year
}

// ProcessFile extracts shift records from the shift table of the report at path.
func ProcessFile(path string) ([]domain.ShiftRecord, error) {
	doc, err := docx.Open(path)
	if err != nil {
		return nil, err
	}
	if len(doc.Tables) <= ShiftTableIndex {
		return nil, ErrNoShiftTable
	}
	week, year := WeekYearFromName(filepath.Base(path))
	return ExtractTable(doc.Tables[ShiftTableIndex], week, year), nil
}

// Option configures a ManpowerParser.
type Option func(*ManpowerParser)

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *ManpowerParser) { p.logger = logger }
}

// WithProgress sets a callback invoked after each file.
func WithProgress(progress scan.Progress) Option {
	return func(p *ManpowerParser) { p.progress = progress }
}

// ManpowerParser scans a folder of daily reports for shift records.
type ManpowerParser struct {
	folder   string
	logger   *zap.Logger
	progress scan.Progress

	records []domain.ShiftRecord
	skipped []scan.Skip
}

// NewManpowerParser returns a parser for folder.
func NewManpowerParser(folder string, opts ...Option) *ManpowerParser {
	p := &ManpowerParser{folder: folder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Folder is the scanned directory.
func (p *ManpowerParser) Folder() string { return p.folder }

// ReportFiles lists the folder's report documents in name order.
func (p *ManpowerParser) ReportFiles() []string {
	return scan.ReportFiles(p.folder)
}

// ProcessAll parses the shift table of every report file. Unreadable files
// and files without a shift table are logged and skipped.
func (p *ManpowerParser) ProcessAll(ctx context.Context) ([]domain.ShiftRecord, error) {
	files := p.ReportFiles()
	p.logger.Info("manpower scan started", zap.String("folder", p.folder), zap.Int("files", len(files)))

	batch, err := scan.Run(ctx, files, func(path string) scan.Outcome[domain.ShiftRecord] {
		records, err := ProcessFile(path)
		if err != nil {
			return scan.Skipped[domain.ShiftRecord](path, err)
		}
		return scan.Done(path, records)
	}, p.progress, p.logger)

	p.records = batch.Records
	p.skipped = batch.Skipped
	p.logger.Info("manpower scan finished",
		zap.Int("records", len(batch.Records)),
		zap.Int("jobs", domain.TotalJobs(batch.Records)),
		zap.Int("skipped", len(batch.Skipped)),
	)
	return batch.Records, err
}

// Records returns the result of the last ProcessAll.
func (p *ManpowerParser) Records() []domain.ShiftRecord { return p.records }

// Skipped returns the skip log of the last ProcessAll.
func (p *ManpowerParser) Skipped() []scan.Skip { return p.skipped }
