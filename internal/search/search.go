// Package search finds a keyword in the paragraphs and table cells of every
// daily report in a folder.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"duat/internal/docx"
	"duat/internal/scan"

	"go.uber.org/zap"
)

const maxTextLength = 500

var (
	ErrEmptyKeyword   = errors.New("keyword cannot be empty")
	ErrFolderNotFound = errors.New("folder path does not exist")
)

// Match is one hit inside a document.
type Match struct {
	Location string `json:"location"` // "Paragraph" or "Table t, Row r, Col c"
	Text     string `json:"text"`
}

// FileMatches groups the distinct hits of one report.
type FileMatches struct {
	Filename string  `json:"filename"`
	Matches  []Match `json:"matches"`
}

// Result is the outcome of one folder search.
type Result struct {
	Keyword      string        `json:"keyword"`
	TotalFiles   int           `json:"total_files"`
	MatchedFiles int           `json:"matched_files"`
	Results      []FileMatches `json:"results"`
	Skipped      []scan.Skip   `json:"skipped"`
}

// Searcher runs keyword searches over report folders.
type Searcher struct {
	logger *zap.Logger
}

// New returns a Searcher. A nil logger discards output.
func New(logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{logger: logger}
}

// Search looks for keyword, ignoring case, in every report under folder.
// Unreadable reports are skipped.
func (s *Searcher) Search(ctx context.Context, folder, keyword string) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result{}, ErrEmptyKeyword
	}
	if _, err := os.Stat(folder); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}

	files := scan.ReportFiles(folder)
	batch, err := scan.Run(ctx, files, func(path string) scan.Outcome[FileMatches] {
		doc, err := docx.Open(path)
		if err != nil {
			return scan.Skipped[FileMatches](path, err)
		}
		matches := Document(doc, keyword)
		if len(matches) == 0 {
			return scan.Done[FileMatches](path, nil)
		}
		return scan.Done(path, []FileMatches{{Filename: filepath.Base(path), Matches: matches}})
	}, nil, s.logger)

	s.logger.Info("keyword search finished",
		zap.String("keyword", keyword),
		zap.Int("files", len(files)),
		zap.Int("matched", len(batch.Records)),
	)
	return Result{
		Keyword:      keyword,
		TotalFiles:   len(files),
		MatchedFiles: len(batch.Records),
		Results:      batch.Records,
		Skipped:      batch.Skipped,
	}, err
}

// Document returns the distinct matches of keyword in doc, body paragraphs
// first and then table cells in reading order. Table, row and column numbers
// are 1-based.
func Document(doc *docx.Document, keyword string) []Match {
	needle := strings.ToLower(keyword)
	var matches []Match
	seen := make(map[string]bool)
	add := func(location, text string) {
		text = strings.TrimSpace(text)
		if text == "" || !strings.Contains(strings.ToLower(text), needle) {
			return
		}
		text = truncate(text, maxTextLength)
		if seen[text] {
			return
		}
		seen[text] = true
		matches = append(matches, Match{Location: location, Text: text})
	}

	for _, p := range doc.Paragraphs {
		add("Paragraph", p.Text())
	}
	for t, table := range doc.Tables {
		for r, row := range table.Rows {
			for c, cell := range row.Cells {
				add(fmt.Sprintf("Table %d, Row %d, Col %d", t+1, r+1, c+1), cell.Text())
			}
		}
	}
	return matches
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
