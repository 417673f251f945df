// Package delivery extracts delivery records (date, project, quantity, line)
// from the daily report tables and scans whole report folders for them.
package delivery

import (
	"strings"

	"duat/internal/docx"
	"duat/internal/domain"
	"duat/internal/pattern"
)

// JobKeywords identifies a row's project when it carries no project code.
// Order is precedence: the first keyword found wins.
var JobKeywords = []string{"CBM", "CM", "PA work", "HLM", "Provide"}

// Extractor converts report tables into delivery records using an ordered
// keyword list. The zero value uses JobKeywords.
type Extractor struct {
	Keywords []string
}

func (e Extractor) keywords() []string {
	if len(e.Keywords) == 0 {
		return JobKeywords
	}
	return e.Keywords
}

// ExtractTable runs the default Extractor over table.
func ExtractTable(table docx.Table, week, year string, isNight bool) []domain.DeliveryRecord {
	return Extractor{}.Table(table, week, year, isNight)
}

// Table turns one report table into delivery records. The header row is
// skipped. isNight marks every row as night shift; otherwise a row is night
// shift when its text mentions "night".
func (e Extractor) Table(table docx.Table, week, year string, isNight bool) []domain.DeliveryRecord {
	records := []domain.DeliveryRecord{}
	if len(table.Rows) < 2 {
		return records
	}

	kws := e.keywords()
	for _, row := range table.Rows[1:] {
		if rec, ok := extractRow(row, week, year, isNight, kws); ok {
			records = append(records, rec)
		}
	}
	return records
}

func extractRow(row docx.Row, week, year string, isNight bool, kws []string) (domain.DeliveryRecord, bool) {
	cells := row.Cells
	if len(cells) < 2 {
		return domain.DeliveryRecord{}, false
	}

	texts := make([]string, len(cells))
	for i, c := range cells {
		texts[i] = c.Text()
	}
	rowText := strings.Join(texts, " ")
	if strings.TrimSpace(rowText) == "" {
		return domain.DeliveryRecord{}, false
	}

	night := isNight || pattern.ContainsFold(rowText, "night")
	blue := rowHasBlue(cells)

	fullDate := texts[0]
	desc := texts[1]
	qty := 0.0
	if len(texts) > 2 {
		qty = pattern.ExtractQuantity(texts[2])
	}

	combined := desc + " " + rowText
	project := identifyProject(combined, kws)
	if project == "" && fullDate == "" {
		return domain.DeliveryRecord{}, false
	}

	// Blue night-shift text marks informational rows, not deliveries.
	if night && blue && hasKeyword(combined, kws) {
		qty = 0
	}

	return domain.DeliveryRecord{
		FullDate: fullDate,
		Project:  project,
		Quantity: qty,
		Week:     week,
		Year:     year,
		Line:     pattern.ExtractLineCode(combined),
	}, true
}

func rowHasBlue(cells []docx.Cell) bool {
	for _, c := range cells {
		for _, r := range c.Runs() {
			if pattern.IsBlueColor(r.Color) {
				return true
			}
		}
	}
	return false
}

// IdentifyProject returns the project code in text, else the first job
// keyword found case-insensitively, else "".
func IdentifyProject(text string) string {
	return identifyProject(text, JobKeywords)
}

func identifyProject(text string, kws []string) string {
	if code := pattern.ExtractProjectCode(text); code != "" {
		return code
	}
	for _, kw := range kws {
		if pattern.ContainsFold(text, kw) {
			return kw
		}
	}
	return ""
}

// HasJobKeyword reports whether text mentions any job keyword, ignoring case.
func HasJobKeyword(text string) bool {
	return hasKeyword(text, JobKeywords)
}

func hasKeyword(text string, kws []string) bool {
	for _, kw := range kws {
		if pattern.ContainsFold(text, kw) {
			return true
		}
	}
	return false
}
