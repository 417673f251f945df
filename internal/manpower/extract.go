// Package manpower extracts shift records (jobs, team headcounts, safety
// roles, attendance and leave) from the shift table of the daily reports.
package manpower

import (
	"regexp"
	"strconv"
	"strings"

	"duat/internal/docx"
	"duat/internal/domain"
	"duat/internal/pattern"
)

// JobTypes is the ordered, case-sensitive job classifier. SPA work must come
// before PA work since one contains the other.
var JobTypes = []string{"SPA work", "PA work", "CBM", "CM", "HLM", "C&R"}

const (
	JobOther          = "Other"
	JobCR             = "C&R"
	descriptionLength = 200
)

var (
	dateRe        = regexp.MustCompile(`(\d{1,2}/\d{1,2}(?:/\d{2,4})?)`)
	weekdayRe     = regexp.MustCompile(`(?i)(Mon|Tue|Wed|Thu|Fri|Sat|Sun)\w*`)
	projectCodeRe = regexp.MustCompile(`C\d{4}`)
	teamPatternRe = regexp.MustCompile(`S([2-5])x(\d+)`)
	digitsRe      = regexp.MustCompile(`\d+`)
)

// cursor is the scan state carried from row to row.
type cursor struct {
	date  string
	day   string
	shift string // "" until a shift marker is seen
}

func (c cursor) shiftOrDay() string {
	if c.shift == "" {
		return domain.ShiftDay
	}
	return c.shift
}

// ClassifyJob returns the first JobTypes entry contained in text, else Other.
func ClassifyJob(text string) string {
	for _, kind := range JobTypes {
		if strings.Contains(text, kind) {
			return kind
		}
	}
	return JobOther
}

// ExtractTable folds the rows of a shift table into shift records. The header
// row is skipped. Rows after the first job of a (date, shift) pair attach
// their attendance, apprentice, term labour and leave data to that record.
func ExtractTable(table docx.Table, week, year string) []domain.ShiftRecord {
	records := []domain.ShiftRecord{}
	if len(table.Rows) < 2 {
		return records
	}

	var cur cursor
	for _, row := range table.Rows[1:] {
		if len(row.Cells) < 2 {
			continue
		}
		texts := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			texts[i] = c.Text()
		}
		cur = advance(cur, texts)
		records = applyRow(records, cur, texts, week, year)
	}
	return records
}

// advance updates the date, weekday and shift from one row's cells.
func advance(cur cursor, texts []string) cursor {
	first := texts[0]
	if m := dateRe.FindString(first); m != "" {
		cur.date = m
		if d := weekdayRe.FindString(first); d != "" {
			cur.day = d
		}
	}
	for _, text := range texts {
		if shift := shiftMarker(text); shift != "" {
			cur.shift = shift
		}
	}
	return cur
}

func shiftMarker(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "day") && strings.Contains(lower, "shift"):
		return domain.ShiftDay
	case strings.Contains(lower, "night") && strings.Contains(lower, "shift"):
		return domain.ShiftNight
	}
	switch strings.TrimSpace(text) {
	case domain.ShiftDay:
		return domain.ShiftDay
	case domain.ShiftNight:
		return domain.ShiftNight
	}
	return ""
}

func applyRow(records []domain.ShiftRecord, cur cursor, texts []string, week, year string) []domain.ShiftRecord {
	rowText := strings.Join(texts, " ")
	lower := strings.ToLower(rowText)

	if job, ok := parseJob(rowText, texts); ok {
		shift := cur.shiftOrDay()
		if n := len(records); n > 0 && records[n-1].Date == cur.date && records[n-1].Shift == shift {
			records[n-1].Jobs = append(records[n-1].Jobs, job)
		} else {
			rec := domain.NewShiftRecord(cur.date, cur.day, shift, week, year)
			rec.Jobs = append(rec.Jobs, job)
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return records
	}
	last := &records[len(records)-1]

	if strings.Contains(lower, "on duty") || strings.Contains(lower, "attendance") {
		last.OnDutyNames = pattern.SplitNames(afterFirstColon(rowText))
		last.OnDutyTeamCounts = pattern.ParseTeamCounts(rowText)
	}
	if strings.Contains(lower, "apprentice") {
		last.Apprentices = pattern.SplitNames(afterFirstColon(rowText))
	}
	if strings.Contains(lower, "term labour") || strings.Contains(lower, "term labor") {
		src := rowText
		if i := strings.LastIndex(rowText, ":"); i >= 0 {
			src = rowText[i+1:]
		}
		if m := digitsRe.FindString(src); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				last.TermLabourCount = n
			}
		}
	}
	if hasLeaveLabel(rowText) {
		for cat, names := range CategorizeLeave(rowText) {
			last.Leave[cat] = append(last.Leave[cat], names...)
		}
	}
	return records
}

// parseJob builds a job entry when the row names a job type or project code.
func parseJob(rowText string, texts []string) (domain.JobEntry, bool) {
	kind := ClassifyJob(rowText)
	code := projectCodeRe.FindString(rowText)
	if kind == JobOther && code == "" {
		return domain.JobEntry{}, false
	}
	if kind == JobOther {
		kind = JobCR
	}

	qty := 0.0
	for _, text := range texts {
		if v, ok := pattern.ParseNumber(text); ok {
			qty = v
			break
		}
	}

	doneBy := ""
	for _, text := range texts {
		if teamPatternRe.MatchString(text) {
			doneBy = strings.TrimSpace(text)
			break
		}
	}

	teams := pattern.ParseTeamCounts(rowText)
	workers := pattern.SplitNames(doneBy)
	total := len(workers)
	for _, n := range teams {
		total += n
	}

	return domain.JobEntry{
		Type:         kind,
		ProjectCode:  code,
		Description:  truncate(rowText, descriptionLength),
		Qty:          qty,
		DoneByRaw:    doneBy,
		TeamCounts:   teams,
		WorkerNames:  workers,
		TotalWorkers: total,
		Roles:        ParseRoles(rowText),
	}, true
}

func hasLeaveLabel(text string) bool {
	for _, cat := range domain.LeaveCategories {
		if strings.Contains(text, cat+":") {
			return true
		}
	}
	return false
}

// CategorizeLeave reads "AL: Ann, Bob" lines into leave categories. Each line
// counts toward the first category label it contains. Every category is
// present in the result.
func CategorizeLeave(text string) map[string][]string {
	out := make(map[string][]string, len(domain.LeaveCategories))
	for _, cat := range domain.LeaveCategories {
		out[cat] = []string{}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, cat := range domain.LeaveCategories {
			label := cat + ":"
			if i := strings.Index(line, label); i >= 0 {
				out[cat] = append(out[cat], pattern.SplitNames(line[i+len(label):])...)
				break
			}
		}
	}
	return out
}

func afterFirstColon(text string) string {
	if _, after, ok := strings.Cut(text, ":"); ok {
		return after
	}
	return ""
}

// truncate cuts text to at most n runes.
func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
