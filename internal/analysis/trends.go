package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"duat/internal/domain"
)

// MonthTrend is the NTH count of one approximate month.
type MonthTrend struct {
	YearMonth string `json:"year_month"`
	NTH       int    `json:"nth"`
}

// MonthlyNTH buckets records into months derived from their week number,
// treating a month as 4.33 weeks, and returns the last months buckets in
// order. Records without a numeric year and week are left out. months <= 0
// returns every bucket.
func MonthlyNTH(records []domain.DeliveryRecord, months int) []MonthTrend {
	counts := make(map[string]int)
	for _, r := range records {
		year, week, ok := yearWeekNumbers(r)
		if !ok {
			continue
		}
		counts[yearMonthLabel(year, week)]++
	}

	out := make([]MonthTrend, 0, len(counts))
	for label, n := range counts {
		out = append(out, MonthTrend{YearMonth: label, NTH: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	if months > 0 && len(out) > months {
		out = out[len(out)-months:]
	}
	return out
}

func yearMonthLabel(year, week int) string {
	month := int(math.Floor(float64(week-1)/4.33)) + 1
	month = min(max(month, 1), 12)
	return fmt.Sprintf("%d-%02d", year, month)
}

// yearWeekNumbers parses a record's year and week as integers.
func yearWeekNumbers(r domain.DeliveryRecord) (year, week int, ok bool) {
	y, err := strconv.Atoi(strings.TrimSpace(r.Year))
	if err != nil {
		return 0, 0, false
	}
	w, err := strconv.Atoi(strings.TrimSpace(r.Week))
	if err != nil {
		return 0, 0, false
	}
	return y, w, true
}

// LineShare is the NTH and quantity delivered on one rail line.
type LineShare struct {
	Line string  `json:"line"`
	NTH  int     `json:"nth"`
	Qty  float64 `json:"qty"`
}

// LineDistribution totals records with a line code, busiest line first.
func LineDistribution(records []domain.DeliveryRecord) []LineShare {
	byLine := make(map[string]*LineShare)
	for _, r := range records {
		if r.Line == "" {
			continue
		}
		l, ok := byLine[r.Line]
		if !ok {
			l = &LineShare{Line: r.Line}
			byLine[r.Line] = l
		}
		l.NTH++
		l.Qty += r.Quantity
	}

	out := make([]LineShare, 0, len(byLine))
	for _, l := range byLine {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NTH != out[j].NTH {
			return out[i].NTH > out[j].NTH
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// NTHPivot is a week by project table of NTH counts.
type NTHPivot struct {
	Weeks []string `json:"labels"`
	// Projects are ordered by total NTH over Weeks, largest first.
	Projects []string         `json:"projects"`
	Counts   map[string][]int `json:"datasets"`
	Totals   map[string]int   `json:"totals"`
}

// PivotNTHByWeek counts dated records per week and project, keeping the last
// weeks weeks. weeks <= 0 keeps every week. Projects with no record in the
// kept weeks still get a row of zeros.
func PivotNTHByWeek(records []domain.DeliveryRecord, weeks int) NTHPivot {
	cells := make(map[string]map[string]int)
	projects := make(map[string]bool)
	for _, r := range records {
		if !isDated(r) {
			continue
		}
		key := domain.YearWeek(r.Year, r.Week)
		row, ok := cells[key]
		if !ok {
			row = make(map[string]int)
			cells[key] = row
		}
		row[r.Project]++
		projects[r.Project] = true
	}

	labels := make([]string, 0, len(cells))
	for key := range cells {
		labels = append(labels, key)
	}
	sort.Strings(labels)
	if weeks > 0 && len(labels) > weeks {
		labels = labels[len(labels)-weeks:]
	}

	pivot := NTHPivot{
		Weeks:    labels,
		Projects: make([]string, 0, len(projects)),
		Counts:   make(map[string][]int, len(projects)),
		Totals:   make(map[string]int, len(projects)),
	}
	for p := range projects {
		series := make([]int, len(labels))
		total := 0
		for i, key := range labels {
			series[i] = cells[key][p]
			total += series[i]
		}
		pivot.Projects = append(pivot.Projects, p)
		pivot.Counts[p] = series
		pivot.Totals[p] = total
	}
	sort.Slice(pivot.Projects, func(i, j int) bool {
		a, b := pivot.Projects[i], pivot.Projects[j]
		if pivot.Totals[a] != pivot.Totals[b] {
			return pivot.Totals[a] > pivot.Totals[b]
		}
		return a < b
	})
	return pivot
}
