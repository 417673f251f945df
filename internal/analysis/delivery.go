// Package analysis aggregates extracted records into the summaries shown on
// the progress and manpower dashboards.
package analysis

import (
	"math"
	"sort"
	"strings"

	"duat/internal/delivery"
	"duat/internal/domain"
)

// ProvideLabel is the display name of the "Provide" job keyword.
const ProvideLabel = "Provide manpower for switching"

func displayProject(project string) string {
	if project == "Provide" {
		return ProvideLabel
	}
	return project
}

// ProjectDistribution counts records (NTH) per project.
func ProjectDistribution(records []domain.DeliveryRecord) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		out[displayProject(r.Project)]++
	}
	return out
}

// QuantityByProject sums delivered quantity per project.
func QuantityByProject(records []domain.DeliveryRecord) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range records {
		out[displayProject(r.Project)] += r.Quantity
	}
	return out
}

// KeywordDistribution counts records whose project mentions each keyword,
// ignoring case. Keywords with no records are left out. A nil keyword list
// uses delivery.JobKeywords.
func KeywordDistribution(records []domain.DeliveryRecord, keywords []string) map[string]int {
	if keywords == nil {
		keywords = delivery.JobKeywords
	}
	out := make(map[string]int)
	for _, kw := range keywords {
		upper := strings.ToUpper(kw)
		n := 0
		for _, r := range records {
			if strings.Contains(strings.ToUpper(r.Project), upper) {
				n++
			}
		}
		if n > 0 {
			out[displayProject(kw)] = n
		}
	}
	return out
}

// WeekTrend splits one week's NTH into project work and keyword jobs.
type WeekTrend struct {
	YearWeek string `json:"year_week"`
	Projects int    `json:"projects"`
	Jobs     int    `json:"jobs"`
}

// WeeklyNTH buckets records by YearWeek and returns the last weeks buckets in
// chronological order. Records without a week or year are left out. weeks <= 0
// returns every bucket.
func WeeklyNTH(records []domain.DeliveryRecord, weeks int) []WeekTrend {
	buckets := make(map[string]*WeekTrend)
	for _, r := range records {
		key := domain.YearWeek(r.Year, r.Week)
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &WeekTrend{YearWeek: key}
			buckets[key] = b
		}
		if isJob(r.Project) {
			b.Jobs++
		} else {
			b.Projects++
		}
	}

	out := make([]WeekTrend, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearWeek < out[j].YearWeek })
	if weeks > 0 && len(out) > weeks {
		out = out[len(out)-weeks:]
	}
	return out
}

func isJob(project string) bool {
	upper := strings.ToUpper(project)
	for _, kw := range delivery.JobKeywords {
		if strings.Contains(upper, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}

// ProjectSummary is one row of the per-project progress table.
type ProjectSummary struct {
	Rank           int     `json:"rank"`
	Project        string  `json:"project"`
	QtyDelivered   float64 `json:"qty_delivered"`
	TotalNTH       int     `json:"total_nth"`
	QtyPerNTH      float64 `json:"qty_per_nth"`
	AvgQtyPerWeek  float64 `json:"avg_qty_per_week"`
	AvgQtyPerMonth float64 `json:"avg_qty_per_month"`
	AvgNTHPerWeek  float64 `json:"avg_nth_per_week"`
	AvgNTHPerMonth float64 `json:"avg_nth_per_month"`
}

// Summarize builds the ranked per-project table. A project is listed only
// when at least one of its records has a resolvable date and week. Only those
// dated records contribute quantity, while every record of a listed project
// counts toward NTH. currentWeek and currentMonth are the averaging periods
// and are clamped to 1.
func Summarize(records []domain.DeliveryRecord, currentWeek, currentMonth int) []ProjectSummary {
	if currentWeek < 1 {
		currentWeek = 1
	}
	if currentMonth < 1 {
		currentMonth = 1
	}

	byProject := make(map[string]*ProjectSummary)
	dated := make(map[string]bool)
	for _, r := range records {
		s, ok := byProject[r.Project]
		if !ok {
			s = &ProjectSummary{Project: r.Project}
			byProject[r.Project] = s
		}
		s.TotalNTH++
		if isDated(r) {
			s.QtyDelivered += r.Quantity
			dated[r.Project] = true
		}
	}

	out := make([]ProjectSummary, 0, len(byProject))
	for project, s := range byProject {
		if !dated[project] {
			continue
		}
		s.QtyPerNTH = round(s.QtyDelivered/float64(s.TotalNTH), 2)
		s.AvgQtyPerWeek = round(s.QtyDelivered/float64(currentWeek), 2)
		s.AvgQtyPerMonth = round(s.QtyDelivered/float64(currentMonth), 2)
		s.AvgNTHPerWeek = round(float64(s.TotalNTH)/float64(currentWeek), 2)
		s.AvgNTHPerMonth = round(float64(s.TotalNTH)/float64(currentMonth), 2)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QtyDelivered != out[j].QtyDelivered {
			return out[i].QtyDelivered > out[j].QtyDelivered
		}
		return out[i].Project < out[j].Project
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// isDated reports whether a record has both a parseable date and a week.
func isDated(r domain.DeliveryRecord) bool {
	if _, ok := domain.ParseFullDate(r.FullDate, r.Year); !ok {
		return false
	}
	return domain.YearWeek(r.Year, r.Week) != ""
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
