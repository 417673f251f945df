package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"duat/internal/domain"
)

// DefaultTargetProductivity is the quantity per NTH a week must reach to
// count as met when no target is given.
const DefaultTargetProductivity = 3.0

// paceWeeks is how many recent weeks the current pace averages over.
const paceWeeks = 12

func projectRecords(records []domain.DeliveryRecord, project string) []domain.DeliveryRecord {
	var out []domain.DeliveryRecord
	for _, r := range records {
		if strings.EqualFold(r.Project, project) {
			out = append(out, r)
		}
	}
	return out
}

// ISOWeeksInYear returns 52 or 53, the number of ISO weeks in year.
func ISOWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// SCurve is the cumulative plan and actual delivery of one project.
type SCurve struct {
	Project          string    `json:"project_code"`
	TargetQty        float64   `json:"target_qty"`
	Weeks            []string  `json:"labels"`
	CumulativeTarget []float64 `json:"cumulative_target"`
	CumulativeActual []float64 `json:"cumulative_actual"`
	ProgressPct      float64   `json:"progress_pct"`
}

// BuildSCurve lays a linear target over the weeks from start to end inclusive
// and accumulates the project's delivered quantity per week. The target grows
// by targetQty divided by the number of week steps, starting one step in. It
// reports false when the project has no records or the range is empty.
func BuildSCurve(records []domain.DeliveryRecord, project string, targetQty float64, startYear, startWeek, endYear, endWeek int) (SCurve, bool) {
	proj := projectRecords(records, project)
	if len(proj) == 0 {
		return SCurve{}, false
	}
	if startWeek < 1 || startWeek > ISOWeeksInYear(startYear) {
		return SCurve{}, false
	}
	if startYear > endYear || (startYear == endYear && startWeek >= endWeek) {
		return SCurve{}, false
	}

	var labels []string
	y, w := startYear, startWeek
	for {
		labels = append(labels, fmt.Sprintf("%d-W%02d", y, w))
		if y == endYear && w == endWeek {
			break
		}
		if y > endYear {
			// endWeek is past the end of endYear
			return SCurve{}, false
		}
		w++
		if w > ISOWeeksInYear(y) {
			w = 1
			y++
		}
	}

	weekly := make(map[string]float64)
	for _, r := range proj {
		if key := domain.YearWeek(r.Year, r.Week); key != "" {
			weekly[key] += r.Quantity
		}
	}

	steps := float64(len(labels) - 1)
	curve := SCurve{
		Project:          project,
		TargetQty:        targetQty,
		Weeks:            labels,
		CumulativeTarget: make([]float64, len(labels)),
		CumulativeActual: make([]float64, len(labels)),
	}
	running := 0.0
	for i, key := range labels {
		curve.CumulativeTarget[i] = targetQty / steps * float64(i+1)
		running += weekly[key]
		curve.CumulativeActual[i] = running
	}
	if targetQty > 0 {
		curve.ProgressPct = round(running/targetQty*100, 1)
	}
	return curve, true
}

// WeekPerformance is one week of a project's productivity.
type WeekPerformance struct {
	Year         int     `json:"year"`
	Week         int     `json:"week"`
	QtyDelivered float64 `json:"qty_delivered"`
	NTH          int     `json:"nth_count"`
	Productivity float64 `json:"actual_productivity"`
	Status       string  `json:"status"`
}

// Performance summarises how often a project met its weekly productivity
// target.
type Performance struct {
	Project            string            `json:"project_code"`
	Weekly             []WeekPerformance `json:"weekly_data"`
	TotalWeeks         int               `json:"total_weeks"`
	WeeksMetTarget     int               `json:"weeks_met_target"`
	WeeksMissed        int               `json:"weeks_missed"`
	SuccessRate        float64           `json:"success_rate"`
	TargetProductivity float64           `json:"target_productivity"`
	CurrentPace        float64           `json:"current_pace"`
	AvgProductivity    float64           `json:"avg_productivity"`
	Recovery           *Recovery         `json:"recovery,omitempty"`
}

// MeasurePerformance groups the project's records by year and week, where
// each record is one NTH. A week meets the target when its quantity per NTH
// reaches targetProductivity. The current pace is the quantity per NTH over
// the latest twelve weeks. It reports false when the project has no record
// with a numeric year and week.
func MeasurePerformance(records []domain.DeliveryRecord, project string, targetProductivity float64) (Performance, bool) {
	type yw struct{ year, week int }
	byWeek := make(map[yw]*WeekPerformance)
	for _, r := range projectRecords(records, project) {
		year, week, ok := yearWeekNumbers(r)
		if !ok {
			continue
		}
		k := yw{year, week}
		wp, ok := byWeek[k]
		if !ok {
			wp = &WeekPerformance{Year: year, Week: week}
			byWeek[k] = wp
		}
		wp.QtyDelivered += r.Quantity
		wp.NTH++
	}
	if len(byWeek) == 0 {
		return Performance{}, false
	}

	perf := Performance{Project: project, TargetProductivity: targetProductivity}
	for _, wp := range byWeek {
		wp.Productivity = round(wp.QtyDelivered/float64(wp.NTH), 2)
		wp.Status = "missed"
		if wp.Productivity >= targetProductivity {
			wp.Status = "met"
			perf.WeeksMetTarget++
		}
		perf.Weekly = append(perf.Weekly, *wp)
	}
	sort.Slice(perf.Weekly, func(i, j int) bool {
		a, b := perf.Weekly[i], perf.Weekly[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Week < b.Week
	})

	perf.TotalWeeks = len(perf.Weekly)
	perf.WeeksMissed = perf.TotalWeeks - perf.WeeksMetTarget
	perf.SuccessRate = round(float64(perf.WeeksMetTarget)/float64(perf.TotalWeeks)*100, 1)

	sum := 0.0
	for _, wp := range perf.Weekly {
		sum += wp.Productivity
	}
	perf.AvgProductivity = round(sum/float64(perf.TotalWeeks), 2)

	recent := perf.Weekly[max(0, len(perf.Weekly)-paceWeeks):]
	qty, nth := 0.0, 0
	for _, wp := range recent {
		qty += wp.QtyDelivered
		nth += wp.NTH
	}
	if nth > 0 {
		perf.CurrentPace = round(qty/float64(nth), 2)
	}
	return perf, true
}

// Recovery is what it takes to reach a quantity target from where a project
// stands.
type Recovery struct {
	RequiredWeekly       float64 `json:"required_weekly"`
	RequiredProductivity float64 `json:"required_productivity"`
	OnTrack              bool    `json:"on_track"`
	// WeeksToComplete is nil when nothing is being delivered.
	WeeksToComplete *float64 `json:"weeks_to_complete"`
}

// RecoveryPath spreads the outstanding quantity over the remaining weeks,
// assuming one NTH per week, and projects completion at the current rate.
// With no weeks left the project is on track only if the target is reached.
func RecoveryPath(targetQty, actualQty float64, remainingWeeks int, currentProductivity float64) Recovery {
	if remainingWeeks <= 0 {
		return Recovery{OnTrack: actualQty >= targetQty}
	}
	remaining := targetQty - actualQty
	required := remaining / float64(remainingWeeks)
	rec := Recovery{
		RequiredWeekly:       round(required, 2),
		RequiredProductivity: round(required, 2),
	}
	rec.OnTrack = currentProductivity >= rec.RequiredProductivity
	if currentProductivity > 0 {
		weeks := round(remaining/currentProductivity, 1)
		rec.WeeksToComplete = &weeks
	}
	return rec
}

// ProjectCodes lists the distinct projects starting with "C", sorted.
func ProjectCodes(records []domain.DeliveryRecord) []string {
	seen := make(map[string]bool)
	codes := []string{}
	for _, r := range records {
		if !strings.HasPrefix(r.Project, "C") || seen[r.Project] {
			continue
		}
		seen[r.Project] = true
		codes = append(codes, r.Project)
	}
	sort.Strings(codes)
	return codes
}

// TotalQuantity sums the quantity delivered for a project.
func TotalQuantity(records []domain.DeliveryRecord, project string) float64 {
	total := 0.0
	for _, r := range projectRecords(records, project) {
		total += r.Quantity
	}
	return total
}

// YearPoint is one year on the cumulative progress chart. Nil values are not
// plotted.
type YearPoint struct {
	Year      int      `json:"year"`
	Plan      float64  `json:"plan"`
	Actual    *float64 `json:"actual"`
	Recovery  *float64 `json:"recovery"`
	Projected *float64 `json:"projected"`
}

// CumulativeMetrics compares the yearly delivery pace with the pace needed to
// finish by the end year.
type CumulativeMetrics struct {
	CurrentPace     float64 `json:"current_pace"`
	RequiredSpeed   float64 `json:"required_speed"`
	ProjectedFinish *string `json:"projected_finish"`
	TotalActual     float64 `json:"total_actual"`
	TargetQty       float64 `json:"target_qty"`
	OnTrack         bool    `json:"on_track"`
	StartYear       int     `json:"start_year"`
	EndYear         int     `json:"end_year"`
	CurrentYear     int     `json:"current_year"`
	LastActualYear  int     `json:"last_actual_year"`
}

// CumulativeProgress is a project's year by year progress against a linear
// plan, with a recovery path and a projection at the current pace.
type CumulativeProgress struct {
	Points  []YearPoint       `json:"chart_data"`
	Metrics CumulativeMetrics `json:"metrics"`
}

// CumulativeOptions bounds a cumulative progress chart. Zero values are
// derived from the data: the start year is the first year delivered, the end
// year is three years past the later of the last delivery and currentYear,
// and the target is 120% of everything delivered so far.
type CumulativeOptions struct {
	TargetQty   float64
	StartYear   int
	EndYear     int
	CurrentYear int
}

// BuildCumulativeProgress accumulates the project's quantity per year. The
// current pace is the mean yearly quantity over the latest three years. It
// reports false when the project has no record with a numeric year.
func BuildCumulativeProgress(records []domain.DeliveryRecord, project string, opts CumulativeOptions) (CumulativeProgress, bool) {
	yearly := make(map[int]float64)
	for _, r := range projectRecords(records, project) {
		year, err := strconv.Atoi(strings.TrimSpace(r.Year))
		if err != nil {
			continue
		}
		yearly[year] += r.Quantity
	}
	if len(yearly) == 0 {
		return CumulativeProgress{}, false
	}

	years := make([]int, 0, len(yearly))
	for y := range yearly {
		years = append(years, y)
	}
	sort.Ints(years)
	cumulative := make(map[int]float64, len(years))
	running := 0.0
	for _, y := range years {
		running += yearly[y]
		cumulative[y] = running
	}
	dataStart, last := years[0], years[len(years)-1]
	total := running

	if opts.CurrentYear == 0 {
		opts.CurrentYear = time.Now().Year()
	}
	if opts.StartYear == 0 {
		opts.StartYear = dataStart
	}
	if opts.EndYear == 0 {
		opts.EndYear = max(last, opts.CurrentYear) + 3
	}
	if opts.TargetQty == 0 {
		opts.TargetQty = total * 1.2
	}

	recent := years[max(0, len(years)-3):]
	pace := 0.0
	for _, y := range recent {
		pace += yearly[y]
	}
	pace /= float64(len(recent))

	remainingYears := opts.EndYear - last
	remainingQty := opts.TargetQty - total
	required := 0.0
	if remainingYears > 0 {
		required = remainingQty / float64(remainingYears)
	}

	span := opts.EndYear - opts.StartYear + 1
	yearlyPlan := 0.0
	if span > 0 {
		yearlyPlan = opts.TargetQty / float64(span)
	}

	progress := CumulativeProgress{
		Metrics: CumulativeMetrics{
			CurrentPace:    round(pace, 1),
			RequiredSpeed:  round(required, 1),
			TotalActual:    round(total, 1),
			TargetQty:      round(opts.TargetQty, 1),
			OnTrack:        pace >= required,
			StartYear:      opts.StartYear,
			EndYear:        opts.EndYear,
			CurrentYear:    opts.CurrentYear,
			LastActualYear: last,
		},
	}
	if pace > 0 {
		toGo := remainingQty / pace
		frac := toGo - math.Floor(toGo)
		finish := fmt.Sprintf("%d-%02d-01", int(float64(last)+toGo), int(frac*12)+1)
		progress.Metrics.ProjectedFinish = &finish
	}

	for i := 0; i < span; i++ {
		year := opts.StartYear + i
		pt := YearPoint{Year: year, Plan: round(yearlyPlan*float64(i+1), 1)}
		if v, ok := cumulative[year]; ok {
			pt.Actual = ptr(round(v, 1))
		} else if year < dataStart {
			pt.Actual = ptr(0)
		}
		if year >= last {
			since := float64(year - last)
			if remainingYears > 0 {
				pt.Recovery = ptr(round(math.Min(total+remainingQty*since/float64(remainingYears), opts.TargetQty), 1))
			}
			pt.Projected = ptr(round(total+pace*since, 1))
		}
		progress.Points = append(progress.Points, pt)
	}
	return progress, true
}

func ptr(v float64) *float64 { return &v }
