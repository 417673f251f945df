package analysis

import (
	"strconv"
	"testing"

	"duat/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func TestISOWeeksInYear(t *testing.T) {
	for year, want := range map[int]int{2015: 53, 2020: 53, 2024: 52, 2025: 52, 2026: 53} {
		if got := ISOWeeksInYear(year); got != want {
			t.Errorf("ISOWeeksInYear(%d) = %d, want %d", year, got, want)
		}
	}
}

func scurveRecords() []domain.DeliveryRecord {
	return []domain.DeliveryRecord{
		{Project: "C2264", Quantity: 2, Week: "52", Year: "2020"},
		{Project: "C2264", Quantity: 3, Week: "53", Year: "2020"},
		{Project: "C2264", Quantity: 1, Week: "1", Year: "2021"},
		{Project: "C2264", Quantity: 7, Week: "9", Year: "2021"},
		{Project: "C9081", Quantity: 50, Week: "1", Year: "2021"},
	}
}

func TestBuildSCurveAcrossFiftyThreeWeekYear(t *testing.T) {
	got, ok := BuildSCurve(scurveRecords(), "c2264", 30, 2020, 52, 2021, 2)
	if !ok {
		t.Fatal("expected an S-curve")
	}
	want := SCurve{
		Project:          "c2264",
		TargetQty:        30,
		Weeks:            []string{"2020-W52", "2020-W53", "2021-W01", "2021-W02"},
		CumulativeTarget: []float64{10, 20, 30, 40},
		CumulativeActual: []float64{2, 5, 6, 6},
		ProgressPct:      20,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildSCurve mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSCurveRejectsEmptyRanges(t *testing.T) {
	cases := []struct {
		name                                   string
		project                                string
		startYear, startWeek, endYear, endWeek int
	}{
		{"unknown project", "C0000", 2020, 52, 2021, 2},
		{"same week", "C2264", 2021, 2, 2021, 2},
		{"end before start", "C2264", 2021, 5, 2020, 10},
		{"end week past year end", "C2264", 2020, 50, 2020, 54},
		{"start week invalid", "C2264", 2021, 53, 2022, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := BuildSCurve(scurveRecords(), tc.project, 10, tc.startYear, tc.startWeek, tc.endYear, tc.endWeek); ok {
				t.Fatal("expected no S-curve")
			}
		})
	}
}

func TestBuildSCurveZeroTarget(t *testing.T) {
	got, ok := BuildSCurve(scurveRecords(), "C2264", 0, 2021, 1, 2021, 9)
	if !ok {
		t.Fatal("expected an S-curve")
	}
	if got.ProgressPct != 0 || got.CumulativeActual[len(got.CumulativeActual)-1] != 8 {
		t.Fatalf("unexpected curve %+v", got)
	}
}

func TestMeasurePerformance(t *testing.T) {
	records := []domain.DeliveryRecord{
		{Project: "C9081", Quantity: 3, Week: "21", Year: "2025"},
		{Project: "C9081", Quantity: 3, Week: "21", Year: "2025"},
		{Project: "c9081", Quantity: 1, Week: "22", Year: "2025"},
		{Project: "C9081", Quantity: 8, Week: "50", Year: "2024"},
		{Project: "C9081", Quantity: 99, Week: "", Year: "2025"},
		{Project: "C1000", Quantity: 5, Week: "21", Year: "2025"},
	}
	got, ok := MeasurePerformance(records, "C9081", DefaultTargetProductivity)
	if !ok {
		t.Fatal("expected performance")
	}
	want := Performance{
		Project: "C9081",
		Weekly: []WeekPerformance{
			{Year: 2024, Week: 50, QtyDelivered: 8, NTH: 1, Productivity: 8, Status: "met"},
			{Year: 2025, Week: 21, QtyDelivered: 6, NTH: 2, Productivity: 3, Status: "met"},
			{Year: 2025, Week: 22, QtyDelivered: 1, NTH: 1, Productivity: 1, Status: "missed"},
		},
		TotalWeeks:         3,
		WeeksMetTarget:     2,
		WeeksMissed:        1,
		SuccessRate:        66.7,
		TargetProductivity: 3,
		CurrentPace:        3.75,
		AvgProductivity:    4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MeasurePerformance mismatch (-want +got):\n%s", diff)
	}

	if _, ok := MeasurePerformance(records, "C7777", 3); ok {
		t.Fatal("expected no performance for an unknown project")
	}
}

func TestMeasurePerformancePaceUsesLatestWeeks(t *testing.T) {
	var records []domain.DeliveryRecord
	// one slow early week followed by twelve weeks at 2 per NTH
	records = append(records, domain.DeliveryRecord{Project: "C1", Quantity: 0, Week: "1", Year: "2025"})
	for w := 2; w <= 13; w++ {
		records = append(records, domain.DeliveryRecord{Project: "C1", Quantity: 2, Week: strconv.Itoa(w), Year: "2025"})
	}
	got, ok := MeasurePerformance(records, "C1", 2)
	if !ok {
		t.Fatal("expected performance")
	}
	if got.CurrentPace != 2 || got.TotalWeeks != 13 || got.WeeksMissed != 1 {
		t.Fatalf("unexpected performance %+v", got)
	}
}

func TestRecoveryPath(t *testing.T) {
	twenty, minusThirty := 20.0, -30.0
	cases := []struct {
		name           string
		target, actual float64
		remaining      int
		current        float64
		want           Recovery
	}{
		{"behind", 100, 40, 10, 3, Recovery{RequiredWeekly: 6, RequiredProductivity: 6, WeeksToComplete: &twenty}},
		{"stalled", 100, 40, 10, 0, Recovery{RequiredWeekly: 6, RequiredProductivity: 6}},
		{"already past target", 10, 40, 5, 1, Recovery{RequiredWeekly: -6, RequiredProductivity: -6, OnTrack: true, WeeksToComplete: &minusThirty}},
		{"deadline passed and met", 100, 100, 0, 0, Recovery{OnTrack: true}},
		{"deadline passed and missed", 100, 90, -3, 5, Recovery{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RecoveryPath(tc.target, tc.actual, tc.remaining, tc.current)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("RecoveryPath mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjectCodes(t *testing.T) {
	want := []string{"C1000", "C9081", "CBM"}
	if diff := cmp.Diff(want, ProjectCodes(deliveries())); diff != "" {
		t.Fatalf("ProjectCodes mismatch (-want +got):\n%s", diff)
	}
	if got := TotalQuantity(deliveries(), "c9081"); got != 5 {
		t.Fatalf("TotalQuantity = %v, want 5", got)
	}
}

func yearlyRecords() []domain.DeliveryRecord {
	return []domain.DeliveryRecord{
		{Project: "C1", Quantity: 10, Week: "3", Year: "2022"},
		{Project: "C1", Quantity: 20, Week: "8", Year: "2023"},
		{Project: "C1", Quantity: 25, Week: "8", Year: "2024"},
		{Project: "C1", Quantity: 5, Week: "9", Year: "2024"},
		{Project: "C1", Quantity: 4, Week: "9", Year: "n/a"},
	}
}

func TestBuildCumulativeProgress(t *testing.T) {
	got, ok := BuildCumulativeProgress(yearlyRecords(), "C1", CumulativeOptions{
		TargetQty: 150, StartYear: 2022, EndYear: 2026, CurrentYear: 2025,
	})
	if !ok {
		t.Fatal("expected cumulative progress")
	}
	f := func(v float64) *float64 { return &v }
	finish := "2028-07-01"
	want := CumulativeProgress{
		Points: []YearPoint{
			{Year: 2022, Plan: 30, Actual: f(10)},
			{Year: 2023, Plan: 60, Actual: f(30)},
			{Year: 2024, Plan: 90, Actual: f(60), Recovery: f(60), Projected: f(60)},
			{Year: 2025, Plan: 120, Recovery: f(105), Projected: f(80)},
			{Year: 2026, Plan: 150, Recovery: f(150), Projected: f(100)},
		},
		Metrics: CumulativeMetrics{
			CurrentPace:     20,
			RequiredSpeed:   45,
			ProjectedFinish: &finish,
			TotalActual:     60,
			TargetQty:       150,
			StartYear:       2022,
			EndYear:         2026,
			CurrentYear:     2025,
			LastActualYear:  2024,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildCumulativeProgress mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCumulativeProgressDefaults(t *testing.T) {
	got, ok := BuildCumulativeProgress(yearlyRecords(), "c1", CumulativeOptions{CurrentYear: 2025, StartYear: 2020})
	if !ok {
		t.Fatal("expected cumulative progress")
	}
	m := got.Metrics
	if m.TargetQty != 72 || m.EndYear != 2028 || m.StartYear != 2020 || !m.OnTrack {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if len(got.Points) != 9 {
		t.Fatalf("expected 9 yearly points, got %d", len(got.Points))
	}
	// years before the first delivery start from zero
	for _, pt := range got.Points[:2] {
		if pt.Actual == nil || *pt.Actual != 0 {
			t.Fatalf("expected zero actual for %d, got %+v", pt.Year, pt)
		}
	}

	if _, ok := BuildCumulativeProgress(yearlyRecords(), "C2", CumulativeOptions{}); ok {
		t.Fatal("expected no progress for an unknown project")
	}
}
