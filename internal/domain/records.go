package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	ShiftDay   = "Day"
	ShiftNight = "Night"
)

// LeaveCategories is the fixed, ordered set of leave kinds on a shift.
var LeaveCategories = []string{"AL", "SH", "SL", "RD", "Training"}

// RoleKeys is the fixed, ordered set of EPIC safety roles.
var RoleKeys = []string{"CP_P", "CP_T", "AP_E", "SPC", "HSM", "NP"}

// DeliveryRecord is one row of program progress.
type DeliveryRecord struct {
	FullDate string  `json:"FullDate"` // as printed, e.g. "Mon 19/5"
	Project  string  `json:"Project"`  // C#### code, job keyword, or empty
	Quantity float64 `json:"Qty Delivered"`
	Week     string  `json:"Week"`
	Year     string  `json:"Year"`
	Line     string  `json:"Line"`
}

// RoleAssignment maps EPIC roles to the names holding them on one job.
// Names keep source order and duplicates.
type RoleAssignment struct {
	EpicRaw string   `json:"EPIC"`
	CPP     []string `json:"CP_P"`
	CPT     []string `json:"CP_T"`
	APE     []string `json:"AP_E"`
	SPC     []string `json:"SPC"`
	HSM     []string `json:"HSM"`
	NP      []string `json:"NP"`
}

// NewRoleAssignment returns an assignment with every role list empty.
func NewRoleAssignment() RoleAssignment {
	return RoleAssignment{
		CPP: []string{},
		CPT: []string{},
		APE: []string{},
		SPC: []string{},
		HSM: []string{},
		NP:  []string{},
	}
}

func (r *RoleAssignment) slot(key string) *[]string {
	switch key {
	case "CP_P":
		return &r.CPP
	case "CP_T":
		return &r.CPT
	case "AP_E":
		return &r.APE
	case "SPC":
		return &r.SPC
	case "HSM":
		return &r.HSM
	case "NP":
		return &r.NP
	}
	return nil
}

// Add appends names to role key. Unknown keys are ignored.
func (r *RoleAssignment) Add(key string, names ...string) {
	if s := r.slot(key); s != nil {
		*s = append(*s, names...)
	}
}

// Names returns the names recorded for role key.
func (r RoleAssignment) Names(key string) []string {
	if s := r.slot(key); s != nil {
		return *s
	}
	return nil
}

// JobEntry is one unit of work within a shift.
type JobEntry struct {
	Type         string         `json:"type"`
	ProjectCode  string         `json:"project_code"`
	Description  string         `json:"description"`
	Qty          float64        `json:"qty"`
	DoneByRaw    string         `json:"done_by_raw"`
	TeamCounts   map[string]int `json:"team_counts"`
	WorkerNames  []string       `json:"worker_names"`
	TotalWorkers int            `json:"total_workers"`
	Roles        RoleAssignment `json:"roles"`
}

// ShiftRecord is one (date, shift) unit of workforce activity.
type ShiftRecord struct {
	Date             string              `json:"date"`
	DayOfWeek        string              `json:"day_of_week"`
	Shift            string              `json:"shift"`
	Week             string              `json:"week"`
	Year             string              `json:"year"`
	Jobs             []JobEntry          `json:"jobs"`
	OnDutyNames      []string            `json:"on_duty_names"`
	OnDutyTeamCounts map[string]int      `json:"on_duty_team_counts"`
	Apprentices      []string            `json:"apprentices"`
	TermLabourCount  int                 `json:"term_labour_count"`
	Leave            map[string][]string `json:"leave"`
}

// NewShiftRecord opens a record with empty attendance and every leave category present.
func NewShiftRecord(date, day, shift, week, year string) ShiftRecord {
	leave := make(map[string][]string, len(LeaveCategories))
	for _, cat := range LeaveCategories {
		leave[cat] = []string{}
	}
	return ShiftRecord{
		Date:             date,
		DayOfWeek:        day,
		Shift:            shift,
		Week:             week,
		Year:             year,
		Jobs:             []JobEntry{},
		OnDutyNames:      []string{},
		OnDutyTeamCounts: map[string]int{},
		Apprentices:      []string{},
		Leave:            leave,
	}
}

// TotalJobs counts jobs across records.
func TotalJobs(records []ShiftRecord) int {
	n := 0
	for _, r := range records {
		n += len(r.Jobs)
	}
	return n
}

var weekDigitsRe = regexp.MustCompile(`\d+`)

// YearWeek builds the "<year>-W<2-digit week>" bucket key. It returns "" when
// either part has no digits.
func YearWeek(year, week string) string {
	w := weekDigitsRe.FindString(week)
	y := weekDigitsRe.FindString(year)
	if w == "" || y == "" {
		return ""
	}
	n, err := strconv.Atoi(w)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s-W%02d", y, n)
}

var fullDateRe = regexp.MustCompile(`^([A-Za-z]{3})[A-Za-z]*\s+(.*)$`)

// SplitFullDate separates a "Mon 19/5" cell into its weekday prefix and date part.
func SplitFullDate(full string) (day, date string) {
	full = strings.TrimSpace(full)
	if m := fullDateRe.FindStringSubmatch(full); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", full
}

// ParseFullDate resolves a "Mon 19/5" cell against the report year.
func ParseFullDate(full, year string) (time.Time, bool) {
	_, date := SplitFullDate(full)
	if date == "" || year == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2/1/2006", date+"/"+year)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
