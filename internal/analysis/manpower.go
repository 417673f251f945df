package analysis

import (
	"sort"
	"strconv"

	"duat/internal/domain"
)

// Headcount is the attendance of one shift record.
type Headcount struct {
	Date            string         `json:"date"`
	DayOfWeek       string         `json:"day_of_week"`
	Week            string         `json:"week"`
	Year            string         `json:"year"`
	Shift           string         `json:"shift"`
	Headcount       int            `json:"headcount"`
	NamedCount      int            `json:"named_count"`
	ApprenticeCount int            `json:"apprentice_count"`
	TermLabourCount int            `json:"term_labour_count"`
	TeamCounts      map[string]int `json:"team_counts"`
}

// DailyHeadcount sums named staff, apprentices, term labour and on-duty team
// sizes for each record.
func DailyHeadcount(records []domain.ShiftRecord) []Headcount {
	out := make([]Headcount, 0, len(records))
	for _, r := range records {
		teams := make(map[string]int, len(r.OnDutyTeamCounts))
		total := 0
		for id, n := range r.OnDutyTeamCounts {
			teams[id] = n
			total += n
		}
		out = append(out, Headcount{
			Date:            r.Date,
			DayOfWeek:       r.DayOfWeek,
			Week:            r.Week,
			Year:            r.Year,
			Shift:           r.Shift,
			Headcount:       len(r.OnDutyNames) + len(r.Apprentices) + r.TermLabourCount + total,
			NamedCount:      len(r.OnDutyNames),
			ApprenticeCount: len(r.Apprentices),
			TermLabourCount: r.TermLabourCount,
			TeamCounts:      teams,
		})
	}
	return out
}

// WeekTeams is the job-level team allocation of one week.
type WeekTeams struct {
	Week  string         `json:"week"`
	Teams map[string]int `json:"teams"`
	Total int            `json:"total"`
}

// TeamDistribution totals job team counts per week, ordered by week number.
// Weeks without a number sort last.
func TeamDistribution(records []domain.ShiftRecord) []WeekTeams {
	byWeek := make(map[string]*WeekTeams)
	for _, r := range records {
		for _, job := range r.Jobs {
			if len(job.TeamCounts) == 0 {
				continue
			}
			w, ok := byWeek[r.Week]
			if !ok {
				w = &WeekTeams{Week: r.Week, Teams: map[string]int{}}
				byWeek[r.Week] = w
			}
			for id, n := range job.TeamCounts {
				w.Teams[id] += n
				w.Total += n
			}
		}
	}

	out := make([]WeekTeams, 0, len(byWeek))
	for _, w := range byWeek {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return weekLess(out[i].Week, out[j].Week) })
	return out
}

func weekLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// JobTypeStats averages crew size and role coverage for one job type.
type JobTypeStats struct {
	TotalJobs     int                `json:"total_jobs"`
	TotalWorkers  int                `json:"total_workers"`
	AvgWorkers    float64            `json:"avg_workers"`
	AvgTeamCounts map[string]float64 `json:"avg_team_counts"`
	AvgRoles      map[string]float64 `json:"avg_roles"`
}

// JobTypeManpower groups jobs by type. Averages are rounded to one decimal.
func JobTypeManpower(records []domain.ShiftRecord) map[string]JobTypeStats {
	type sums struct {
		jobs, workers int
		teams, roles  map[string]int
	}
	byType := make(map[string]*sums)
	for _, r := range records {
		for _, job := range r.Jobs {
			s, ok := byType[job.Type]
			if !ok {
				s = &sums{teams: map[string]int{}, roles: map[string]int{}}
				byType[job.Type] = s
			}
			s.jobs++
			s.workers += job.TotalWorkers
			for id, n := range job.TeamCounts {
				s.teams[id] += n
			}
			for _, key := range domain.RoleKeys {
				s.roles[key] += len(job.Roles.Names(key))
			}
		}
	}

	out := make(map[string]JobTypeStats, len(byType))
	for kind, s := range byType {
		n := float64(s.jobs)
		stats := JobTypeStats{
			TotalJobs:     s.jobs,
			TotalWorkers:  s.workers,
			AvgWorkers:    round(float64(s.workers)/n, 1),
			AvgTeamCounts: make(map[string]float64, len(s.teams)),
			AvgRoles:      make(map[string]float64, len(s.roles)),
		}
		for id, v := range s.teams {
			stats.AvgTeamCounts[id] = round(float64(v)/n, 1)
		}
		for key, v := range s.roles {
			stats.AvgRoles[key] = round(float64(v)/n, 1)
		}
		out[kind] = stats
	}
	return out
}

// RoleCount is how often one person filled each EPIC role.
type RoleCount struct {
	Name  string `json:"name"`
	CPP   int    `json:"CP_P"`
	CPT   int    `json:"CP_T"`
	APE   int    `json:"AP_E"`
	SPC   int    `json:"SPC"`
	HSM   int    `json:"HSM"`
	NP    int    `json:"NP"`
	Total int    `json:"total"`
}

func (c *RoleCount) add(key string) {
	switch key {
	case "CP_P":
		c.CPP++
	case "CP_T":
		c.CPT++
	case "AP_E":
		c.APE++
	case "SPC":
		c.SPC++
	case "HSM":
		c.HSM++
	case "NP":
		c.NP++
	default:
		return
	}
	c.Total++
}

// RoleFrequency counts role assignments per person, most assigned first and
// then by name.
func RoleFrequency(records []domain.ShiftRecord) []RoleCount {
	byName := make(map[string]*RoleCount)
	for _, r := range records {
		for _, job := range r.Jobs {
			for _, key := range domain.RoleKeys {
				for _, name := range job.Roles.Names(key) {
					if name == "" {
						continue
					}
					c, ok := byName[name]
					if !ok {
						c = &RoleCount{Name: name}
						byName[name] = c
					}
					c.add(key)
				}
			}
		}
	}

	out := make([]RoleCount, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Work access categories.
const (
	AccessPossession = "Possession"
	AccessPA         = "PA work"
	AccessSPA        = "SPA work"
	AccessOther      = "Other"
)

// AccessStats summarises the jobs of one access category.
type AccessStats struct {
	Count      int     `json:"count"`
	AvgWorkers float64 `json:"avg_workers"`
	AvgAPs     float64 `json:"avg_aps"`
	AvgSPCs    float64 `json:"avg_spcs"`
	AvgHSMs    float64 `json:"avg_hsms"`
}

// accessOf classifies a job. A CP(P) holder marks a possession: an
// engineering train inside an isolated zone.
func accessOf(job domain.JobEntry) string {
	switch {
	case job.Type == AccessSPA:
		return AccessSPA
	case job.Type == AccessPA:
		return AccessPA
	case len(job.Roles.CPP) > 0:
		return AccessPossession
	}
	return AccessOther
}

// WorkAccess groups jobs by access category. Empty categories are left out.
func WorkAccess(records []domain.ShiftRecord) map[string]AccessStats {
	type sums struct{ count, workers, aps, spcs, hsms int }
	byCat := make(map[string]*sums)
	for _, r := range records {
		for _, job := range r.Jobs {
			cat := accessOf(job)
			s, ok := byCat[cat]
			if !ok {
				s = &sums{}
				byCat[cat] = s
			}
			s.count++
			s.workers += job.TotalWorkers
			s.aps += len(job.Roles.APE)
			s.spcs += len(job.Roles.SPC)
			s.hsms += len(job.Roles.HSM)
		}
	}

	out := make(map[string]AccessStats, len(byCat))
	for cat, s := range byCat {
		n := float64(s.count)
		out[cat] = AccessStats{
			Count:      s.count,
			AvgWorkers: round(float64(s.workers)/n, 1),
			AvgAPs:     round(float64(s.aps)/n, 1),
			AvgSPCs:    round(float64(s.spcs)/n, 1),
			AvgHSMs:    round(float64(s.hsms)/n, 1),
		}
	}
	return out
}

// PersonStats is one person's duty and role tally.
type PersonStats struct {
	Name       string `json:"name"`
	DutyDays   int    `json:"duty_days"`
	RolesTotal int    `json:"roles_total"`
}

// IndividualStats counts on-duty records and role assignments per person,
// most duty days first and then by name.
func IndividualStats(records []domain.ShiftRecord) []PersonStats {
	byName := make(map[string]*PersonStats)
	get := func(name string) *PersonStats {
		p, ok := byName[name]
		if !ok {
			p = &PersonStats{Name: name}
			byName[name] = p
		}
		return p
	}
	for _, r := range records {
		for _, name := range r.OnDutyNames {
			if name != "" {
				get(name).DutyDays++
			}
		}
		for _, job := range r.Jobs {
			for _, key := range domain.RoleKeys {
				for _, name := range job.Roles.Names(key) {
					if name != "" {
						get(name).RolesTotal++
					}
				}
			}
		}
	}

	out := make([]PersonStats, 0, len(byName))
	for _, p := range byName {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DutyDays != out[j].DutyDays {
			return out[i].DutyDays > out[j].DutyDays
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NoRoleHolder is reported when no job names any role holder.
const NoRoleHolder = "N/A"

// KPIs are the headline manpower numbers.
type KPIs struct {
	TotalJobs          int     `json:"total_jobs"`
	AvgWorkersPerJob   float64 `json:"avg_workers_per_job"`
	UniqueStaffCount   int     `json:"unique_staff_count"`
	TopRoleHolder      string  `json:"top_role_holder"`
	TopRoleHolderCount int     `json:"top_role_holder_count"`
}

// SummaryKPIs computes the headline numbers. Unique staff counts distinct
// names from on-duty lists, apprentices and job worker lists.
func SummaryKPIs(records []domain.ShiftRecord) KPIs {
	kpis := KPIs{TopRoleHolder: NoRoleHolder}
	workers := 0
	staff := make(map[string]struct{})
	addAll := func(names []string) {
		for _, n := range names {
			if n != "" {
				staff[n] = struct{}{}
			}
		}
	}
	for _, r := range records {
		addAll(r.OnDutyNames)
		addAll(r.Apprentices)
		for _, job := range r.Jobs {
			kpis.TotalJobs++
			workers += job.TotalWorkers
			addAll(job.WorkerNames)
		}
	}
	if kpis.TotalJobs > 0 {
		kpis.AvgWorkersPerJob = round(float64(workers)/float64(kpis.TotalJobs), 1)
	}
	kpis.UniqueStaffCount = len(staff)
	if freq := RoleFrequency(records); len(freq) > 0 {
		kpis.TopRoleHolder = freq[0].Name
		kpis.TopRoleHolderCount = freq[0].Total
	}
	return kpis
}

// TopRoleHolders caps the role frequency list in a ManpowerReport.
const TopRoleHolders = 20

// ManpowerReport bundles the manpower dashboard figures.
type ManpowerReport struct {
	KPIs             KPIs                    `json:"kpis"`
	JobTypeManpower  map[string]JobTypeStats `json:"job_type_manpower"`
	RoleFrequency    []RoleCount             `json:"role_frequency"`
	TeamDistribution []WeekTeams             `json:"team_distribution"`
	WorkAccess       map[string]AccessStats  `json:"work_access"`
}

// Manpower computes every manpower summary for records.
func Manpower(records []domain.ShiftRecord) ManpowerReport {
	freq := RoleFrequency(records)
	if len(freq) > TopRoleHolders {
		freq = freq[:TopRoleHolders]
	}
	return ManpowerReport{
		KPIs:             SummaryKPIs(records),
		JobTypeManpower:  JobTypeManpower(records),
		RoleFrequency:    freq,
		TeamDistribution: TeamDistribution(records),
		WorkAccess:       WorkAccess(records),
	}
}
