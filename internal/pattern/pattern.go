// Package pattern holds the pure text primitives shared by the report
// extractors: line codes, project codes, filename provenance, run colour and
// numeric parsing.
package pattern

import (
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// LineCodes is the fixed set of rail line codes recognised in report text.
var LineCodes = []string{"KTL", "TCL", "AEL", "TWL", "ISL", "TKL", "EAL", "SIL", "TML", "DRL"}

var (
	lineCodeRe    = regexp.MustCompile(`\b(` + strings.Join(LineCodes, "|") + `)\b`)
	projectCodeRe = regexp.MustCompile(`\bC\d{4}\b`)
	filenameRe    = regexp.MustCompile(`(?i)PS-OHLR_DUAT_Daily Report_WK(\d{1,2})_(\d{4})\.docx$`)
	teamCountRe   = regexp.MustCompile(`S([2-5])x(\d+)`)
)

// Blue detection cutoffs. Both channels share 0x80 in historical reports.
const (
	blueMin  = 0x80
	otherMax = 0x80
)

// RGB is a foreground colour as stored on a text run.
type RGB struct {
	R, G, B uint8
}

// ExtractLineCode returns the first whole-word line code in text, or "".
// Matching is case-sensitive.
func ExtractLineCode(text string) string {
	m := lineCodeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractProjectCode returns the first word-bounded C#### code in text, or "".
// A longer digit run such as C12345 does not match.
func ExtractProjectCode(text string) string {
	return projectCodeRe.FindString(text)
}

// ExtractWeekYearFromFilename parses week and year out of a report filename.
// It returns (0, 0) when the name does not follow the report template.
func ExtractWeekYearFromFilename(name string) (int, int) {
	m := filenameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0
	}
	week, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0
	}
	return week, year
}

// IsBlueColor reports whether c is a blue shade. A nil colour is not blue.
func IsBlueColor(c *RGB) bool {
	if c == nil {
		return false
	}
	return c.B >= blueMin && c.R < otherMax && c.G < otherMax
}

// ExtractQuantity parses trimmed text as a number, falling back to 0.
func ExtractQuantity(text string) float64 {
	v, ok := ParseNumber(text)
	if !ok {
		return 0
	}
	return v
}

// ParseNumber parses trimmed text as a finite decimal float and reports
// whether it was numeric. "nan", "inf" and hex floats are not numbers here.
func ParseNumber(text string) (float64, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" || strings.ContainsAny(cleaned, "xX") {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseTeamCounts collects every SNxM team assignment in text, keyed "S2".."S5".
// A later assignment for the same team overwrites an earlier one.
func ParseTeamCounts(text string) map[string]int {
	counts := map[string]int{}
	for _, m := range teamCountRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		counts["S"+m[1]] = n
	}
	return counts
}

// HasTeamCount reports whether text carries at least one team assignment.
func HasTeamCount(text string) bool {
	return teamCountRe.MatchString(text)
}

// SplitNames splits a comma-separated list, trimming entries and dropping blanks.
func SplitNames(text string) []string {
	names := []string{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
