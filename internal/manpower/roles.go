package manpower

import (
	"regexp"
	"strings"

	"duat/internal/domain"
	"duat/internal/pattern"
)

// roleLabels pairs each EPIC label grammar with its role key, in RoleKeys order.
var roleLabels = []struct {
	expr string
	key  string
}{
	{`CP\s*\(\s*P\s*\)`, "CP_P"},
	{`CP\s*\(\s*T\s*\)`, "CP_T"},
	{`AP\s*\(\s*E\s*\)`, "AP_E"},
	{`SPC`, "SPC"},
	{`HSM`, "HSM"},
	{`NP`, "NP"},
}

// roleLabelRe matches any label followed by a colon; group i+1 is roleLabels[i].
var roleLabelRe = func() *regexp.Regexp {
	alts := make([]string, len(roleLabels))
	for i, l := range roleLabels {
		alts[i] = "(" + l.expr + ")"
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)\s*:`)
}()

// ParseRoles reads "CP(P): John, Mary  AP(E): Tom" style assignments. The
// names for a label are the first non-blank line after its colon, which may
// start on the following line. That line only counts when nothing but
// whitespace separates it from the next label or the end of the text. The
// trimmed input is kept verbatim as the EPIC text.
func ParseRoles(text string) domain.RoleAssignment {
	roles := domain.NewRoleAssignment()
	if strings.TrimSpace(text) == "" {
		return roles
	}
	roles.EpicRaw = strings.TrimSpace(text)

	matches := roleLabelRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segment := strings.TrimLeft(text[m[1]:end], " \t\r\n")
		if nl := strings.IndexByte(segment, '\n'); nl >= 0 {
			if strings.TrimSpace(segment[nl:]) != "" {
				continue
			}
			segment = segment[:nl]
		}
		names := pattern.SplitNames(segment)
		if len(names) == 0 {
			continue
		}
		roles.Add(roleLabels[labelIndex(m)].key, names...)
	}
	return roles
}

// labelIndex maps a submatch index slice to the roleLabels entry that matched.
func labelIndex(m []int) int {
	for i := range roleLabels {
		if m[2*(i+1)] >= 0 {
			return i
		}
	}
	return len(roleLabels) - 1
}
