package grading

import (
	"sort"
	"strings"
)

// CoverageReport compares expected curriculum codes with the codes taught
// in lessons and evaluated in assessments.
type CoverageReport struct {
	Expected           []string `json:"expected"`
	CoveredLessons     []string `json:"covered_lessons"`
	CoveredAssessments []string `json:"covered_assessments"`
	TotalCovered       []string `json:"total_covered"`
	Missing            []string `json:"missing"`
	CoveragePercentage float64  `json:"coverage_percentage"`
}

type codeSet map[string]struct{}

// ParseCodes splits a comma-separated code list into trimmed upper-case tokens.
func ParseCodes(raw string) []string {
	return newCodeSet(raw).sorted()
}

// Coverage builds the coverage report. Each input entry may hold a single
// code or a comma-separated list. Codes outside the expected set are
// reported as covered but never move the percentage.
func Coverage(expected, lessonCodes, assessmentCodes []string) CoverageReport {
	expectedSet := newCodeSet(expected...)
	lessons := newCodeSet(lessonCodes...)
	assessments := newCodeSet(assessmentCodes...)

	total := make(codeSet, len(lessons)+len(assessments))
	total.add(lessons)
	total.add(assessments)

	missing := make(codeSet)
	relevant := 0
	for code := range expectedSet {
		if _, ok := total[code]; ok {
			relevant++
			continue
		}
		missing[code] = struct{}{}
	}

	percentage := 0.0
	if len(expectedSet) > 0 {
		percentage = float64(relevant) / float64(len(expectedSet)) * 100
	}

	return CoverageReport{
		Expected:           expectedSet.sorted(),
		CoveredLessons:     lessons.sorted(),
		CoveredAssessments: assessments.sorted(),
		TotalCovered:       total.sorted(),
		Missing:            missing.sorted(),
		CoveragePercentage: percentage,
	}
}

func newCodeSet(raws ...string) codeSet {
	set := make(codeSet)
	for _, raw := range raws {
		for _, part := range strings.Split(raw, ",") {
			code := strings.ToUpper(strings.TrimSpace(part))
			if code != "" {
				set[code] = struct{}{}
			}
		}
	}
	return set
}

func (s codeSet) add(other codeSet) {
	for code := range other {
		s[code] = struct{}{}
	}
}

func (s codeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for code := range s {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
