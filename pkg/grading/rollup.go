package grading

import "encoding/json"

const (
	// FirstPeriod and LastPeriod bound the ordinary bimesters.
	FirstPeriod = 1
	LastPeriod  = 4
	// FinalPeriod is the reserved slot holding the manual final grade.
	FinalPeriod = 5
	// PeriodCount is the fixed divisor of the calculated final grade.
	PeriodCount = LastPeriod - FirstPeriod + 1
)

// Assessment couples a weighted item with its grading period.
type Assessment struct {
	Weighted
	Period int `json:"grading_period"`
}

// PeriodRollup is one student's averages for a subject offering.
type PeriodRollup struct {
	// Periods is indexed by period-1; nil marks a period without assessments.
	Periods         [PeriodCount]*float64 `json:"-"`
	FinalCalculated float64               `json:"final_calculated"`
	FinalOverride   *float64              `json:"final_override"`
}

// Period returns the average for a bimester, nil when it is empty or out of range.
func (r PeriodRollup) Period(p int) *float64 {
	if p < FirstPeriod || p > LastPeriod {
		return nil
	}
	return r.Periods[p-FirstPeriod]
}

// Display is the grade shown to users: the override when one is recorded.
func (r PeriodRollup) Display() float64 {
	if r.FinalOverride != nil {
		return *r.FinalOverride
	}
	return r.FinalCalculated
}

// HasOverride reports whether a manual final grade is recorded.
func (r PeriodRollup) HasOverride() bool {
	return r.FinalOverride != nil
}

// MarshalJSON flattens the periods into "1".."4" keys next to the finals.
func (r PeriodRollup) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"final_calculated": r.FinalCalculated,
		"final_override":   r.FinalOverride,
		"final_display":    r.Display(),
	}
	for p := FirstPeriod; p <= LastPeriod; p++ {
		out[periodKey(p)] = r.Period(p)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a rollup written by MarshalJSON (used by the cache).
func (r *PeriodRollup) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = PeriodRollup{}
	for p := FirstPeriod; p <= LastPeriod; p++ {
		r.Periods[p-FirstPeriod] = raw[periodKey(p)]
	}
	if v := raw["final_calculated"]; v != nil {
		r.FinalCalculated = *v
	}
	r.FinalOverride = raw["final_override"]
	return nil
}

func periodKey(p int) string {
	return string(rune('0' + p))
}

// GroupByPeriod buckets assessments by grading period. Periods outside
// [1,5] are dropped.
func GroupByPeriod(assessments []Assessment) map[int][]Weighted {
	grouped := make(map[int][]Weighted, FinalPeriod)
	for _, a := range assessments {
		if a.Period < FirstPeriod || a.Period > FinalPeriod {
			continue
		}
		grouped[a.Period] = append(grouped[a.Period], a.Weighted)
	}
	return grouped
}

// Rollup computes the bimester averages, the calculated final grade and
// the manual override for one student.
//
// The calculated final always divides by four: an empty bimester
// contributes zero instead of being skipped.
func Rollup(byPeriod map[int][]Weighted, scores map[string]float64) PeriodRollup {
	var result PeriodRollup
	sum := 0.0
	for p := FirstPeriod; p <= LastPeriod; p++ {
		items := byPeriod[p]
		if len(items) == 0 {
			continue
		}
		avg := WeightedAverage(scores, items)
		result.Periods[p-FirstPeriod] = &avg
		sum += avg
	}
	result.FinalCalculated = sum / PeriodCount

	for _, final := range byPeriod[FinalPeriod] {
		if v, ok := scores[final.ID]; ok {
			override := v
			result.FinalOverride = &override
			break
		}
	}
	return result
}

// RollupAll computes rollups for many students sharing one assessment set.
func RollupAll(byPeriod map[int][]Weighted, scoresByStudent map[string]map[string]float64) map[string]PeriodRollup {
	results := make(map[string]PeriodRollup, len(scoresByStudent))
	for studentID, scores := range scoresByStudent {
		results[studentID] = Rollup(byPeriod, scores)
	}
	return results
}
