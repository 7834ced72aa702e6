// Package grading holds the pure grade arithmetic shared by the service
// layer, the report exporter and the assistant tools: weighted averages,
// bimester rollups with a manual final override, and curriculum coverage.
//
// Every function here is a total function of its arguments. Inputs are
// expected to be validated upstream (scores in [0,10], weights >= 0).
package grading

// Weighted is the minimal assessment descriptor needed to average scores.
type Weighted struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// TotalWeight sums the configured weights of the assessments.
func TotalWeight(assessments []Weighted) float64 {
	total := 0.0
	for _, a := range assessments {
		total += a.Weight
	}
	return total
}

// WeightedAverage averages the student's scores over the assessments.
// An assessment without a score counts as zero but keeps its weight in
// the denominator.
func WeightedAverage(scores map[string]float64, assessments []Weighted) float64 {
	return WeightedAverageWithTotal(scores, assessments, TotalWeight(assessments))
}

// WeightedAverageWithTotal is WeightedAverage with a precomputed total
// weight, used when the same assessment set is averaged for many students.
func WeightedAverageWithTotal(scores map[string]float64, assessments []Weighted, totalWeight float64) float64 {
	if totalWeight == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range assessments {
		sum += scores[a.ID] * a.Weight
	}
	return sum / totalWeight
}
