package export

import "strconv"

// Score formats a grade with two decimals.
func Score(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// OptionalScore formats a grade, leaving the cell empty when it is absent.
func OptionalScore(v *float64) string {
	if v == nil {
		return ""
	}
	return Score(*v)
}

// Percent formats a percentage with one decimal and a trailing sign.
func Percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
