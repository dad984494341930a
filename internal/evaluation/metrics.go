package evaluation

import "math"

// Metrics counts final statuses
type Metrics struct {
	Total         int
	Success       int
	Clarification int
	Errors        int
}

// Report is the rounded summary of a run
type Report struct {
	TotalTests        int     `json:"total_tests"`
	SuccessRate       float64 `json:"success_rate"`
	ClarificationRate float64 `json:"clarification_rate"`
	ErrorRate         float64 `json:"error_rate"`
}

// Update counts one final status. Anything that is neither success nor a
// clarification request is an error.
func (m *Metrics) Update(status string) {
	m.Total++
	switch status {
	case "success":
		m.Success++
	case "needs_clarification":
		m.Clarification++
	default:
		m.Errors++
	}
}

// Report returns the rates rounded to two decimals; an empty run reports zeros
func (m *Metrics) Report() Report {
	r := Report{TotalTests: m.Total}
	if m.Total == 0 {
		return r
	}
	total := float64(m.Total)
	r.SuccessRate = round2(float64(m.Success) / total)
	r.ClarificationRate = round2(float64(m.Clarification) / total)
	r.ErrorRate = round2(float64(m.Errors) / total)
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
