package alerts

import (
	"strconv"
	"strings"
)

// LineMetrics is the per-line flow summary the rule engine evaluates. The
// API layer fills it from the latest flow-gap and hiding analyses.
type LineMetrics struct {
	Line                 string  `json:"line"`
	TotalHeldUnits       int     `json:"total_held_units"`
	WorstEfficiency      float64 `json:"worst_efficiency"`
	CriticalFlowCount    int     `json:"critical_flow_count"`
	WIPCount             int     `json:"wip_count"`
	SuspiciousPercentage float64 `json:"suspicious_percentage"`
	BatchCount           int     `json:"batch_count"`
	MaxDelayHours        float64 `json:"max_delay_hours"`
}

// evalCondition evaluates a rule condition string against line metrics.
//
// Supported expressions (field operator value):
//
//	total_held_units > 10
//	worst_efficiency < 70
//	critical_flow_count > 0
//	wip_count > 50
//	suspicious_percentage > 25
//	batch_count > 1
//	max_delay_hours > 6
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, m LineMetrics) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	v, ok := numericField(field, m)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the metrics.
func numericField(field string, m LineMetrics) (float64, bool) {
	switch field {
	case "total_held_units":
		return float64(m.TotalHeldUnits), true
	case "worst_efficiency":
		return m.WorstEfficiency, true
	case "critical_flow_count":
		return float64(m.CriticalFlowCount), true
	case "wip_count":
		return float64(m.WIPCount), true
	case "suspicious_percentage":
		return m.SuspiciousPercentage, true
	case "batch_count":
		return float64(m.BatchCount), true
	case "max_delay_hours":
		return m.MaxDelayHours, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
