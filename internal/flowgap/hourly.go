package flowgap

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
)

// HourFlow is one active hour of a day's flow analysis.
type HourFlow struct {
	Hour             int                 `json:"hour"`
	StationCounts    map[string]int      `json:"station_completions"`
	FlowGaps         map[string]PairFlow `json:"flow_gaps"`
	HeldUnitsTotal   int                 `json:"held_units_total"`
	WorstBottleneck  string              `json:"worst_bottleneck"`
	CriticalFlows    []Bottleneck        `json:"critical_flows"`
	EfficiencyIssues []Bottleneck        `json:"efficiency_issues"`
}

// DayFlow is an hour-by-hour view of one calendar day, keyed "HH:00". Only
// hours with terminal output or held units appear.
type DayFlow struct {
	Date  string              `json:"date"`
	Hours map[string]HourFlow `json:"hours"`
}

// HourKeys returns the day's hour labels in ascending order.
func (d DayFlow) HourKeys() []string {
	keys := make([]string, 0, len(d.Hours))
	for k := range d.Hours {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AnalyzeDay runs the flow analysis for every hour of day and keeps only the
// hours that saw terminal completions or held units.
func (a *Analyzer) AnalyzeDay(visits []event.Visit, day time.Time) (DayFlow, error) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	out := DayFlow{
		Date:  midnight.Format("2006-01-02"),
		Hours: make(map[string]HourFlow),
	}
	terminal := a.chain.Terminal()

	for hour := 0; hour < 24; hour++ {
		start := midnight.Add(time.Duration(hour) * time.Hour)
		end := start.Add(time.Hour)

		an, err := a.Analyze(visits, start, end)
		if err != nil {
			return DayFlow{}, err
		}
		if an.StationCounts[terminal] == 0 && an.Summary.TotalHeldUnits == 0 {
			continue
		}
		out.Hours[fmt.Sprintf("%02d:00", hour)] = HourFlow{
			Hour:             hour,
			StationCounts:    an.StationCounts,
			FlowGaps:         an.FlowAnalysis,
			HeldUnitsTotal:   an.Summary.TotalHeldUnits,
			WorstBottleneck:  an.Summary.WorstBottleneck,
			CriticalFlows:    an.Summary.CriticalFlows,
			EfficiencyIssues: an.Summary.TopBottlenecks,
		}
	}
	return out, nil
}
