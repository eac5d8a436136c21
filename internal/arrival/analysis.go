package arrival

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Policy thresholds for the station-level delay analysis.
const (
	heldDelayThresholdMinutes = 10.0
	lowCompletionPct          = 80.0
	highDelayPct              = 30.0
	highVariabilityCV         = 0.5
	variabilityMinSamples     = 5
	flowDisruptionUnits       = 20

	onTimePreviewLen = 5
	previewLen       = 10
)

// DelayStats summarizes delay minutes over the delayed units of a station.
type DelayStats struct {
	AvgDelayMinutes    float64 `json:"avg_delay_minutes"`
	MedianDelayMinutes float64 `json:"median_delay_minutes"`
	MaxDelayMinutes    float64 `json:"max_delay_minutes"`
	MinDelayMinutes    float64 `json:"min_delay_minutes"`
}

// UnitPreviews holds truncated per-category unit lists for display.
type UnitPreviews struct {
	OnTime       []Arrival `json:"on_time"`
	Delayed      []Arrival `json:"delayed"`
	NotCompleted []Arrival `json:"not_completed"`
	ActualUnits  []Arrival `json:"actual_units"`
	HeldUnits    []Arrival `json:"held_units"`
}

// StationAnalysis compares projected and recorded arrivals at one station,
// restricted to units whose projection fell inside the window.
type StationAnalysis struct {
	TotalExpected     int          `json:"total_expected"`
	OnTimeCount       int          `json:"on_time_count"`
	DelayedCount      int          `json:"delayed_count"`
	EarlyCount        int          `json:"early_count"`
	NotCompletedCount int          `json:"not_completed_count"`
	ActualUnitsCount  int          `json:"actual_units_count"`
	HeldUnitsCount    int          `json:"held_units_count"`
	OnTimePct         float64      `json:"on_time_percentage"`
	DelayedPct        float64      `json:"delayed_percentage"`
	CompletionRate    float64      `json:"completion_rate"`
	DelayStatistics   *DelayStats  `json:"delay_statistics"`
	DetailedUnits     UnitPreviews `json:"detailed_units"`
}

// HeldArrival is a unit held at a station: projected to arrive but either
// never recorded or recorded well past the threshold.
type HeldArrival struct {
	UnitID        string   `json:"unit_id"`
	IssueType     string   `json:"issue_type"`
	ExpectedTime  string   `json:"expected_time"`
	ActualTime    *string  `json:"actual_time"`
	DelayMinutes  *float64 `json:"delay_minutes"`
	SourceStation string   `json:"source_station"`
}

// Window is the half-open analysis interval [Start, End).
type Window struct {
	Start           time.Time `json:"-"`
	End             time.Time `json:"-"`
	StartText       string    `json:"start"`
	EndText         string    `json:"end"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// Analysis is the full expected-arrival result for one window.
type Analysis struct {
	Window             Window                     `json:"target_period"`
	CycleTimes         cycletime.PairStats        `json:"cycle_time_analysis"`
	ExpectedArrivals   map[string][]Arrival       `json:"expected_arrivals"`
	DelayAnalysis      map[string]StationAnalysis `json:"delay_analysis"`
	HeldUnitsByStation map[string][]HeldArrival   `json:"held_units_by_station"`
	Recommendations    []string                   `json:"recommendations"`
}

// Analyze walks projections for the window and rolls them up into per-station
// delay analysis, held-unit lists, and recommendations.
func (w *Walker) Analyze(visits []event.Visit, start, end time.Time) (Analysis, error) {
	arrivals, err := w.Walk(visits, start, end)
	if err != nil {
		return Analysis{}, err
	}
	delay := analyzeDelays(arrivals)
	return Analysis{
		Window: Window{
			Start:           start,
			End:             end,
			StartText:       event.FormatTime(start),
			EndText:         event.FormatTime(end),
			DurationMinutes: end.Sub(start).Minutes(),
		},
		CycleTimes:         w.ct,
		ExpectedArrivals:   arrivals,
		DelayAnalysis:      delay,
		HeldUnitsByStation: heldByStation(arrivals, heldDelayThresholdMinutes),
		Recommendations:    recommendations(delay, w.ct),
	}, nil
}

func analyzeDelays(arrivals map[string][]Arrival) map[string]StationAnalysis {
	out := make(map[string]StationAnalysis, len(arrivals))
	for station, all := range arrivals {
		var inWindow []Arrival
		for _, a := range all {
			if a.ExpectedInWindow {
				inWindow = append(inWindow, a)
			}
		}
		if len(inWindow) == 0 {
			continue
		}

		byStatus := map[string][]Arrival{}
		for _, a := range inWindow {
			byStatus[a.DelayStatus] = append(byStatus[a.DelayStatus], a)
		}
		onTime := byStatus[StatusOnTime]
		delayed := byStatus[StatusDelayed]
		early := byStatus[StatusEarly]
		notCompleted := byStatus[StatusNotCompleted]

		actual := make([]Arrival, 0, len(onTime)+len(delayed)+len(early))
		actual = append(actual, onTime...)
		actual = append(actual, delayed...)
		actual = append(actual, early...)

		total := len(inWindow)
		sa := StationAnalysis{
			TotalExpected:     total,
			OnTimeCount:       len(onTime),
			DelayedCount:      len(delayed),
			EarlyCount:        len(early),
			NotCompletedCount: len(notCompleted),
			ActualUnitsCount:  len(actual),
			HeldUnitsCount:    len(notCompleted),
			OnTimePct:         stats.Round1(float64(len(onTime)) / float64(total) * 100),
			DelayedPct:        stats.Round1(float64(len(delayed)) / float64(total) * 100),
			CompletionRate:    stats.Round1(float64(len(actual)) / float64(total) * 100),
			DetailedUnits: UnitPreviews{
				OnTime:       truncate(onTime, onTimePreviewLen),
				Delayed:      truncate(delayed, previewLen),
				NotCompleted: truncate(notCompleted, previewLen),
				ActualUnits:  truncate(actual, previewLen),
				HeldUnits:    truncate(notCompleted, previewLen),
			},
		}
		if ds := delayStats(delayed); ds != nil {
			sa.DelayStatistics = ds
		}
		out[station] = sa
	}
	return out
}

func delayStats(delayed []Arrival) *DelayStats {
	var mins []float64
	for _, a := range delayed {
		if a.DelayMinutes != nil {
			mins = append(mins, *a.DelayMinutes)
		}
	}
	if len(mins) == 0 {
		return nil
	}
	avg, _ := stats.Mean(mins)
	med, _ := stats.Median(mins)
	max, _ := stats.Max(mins)
	min, _ := stats.Min(mins)
	return &DelayStats{
		AvgDelayMinutes:    stats.Round1(avg),
		MedianDelayMinutes: stats.Round1(med),
		MaxDelayMinutes:    stats.Round1(max),
		MinDelayMinutes:    stats.Round1(min),
	}
}

// heldByStation collects, per station, the units not completed at all plus
// the units delayed by at least thresholdMinutes. Unlike the per-station
// previews this uses the full arrival lists.
func heldByStation(arrivals map[string][]Arrival, thresholdMinutes float64) map[string][]HeldArrival {
	out := make(map[string][]HeldArrival)
	for station, all := range arrivals {
		var held []HeldArrival
		for _, a := range all {
			switch {
			case a.DelayStatus == StatusNotCompleted:
				held = append(held, HeldArrival{
					UnitID:        a.UnitID,
					IssueType:     StatusNotCompleted,
					ExpectedTime:  a.ExpectedArrivalTime,
					ActualTime:    a.ActualArrivalTime,
					SourceStation: a.SourceStation,
				})
			case a.DelayStatus == StatusDelayed && a.DelayMinutes != nil && *a.DelayMinutes >= thresholdMinutes:
				held = append(held, HeldArrival{
					UnitID:        a.UnitID,
					IssueType:     StatusDelayed,
					ExpectedTime:  a.ExpectedArrivalTime,
					ActualTime:    a.ActualArrivalTime,
					DelayMinutes:  a.DelayMinutes,
					SourceStation: a.SourceStation,
				})
			}
		}
		if len(held) > 0 {
			out[station] = held
		}
	}
	return out
}

func recommendations(delay map[string]StationAnalysis, ct cycletime.PairStats) []string {
	var recs []string

	for _, station := range sortedKeys(delay) {
		sa := delay[station]
		if sa.CompletionRate < lowCompletionPct {
			recs = append(recs, fmt.Sprintf("COMPLETION ISSUE: Only %.1f%% of expected units completed %s. Investigate capacity or process issues.",
				sa.CompletionRate, station))
		} else if sa.DelayedPct > highDelayPct {
			recs = append(recs, fmt.Sprintf("DELAY ISSUE: %.1f%% of units arriving late at %s. Review upstream processes and cycle times.",
				sa.DelayedPct, station))
		}
	}

	type variable struct {
		pair string
		cv   float64
	}
	var vars []variable
	for _, key := range sortedKeys(ct) {
		s := ct[key]
		if s.SampleSize > variabilityMinSamples && s.AverageSeconds != nil && *s.AverageSeconds > 0 && s.StdDevSeconds != nil {
			cv := *s.StdDevSeconds / *s.AverageSeconds
			if cv > highVariabilityCV {
				vars = append(vars, variable{pair: key, cv: cv})
			}
		}
	}
	sort.SliceStable(vars, func(i, j int) bool { return vars[i].cv > vars[j].cv })
	if len(vars) > 3 {
		vars = vars[:3]
	}
	for _, v := range vars {
		recs = append(recs, fmt.Sprintf("CYCLE TIME VARIABILITY: %s has high variability (%.0f%%). Standardize process to improve predictability.",
			v.pair, v.cv*100))
	}

	totalHeld := 0
	for _, sa := range delay {
		totalHeld += sa.NotCompletedCount + sa.DelayedCount
	}
	if totalHeld > flowDisruptionUnits {
		recs = append(recs, fmt.Sprintf("FLOW DISRUPTION: %d units experiencing delays or holds. Implement flow monitoring and quick response procedures.",
			totalHeld))
	}

	if len(recs) == 0 {
		recs = append(recs, "CYCLE TIME PERFORMANCE: Production flow meeting cycle time expectations.")
	}
	return recs
}

func truncate(a []Arrival, n int) []Arrival {
	if len(a) > n {
		return a[:n]
	}
	return a
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
