package flowgap

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Severity classification of a flow uses fixed policy thresholds, not values
// derived from the data.
const (
	criticalHeldUnits     = 10
	criticalEfficiencyPct = 80.0

	highVolumeHeldUnits  = 20
	severeEfficiencyPct  = 60.0
	urgentEfficiencyPct  = 70.0
	topBottleneckListLen = 3
)

// PairFlow describes one adjacent stage pair inside the analysis window.
type PairFlow struct {
	CurrentStation     string  `json:"current_station"`
	NextStation        string  `json:"next_station"`
	CurrentCompletions int     `json:"current_station_completions"`
	NextCompletions    int     `json:"next_station_completions"`
	HeldUnitsCount     int     `json:"held_units_count"`
	FlowEfficiency     float64 `json:"flow_efficiency"`
}

// HeldUnit is a unit that completed the upstream station inside the window
// but did not complete the downstream station in the same window.
type HeldUnit struct {
	UnitID             string  `json:"unit_id"`
	CompletedStation   string  `json:"completed_station"`
	CompletionTime     string  `json:"completion_time"`
	NextStationStatus  string  `json:"next_station_status"`
	NextCompletionTime *string `json:"next_completion_time"`
	HoldingLocation    string  `json:"holding_location"`
}

// Bottleneck is a flow pair ranked by how many units it is holding.
type Bottleneck struct {
	Flow           string  `json:"flow"`
	CurrentStation string  `json:"current_station"`
	NextStation    string  `json:"next_station"`
	HeldUnits      int     `json:"held_units"`
	Efficiency     float64 `json:"efficiency"`
}

// Summary rolls the per-pair flows up into the numbers a line supervisor
// reacts to.
type Summary struct {
	TotalHeldUnits  int            `json:"total_held_units"`
	WorstBottleneck string         `json:"worst_bottleneck"`
	WorstEfficiency float64        `json:"worst_efficiency"`
	BottleneckCount int            `json:"bottleneck_count"`
	TopBottlenecks  []Bottleneck   `json:"top_bottlenecks"`
	StationCounts   map[string]int `json:"station_completions"`
	CriticalFlows   []Bottleneck   `json:"critical_flows"`
}

// Analysis is the full flow-gap result for one time window.
type Analysis struct {
	Window          Window                `json:"target_period"`
	StationCounts   map[string]int        `json:"station_completions"`
	FlowAnalysis    map[string]PairFlow   `json:"flow_analysis"`
	HeldUnits       map[string][]HeldUnit `json:"held_units"`
	Summary         Summary               `json:"flow_summary"`
	WIP             map[string][]WIPUnit  `json:"wip_analysis"`
	HidingLocations []HidingLocation      `json:"hiding_locations"`
	Recommendations []string              `json:"recommendations"`
}

// Window is the half-open analysis interval [Start, End).
type Window struct {
	Start           time.Time `json:"-"`
	End             time.Time `json:"-"`
	StartText       string    `json:"start"`
	EndText         string    `json:"end"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// Analyzer computes station-to-station flow gaps over a configured chain.
type Analyzer struct {
	chain event.StageChain
}

// New returns an analyzer for the given chain.
func New(chain event.StageChain) *Analyzer {
	return &Analyzer{chain: chain}
}

// Analyze counts completions per stage inside [start, end) and, for each
// adjacent pair, reports held units and flow efficiency. It also scans WIP
// upstream of the terminal stage as of the window end so held counts come
// with the likely holding locations.
func (a *Analyzer) Analyze(visits []event.Visit, start, end time.Time) (Analysis, error) {
	if !start.Before(end) {
		return Analysis{}, fmt.Errorf("flowgap: window start %s not before end %s",
			event.FormatTime(start), event.FormatTime(end))
	}

	idx := event.UnitIndex(visits)
	ids := event.SortedUnitIDs(idx)

	counts := make(map[string]int, a.chain.Len())
	for _, stage := range a.chain.Stages() {
		n := 0
		for _, id := range ids {
			if t, ok := idx[id][stage]; ok && inWindow(t, start, end) {
				n++
			}
		}
		counts[stage] = n
	}

	flows := make(map[string]PairFlow, a.chain.Len()-1)
	held := make(map[string][]HeldUnit)
	for _, p := range a.chain.Pairs() {
		cur, next := counts[p.From], counts[p.To]
		pf := PairFlow{
			CurrentStation:     p.From,
			NextStation:        p.To,
			CurrentCompletions: cur,
			NextCompletions:    next,
			HeldUnitsCount:     maxInt(0, cur-next),
			FlowEfficiency:     efficiency(cur, next),
		}
		flows[p.Key()] = pf
		if pf.HeldUnitsCount > 0 {
			held[holdingLocation(p.From, p.To)] = a.heldBetween(idx, ids, p.From, p.To, start, end)
		}
	}

	wip := make(map[string][]WIPUnit, a.chain.Len()-1)
	for _, stage := range a.chain.Stages()[:a.chain.Len()-1] {
		wip[stage] = a.wipAtStation(idx, ids, stage, end)
	}

	an := Analysis{
		Window: Window{
			Start:           start,
			End:             end,
			StartText:       event.FormatTime(start),
			EndText:         event.FormatTime(end),
			DurationMinutes: end.Sub(start).Minutes(),
		},
		StationCounts:   counts,
		FlowAnalysis:    flows,
		HeldUnits:       held,
		Summary:         summarize(a.chain, flows, counts),
		WIP:             wip,
		HidingLocations: rankHidingLocations(wip),
	}
	an.Recommendations = recommendations(an)
	return an, nil
}

// heldBetween enumerates the units that completed from inside the window but
// did not complete to in the same window. Units with a to completion outside
// the window are completed_later; units with none are not_completed.
func (a *Analyzer) heldBetween(idx map[string]event.StageTimes, ids []string, from, to string, start, end time.Time) []HeldUnit {
	var out []HeldUnit
	for _, id := range ids {
		st := idx[id]
		curT, ok := st[from]
		if !ok || !inWindow(curT, start, end) {
			continue
		}
		nextT, hasNext := st[to]
		if hasNext && inWindow(nextT, start, end) {
			continue
		}
		hu := HeldUnit{
			UnitID:            id,
			CompletedStation:  from,
			CompletionTime:    event.FormatTime(curT),
			NextStationStatus: "not_completed",
			HoldingLocation:   holdingLocation(from, to),
		}
		if hasNext {
			s := event.FormatTime(nextT)
			hu.NextStationStatus = "completed_later"
			hu.NextCompletionTime = &s
		}
		out = append(out, hu)
	}
	return out
}

func summarize(chain event.StageChain, flows map[string]PairFlow, counts map[string]int) Summary {
	s := Summary{
		WorstEfficiency: 100,
		StationCounts:   counts,
		TopBottlenecks:  []Bottleneck{},
		CriticalFlows:   []Bottleneck{},
	}

	var all []Bottleneck
	for _, p := range chain.Pairs() {
		pf := flows[p.Key()]
		s.TotalHeldUnits += pf.HeldUnitsCount
		if pf.HeldUnitsCount > 0 {
			all = append(all, Bottleneck{
				Flow:           p.Key(),
				CurrentStation: pf.CurrentStation,
				NextStation:    pf.NextStation,
				HeldUnits:      pf.HeldUnitsCount,
				Efficiency:     pf.FlowEfficiency,
			})
		}
		if pf.CurrentCompletions > 0 && pf.FlowEfficiency < s.WorstEfficiency {
			s.WorstEfficiency = pf.FlowEfficiency
			s.WorstBottleneck = p.Key()
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].HeldUnits > all[j].HeldUnits })
	s.BottleneckCount = len(all)
	if len(all) > topBottleneckListLen {
		s.TopBottlenecks = all[:topBottleneckListLen]
	} else if len(all) > 0 {
		s.TopBottlenecks = all
	}
	for _, b := range all {
		if b.HeldUnits > criticalHeldUnits || b.Efficiency < criticalEfficiencyPct {
			s.CriticalFlows = append(s.CriticalFlows, b)
		}
	}
	return s
}

func recommendations(an Analysis) []string {
	var recs []string

	if an.Summary.TotalHeldUnits > 0 {
		recs = append(recs, fmt.Sprintf("FLOW BOTTLENECKS DETECTED: %d units held between stations in this window.",
			an.Summary.TotalHeldUnits))
		crit := an.Summary.CriticalFlows
		if len(crit) > 2 {
			crit = crit[:2]
		}
		for _, b := range crit {
			recs = append(recs, fmt.Sprintf("CRITICAL: %d units held between %s and %s (%.1f%% efficiency).",
				b.HeldUnits, b.CurrentStation, b.NextStation, b.Efficiency))
		}
		if an.Summary.WorstBottleneck != "" && an.Summary.WorstEfficiency < urgentEfficiencyPct {
			recs = append(recs, fmt.Sprintf("IMMEDIATE ACTION REQUIRED: %s has %.1f%% efficiency.",
				an.Summary.WorstBottleneck, an.Summary.WorstEfficiency))
		}
	}

	// Per-flow advisories in a stable key order.
	for _, p := range an.flowPairsInOrder() {
		pf := an.FlowAnalysis[p]
		if pf.HeldUnitsCount > highVolumeHeldUnits {
			recs = append(recs, fmt.Sprintf("HIGH VOLUME HOLDING: %d units held at %s. Investigate capacity constraints.",
				pf.HeldUnitsCount, p))
		} else if pf.CurrentCompletions > 0 && pf.FlowEfficiency < severeEfficiencyPct {
			recs = append(recs, fmt.Sprintf("SEVERE BOTTLENECK: %s operating at %.1f%% efficiency. Immediate intervention needed.",
				p, pf.FlowEfficiency))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "NORMAL FLOW: Station-to-station flow operating within normal parameters.")
	}
	return recs
}

// flowPairsInOrder returns the flow keys sorted lexically. The analysis map
// does not retain chain order, and lexical order is stable across runs.
func (an Analysis) flowPairsInOrder() []string {
	keys := make([]string, 0, len(an.FlowAnalysis))
	for k := range an.FlowAnalysis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func efficiency(cur, next int) float64 {
	if cur == 0 {
		return 0
	}
	return stats.Round2(float64(next) / float64(cur) * 100)
}

func holdingLocation(from, to string) string {
	return "between_" + from + "_and_" + to
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
