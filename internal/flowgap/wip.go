package flowgap

import (
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// WIP severity thresholds, in minutes of average waiting time.
const (
	wipHighAvgMinutes   = 120
	wipMediumAvgMinutes = 60
	wipCrowdedCount     = 10
	wipSampleUnits      = 5
)

// WIPUnit is a unit that completed a station but has not reached the
// terminal stage by the cutoff.
type WIPUnit struct {
	UnitID             string  `json:"unit_id"`
	StationCompletion  string  `json:"station_completion"`
	WaitingTimeMinutes float64 `json:"waiting_time_minutes"`
	WaitingTimeHours   float64 `json:"waiting_time_hours"`
}

// HidingLocation ranks a station by how much work is sitting behind it.
type HidingLocation struct {
	Station           string    `json:"station"`
	WIPCount          int       `json:"wip_count"`
	AvgWaitingMinutes float64   `json:"avg_waiting_time_minutes"`
	MaxWaitingMinutes float64   `json:"max_waiting_time_minutes"`
	Severity          string    `json:"severity"`
	Units             []WIPUnit `json:"units"`
}

// wipAtStation finds units that completed station before cutoff but have no
// terminal-stage completion at all.
func (a *Analyzer) wipAtStation(idx map[string]event.StageTimes, ids []string, station string, cutoff time.Time) []WIPUnit {
	terminal := a.chain.Terminal()
	var out []WIPUnit
	for _, id := range ids {
		st := idx[id]
		t, ok := st[station]
		if !ok || !t.Before(cutoff) {
			continue
		}
		if _, done := st[terminal]; done {
			continue
		}
		waiting := cutoff.Sub(t).Minutes()
		out = append(out, WIPUnit{
			UnitID:             id,
			StationCompletion:  event.FormatTime(t),
			WaitingTimeMinutes: stats.Round2(waiting),
			WaitingTimeHours:   stats.Round2(waiting / 60),
		})
	}
	return out
}

// rankHidingLocations orders stations by severity then WIP count, so the
// first entry is where held units most likely sit.
func rankHidingLocations(wip map[string][]WIPUnit) []HidingLocation {
	var out []HidingLocation
	for station, units := range wip {
		if len(units) == 0 {
			continue
		}
		waits := make([]float64, len(units))
		for i, u := range units {
			waits[i] = u.WaitingTimeMinutes
		}
		avg, _ := stats.Mean(waits)
		max, _ := stats.Max(waits)

		severity := "LOW"
		switch {
		case avg > wipHighAvgMinutes:
			severity = "HIGH"
		case avg > wipMediumAvgMinutes:
			severity = "MEDIUM"
		}
		if len(units) > wipCrowdedCount {
			if severity == "HIGH" {
				severity = "CRITICAL"
			} else {
				severity = "HIGH"
			}
		}

		sample := units
		if len(sample) > wipSampleUnits {
			sample = sample[:wipSampleUnits]
		}
		out = append(out, HidingLocation{
			Station:           station,
			WIPCount:          len(units),
			AvgWaitingMinutes: stats.Round2(avg),
			MaxWaitingMinutes: stats.Round2(max),
			Severity:          severity,
			Units:             sample,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if si != sj {
			return si > sj
		}
		if out[i].WIPCount != out[j].WIPCount {
			return out[i].WIPCount > out[j].WIPCount
		}
		return out[i].Station < out[j].Station
	})
	return out
}

func severityRank(s string) int {
	switch s {
	case "CRITICAL":
		return 4
	case "HIGH":
		return 3
	case "MEDIUM":
		return 2
	default:
		return 1
	}
}
