package arrival

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Classification thresholds against the projected arrival time.
const (
	delayedAfterSeconds = 300 // more than 5 minutes late
	earlyBeforeSeconds  = -60 // more than 1 minute early
)

// Delay status values.
const (
	StatusOnTime       = "on_time"
	StatusDelayed      = "delayed"
	StatusEarly        = "early"
	StatusNotCompleted = "not_completed"
)

// Arrival is one projected arrival of a unit at a downstream station.
// SourceStation is the immediate upstream station of the hop;
// SourceTimeIsActual records whether the hop was anchored on a recorded
// completion or on a previously projected time.
type Arrival struct {
	UnitID               string   `json:"unit_id"`
	SourceStation        string   `json:"source_station"`
	SourceCompletionTime string   `json:"source_completion_time"`
	SourceTimeIsActual   bool     `json:"source_time_is_actual"`
	ExpectedArrivalTime  string   `json:"expected_arrival_time"`
	ActualArrivalTime    *string  `json:"actual_arrival_time"`
	DelaySeconds         *float64 `json:"delay_seconds"`
	DelayMinutes         *float64 `json:"delay_minutes"`
	DelayStatus          string   `json:"delay_status"`
	ExpectedInWindow     bool     `json:"expected_in_target_hour"`

	sourceTime time.Time
}

// Walker projects expected arrivals over a configured chain using a
// historical cycle-time table. Pairs without history fall back to the
// table's fixed defaults.
type Walker struct {
	chain event.StageChain
	ct    cycletime.PairStats
}

// NewWalker returns a walker over chain using ct for hop durations.
func NewWalker(chain event.StageChain, ct cycletime.PairStats) *Walker {
	return &Walker{chain: chain, ct: ct}
}

// Walk returns, per downstream station, the projected arrivals for every
// unit that completed any non-terminal stage inside [start, end). A unit
// walked from several upstream stages produces one entry per station: the
// walk whose source completion is latest wins, ties keeping the earlier
// walk's entry.
func (w *Walker) Walk(visits []event.Visit, start, end time.Time) (map[string][]Arrival, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("arrival: window start %s not before end %s",
			event.FormatTime(start), event.FormatTime(end))
	}

	idx := event.UnitIndex(visits)
	ids := event.SortedUnitIDs(idx)
	stages := w.chain.Stages()

	raw := make(map[string][]Arrival)
	for _, id := range ids {
		st := idx[id]
		for i := 0; i < len(stages)-1; i++ {
			startT, ok := st[stages[i]]
			if !ok || startT.Before(start) || !startT.Before(end) {
				continue
			}
			w.walkFrom(id, st, i, startT, start, end, raw)
		}
	}

	deduped := make(map[string][]Arrival, len(raw))
	for station, arrivals := range raw {
		deduped[station] = dedupLatestSource(arrivals)
	}
	return deduped, nil
}

// walkFrom projects one unit forward from chain position i, whose completion
// time is known, appending an entry per downstream station.
func (w *Walker) walkFrom(unitID string, st event.StageTimes, i int, startT time.Time, winStart, winEnd time.Time, out map[string][]Arrival) {
	stages := w.chain.Stages()
	current := startT

	for j := i + 1; j < len(stages); j++ {
		upstream, downstream := stages[j-1], stages[j]

		// Anchor on the recorded upstream completion when present,
		// otherwise on the time projected by the previous hop.
		anchor := current
		isActual := false
		if actual, ok := st[upstream]; ok {
			anchor = actual
			isActual = true
		}

		hopSeconds := w.ct.MedianSecondsFor(event.PairKey(upstream, downstream))
		expected := anchor.Add(time.Duration(hopSeconds * float64(time.Second)))
		current = expected

		a := Arrival{
			UnitID:               unitID,
			SourceStation:        upstream,
			SourceCompletionTime: event.FormatTime(anchor),
			SourceTimeIsActual:   isActual,
			ExpectedArrivalTime:  event.FormatTime(expected),
			DelayStatus:          StatusNotCompleted,
			ExpectedInWindow:     !expected.Before(winStart) && expected.Before(winEnd),
			sourceTime:           anchor,
		}
		if actual, ok := st[downstream]; ok {
			s := event.FormatTime(actual)
			a.ActualArrivalTime = &s
			delay := actual.Sub(expected).Seconds()
			a.DelaySeconds = &delay
			dm := stats.Round1(delay / 60)
			a.DelayMinutes = &dm
			switch {
			case delay > delayedAfterSeconds:
				a.DelayStatus = StatusDelayed
			case delay < earlyBeforeSeconds:
				a.DelayStatus = StatusEarly
			default:
				a.DelayStatus = StatusOnTime
			}
		}
		out[downstream] = append(out[downstream], a)
	}
}

// dedupLatestSource keeps one arrival per unit, preferring the entry whose
// source completion is strictly latest. Output is sorted by unit id.
func dedupLatestSource(arrivals []Arrival) []Arrival {
	best := make(map[string]Arrival)
	for _, a := range arrivals {
		prev, ok := best[a.UnitID]
		if !ok || a.sourceTime.After(prev.sourceTime) {
			best[a.UnitID] = a
		}
	}
	out := make([]Arrival, 0, len(best))
	for _, a := range best {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}
