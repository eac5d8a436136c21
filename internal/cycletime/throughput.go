package cycletime

import (
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Line-throughput view: inter-event gaps at a single stage, newest first,
// plus an hourly completion summary. This is the drumbeat complement to the
// pair-wise tables: it shows how steadily units leave one station.

// Delta is the gap between two consecutive completions at the same stage.
type Delta struct {
	FromTimestamp string  `json:"from_timestamp"`
	FromUnitID    string  `json:"from_unit_id"`
	ToTimestamp   string  `json:"to_timestamp"`
	ToUnitID      string  `json:"to_unit_id"`
	DeltaSeconds  int     `json:"delta_seconds"`
	DeltaMinutes  float64 `json:"delta_minutes"`
	Hour          int     `json:"hour"`
}

// HourCount is the number of completions recorded in one hour of day.
type HourCount struct {
	Hour     int `json:"hour"`
	Quantity int `json:"quantity"`
}

// ThroughputSummary aggregates the deltas observed at one stage.
type ThroughputSummary struct {
	Stage            string      `json:"stage"`
	TotalRecords     int         `json:"total_records"`
	TotalDeltas      int         `json:"total_deltas"`
	AvgDeltaSeconds  float64     `json:"avg_delta_seconds"`
	MinDeltaSeconds  int         `json:"min_delta_seconds"`
	MaxDeltaSeconds  int         `json:"max_delta_seconds"`
	AvgDeltaMinutes  float64     `json:"avg_delta_minutes"`
	HourlySummary    []HourCount `json:"hourly_summary"`
	ListedDeltas     []Delta     `json:"listed_deltas"`
}

// Throughput computes the inter-event delta summary for one stage. Deltas
// are listed newest first; the hourly summary covers only hours with
// activity, ascending.
func Throughput(visits []event.Visit, stage string) ThroughputSummary {
	type rec struct {
		unit string
		ts   time.Time
	}
	var recs []rec
	hourCounts := make(map[int]int)
	for _, v := range visits {
		if v.Stage != stage {
			continue
		}
		recs = append(recs, rec{unit: v.UnitID, ts: v.Timestamp})
		hourCounts[v.Timestamp.Hour()]++
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].ts.Equal(recs[j].ts) {
			return recs[i].ts.Before(recs[j].ts)
		}
		return recs[i].unit < recs[j].unit
	})

	out := ThroughputSummary{Stage: stage, TotalRecords: len(recs)}

	var secs []float64
	for i := 1; i < len(recs); i++ {
		d := recs[i].ts.Sub(recs[i-1].ts)
		ds := int(d.Seconds())
		secs = append(secs, d.Seconds())
		out.ListedDeltas = append(out.ListedDeltas, Delta{
			FromTimestamp: event.FormatTime(recs[i-1].ts),
			FromUnitID:    recs[i-1].unit,
			ToTimestamp:   event.FormatTime(recs[i].ts),
			ToUnitID:      recs[i].unit,
			DeltaSeconds:  ds,
			DeltaMinutes:  stats.Round2(d.Minutes()),
			Hour:          recs[i].ts.Hour(),
		})
	}
	// Newest first for inspection use.
	for i, j := 0, len(out.ListedDeltas)-1; i < j; i, j = i+1, j-1 {
		out.ListedDeltas[i], out.ListedDeltas[j] = out.ListedDeltas[j], out.ListedDeltas[i]
	}

	out.TotalDeltas = len(secs)
	if len(secs) > 0 {
		mean, _ := stats.Mean(secs)
		minV, _ := stats.Min(secs)
		maxV, _ := stats.Max(secs)
		out.AvgDeltaSeconds = stats.Round2(mean)
		out.MinDeltaSeconds = int(minV)
		out.MaxDeltaSeconds = int(maxV)
		out.AvgDeltaMinutes = stats.Round2(mean / 60)
	}

	for h := 0; h < 24; h++ {
		if c, ok := hourCounts[h]; ok {
			out.HourlySummary = append(out.HourlySummary, HourCount{Hour: h, Quantity: c})
		}
	}
	return out
}
