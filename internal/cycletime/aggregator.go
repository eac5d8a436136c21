package cycletime

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// PairStat is the derived cycle-time statistics for one station pair in one
// bucket. All duration fields are nil when the sample is empty; the event
// counters are always present. downstream_present never exceeds
// upstream_events: an upstream completion is counted even when the unit has
// not (yet) reached the downstream stage, which is what lets a consumer tell
// "no activity" apart from "activity present but stuck".
type PairStat struct {
	SampleSize        int      `json:"sample_size"`
	AverageSeconds    *float64 `json:"average_seconds"`
	MedianSeconds     *float64 `json:"median_seconds"`
	StdDevSeconds     *float64 `json:"std_dev_seconds"`
	P25Seconds        *float64 `json:"p25_seconds"`
	P75Seconds        *float64 `json:"p75_seconds"`
	P90Seconds        *float64 `json:"p90_seconds"`
	MinSeconds        *float64 `json:"min_seconds"`
	MaxSeconds        *float64 `json:"max_seconds"`
	UpstreamEvents    int      `json:"upstream_events"`
	DownstreamPresent int      `json:"downstream_present"`
}

// HourEntry is one hour bucket of the hourly table.
type HourEntry struct {
	Hour         int                 `json:"hour"`
	StationPairs map[string]PairStat `json:"station_pairs"`
}

// DateEntry groups the hour buckets of one calendar date.
type DateEntry struct {
	Hours map[string]HourEntry `json:"hours"`
}

// Meta describes the parameters the table was built with.
type Meta struct {
	Stations        []string `json:"stations"`
	MaxCycleSeconds float64  `json:"max_cycle_seconds"`
}

// Table is the full hourly cycle-time table, organized
// date -> "HH:00" -> pair -> PairStat.
type Table struct {
	Meta   Meta                 `json:"meta"`
	ByDate map[string]DateEntry `json:"by_date"`
}

// Aggregator buckets adjacent-stage transitions by the date and hour of the
// upstream stage completion.
type Aggregator struct {
	chain           event.StageChain
	maxCycleSeconds float64
}

// New creates an Aggregator for the given chain. maxCycleSeconds caps the
// transit samples: deltas that are non-positive or exceed the cap count
// toward neither the sample nor downstream_present.
func New(chain event.StageChain, maxCycleSeconds float64) (*Aggregator, error) {
	if maxCycleSeconds <= 0 {
		return nil, fmt.Errorf("cycletime: max_cycle_seconds must be positive, got %v", maxCycleSeconds)
	}
	return &Aggregator{chain: chain, maxCycleSeconds: maxCycleSeconds}, nil
}

// bucketKey identifies one (date, hour, pair) accumulation cell. Using a
// composite key keeps the accumulation flat and explicit instead of
// auto-vivifying nested maps.
type bucketKey struct {
	date string
	hour int
	pair string
}

// bucket accumulates raw samples and counters for one cell.
type bucket struct {
	cycles     []float64
	upstream   int
	downstream int
}

// stageTimes slices each unit's visit timestamps per stage, ascending.
type stageTimes map[string][]time.Time

func indexByUnit(visits []event.Visit) map[string]stageTimes {
	idx := make(map[string]stageTimes)
	for _, v := range visits {
		st, ok := idx[v.UnitID]
		if !ok {
			st = make(stageTimes)
			idx[v.UnitID] = st
		}
		st[v.Stage] = append(st[v.Stage], v.Timestamp)
	}
	for _, st := range idx {
		for _, ts := range st {
			sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
		}
	}
	return idx
}

// firstAfter returns the earliest timestamp in ts strictly after t.
func firstAfter(ts []time.Time, t time.Time) (time.Time, bool) {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(t) })
	if i == len(ts) {
		return time.Time{}, false
	}
	return ts[i], true
}

// HourlyTable builds the date -> hour -> pair table. An hour bucket is
// emitted only if at least one pair recorded an upstream event in it.
func (a *Aggregator) HourlyTable(visits []event.Visit) *Table {
	idx := indexByUnit(visits)
	cells := make(map[bucketKey]*bucket)

	getCell := func(k bucketKey) *bucket {
		c, ok := cells[k]
		if !ok {
			c = &bucket{}
			cells[k] = c
		}
		return c
	}

	for _, st := range idx {
		for _, pair := range a.chain.Pairs() {
			for _, ta := range st[pair.From] {
				k := bucketKey{
					date: ta.Format("2006-01-02"),
					hour: ta.Hour(),
					pair: pair.Key(),
				}
				c := getCell(k)
				c.upstream++

				tb, ok := firstAfter(st[pair.To], ta)
				if !ok {
					continue
				}
				diff := tb.Sub(ta).Seconds()
				if diff > 0 && diff <= a.maxCycleSeconds {
					c.cycles = append(c.cycles, diff)
					c.downstream++
				}
			}
		}
	}

	table := &Table{
		Meta: Meta{
			Stations:        a.chain.Stages(),
			MaxCycleSeconds: a.maxCycleSeconds,
		},
		ByDate: make(map[string]DateEntry),
	}
	pairKeys := make([]string, 0, a.chain.Len()-1)
	for _, p := range a.chain.Pairs() {
		pairKeys = append(pairKeys, p.Key())
	}

	for k, c := range cells {
		de, ok := table.ByDate[k.date]
		if !ok {
			de = DateEntry{Hours: make(map[string]HourEntry)}
			table.ByDate[k.date] = de
		}
		hourKey := fmt.Sprintf("%02d:00", k.hour)
		he, ok := de.Hours[hourKey]
		if !ok {
			he = HourEntry{Hour: k.hour, StationPairs: make(map[string]PairStat, len(pairKeys))}
			// Every emitted hour shows the full pair set so consumers see
			// explicit zero-count stats for inactive pairs.
			for _, pk := range pairKeys {
				he.StationPairs[pk] = PairStat{}
			}
			de.Hours[hourKey] = he
		}
		he.StationPairs[k.pair] = statFromSamples(c.cycles, c.upstream, c.downstream)
	}

	return table
}

// statFromSamples derives a PairStat from raw cycle samples and counters.
// Duration fields are rounded to 2 decimals at this boundary.
func statFromSamples(cycles []float64, upstream, downstream int) PairStat {
	ps := PairStat{
		SampleSize:        len(cycles),
		UpstreamEvents:    upstream,
		DownstreamPresent: downstream,
	}
	if len(cycles) == 0 {
		return ps
	}
	mean, _ := stats.Mean(cycles)
	median, _ := stats.Median(cycles)
	minV, _ := stats.Min(cycles)
	maxV, _ := stats.Max(cycles)
	std := stats.StdDev(cycles)
	q := stats.Percentiles(cycles)

	ps.AverageSeconds = round2p(mean)
	ps.MedianSeconds = round2p(median)
	ps.StdDevSeconds = round2p(std)
	ps.MinSeconds = round2p(minV)
	ps.MaxSeconds = round2p(maxV)
	if q.P25 != nil {
		ps.P25Seconds = round2p(*q.P25)
	}
	if q.P75 != nil {
		ps.P75Seconds = round2p(*q.P75)
	}
	if q.P90 != nil {
		ps.P90Seconds = round2p(*q.P90)
	}
	return ps
}

func round2p(v float64) *float64 {
	r := stats.Round2(v)
	return &r
}
