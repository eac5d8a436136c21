package cycletime

import "github.com/linesight/linesight/internal/event"

// Historical whole-window statistics per station pair. These feed the
// expected-arrival walker, which chains median hop durations.

// Fallback hop durations used when a pair has no historical samples at all.
// Values are seconds.
const (
	DefaultMedianSeconds = 60.0
	DefaultMeanSeconds   = 60.0
	DefaultP25Seconds    = 30.0
	DefaultP75Seconds    = 90.0
	DefaultP90Seconds    = 120.0
	DefaultMinSeconds    = 30.0
	DefaultMaxSeconds    = 180.0
	DefaultStdDevSeconds = 30.0
)

// HistoricalStat is the whole-window cycle-time statistics for one pair,
// including the stage names for self-describing output.
type HistoricalStat struct {
	FromStation string `json:"from_station"`
	ToStation   string `json:"to_station"`
	PairStat
	UsedFallback bool `json:"used_fallback"`
}

// PairStats maps pair key to historical stats for every adjacent pair of the
// chain. Every key is always present; pairs without samples carry the fixed
// fallback values with UsedFallback set.
type PairStats map[string]HistoricalStat

// MedianSecondsFor returns the expected hop duration for a pair. Missing
// pairs (a pair key outside the configured chain) get the fallback median.
func (ps PairStats) MedianSecondsFor(pairKey string) float64 {
	if s, ok := ps[pairKey]; ok && s.MedianSeconds != nil {
		return *s.MedianSeconds
	}
	return DefaultMedianSeconds
}

// Historical computes whole-window stats for each adjacent pair of the
// chain, applying the same positivity and cap rules as the hourly table.
func (a *Aggregator) Historical(visits []event.Visit) PairStats {
	idx := indexByUnit(visits)
	out := make(PairStats, a.chain.Len()-1)

	for _, pair := range a.chain.Pairs() {
		var cycles []float64
		upstream, downstream := 0, 0

		for _, st := range idx {
			for _, ta := range st[pair.From] {
				upstream++
				tb, ok := firstAfter(st[pair.To], ta)
				if !ok {
					continue
				}
				diff := tb.Sub(ta).Seconds()
				if diff > 0 && diff <= a.maxCycleSeconds {
					cycles = append(cycles, diff)
					downstream++
				}
			}
		}

		hs := HistoricalStat{FromStation: pair.From, ToStation: pair.To}
		if len(cycles) > 0 {
			hs.PairStat = statFromSamples(cycles, upstream, downstream)
		} else {
			hs.PairStat = fallbackStat(upstream, downstream)
			hs.UsedFallback = true
		}
		out[pair.Key()] = hs
	}
	return out
}

// fallbackStat is the fixed default stat shape for pairs with no usable
// samples. The counters still reflect what was observed.
func fallbackStat(upstream, downstream int) PairStat {
	f := func(v float64) *float64 { return &v }
	return PairStat{
		SampleSize:        0,
		AverageSeconds:    f(DefaultMeanSeconds),
		MedianSeconds:     f(DefaultMedianSeconds),
		StdDevSeconds:     f(DefaultStdDevSeconds),
		P25Seconds:        f(DefaultP25Seconds),
		P75Seconds:        f(DefaultP75Seconds),
		P90Seconds:        f(DefaultP90Seconds),
		MinSeconds:        f(DefaultMinSeconds),
		MaxSeconds:        f(DefaultMaxSeconds),
		UpstreamEvents:    upstream,
		DownstreamPresent: downstream,
	}
}
