package dwell

import (
	"sort"
	"time"

	"github.com/linesight/linesight/internal/event"
)

// MinuteBatch is one release minute in which an unusual number of
// long-dwelling units arrived at the destination stage together.
type MinuteBatch struct {
	Minute         string  `json:"minute"`
	Count          int     `json:"count"`
	MedianDwellMin float64 `json:"median_dwell_min"`
}

// BatchMinutes groups pairs by the minute of t_to and flags minutes where at
// least countThreshold units arrived and the median dwell of those units is
// at least medianThresholdMin. A burst of simultaneously released units that
// all waited a long time is the coarse signature of batch holding.
func BatchMinutes(pairs []Pair, countThreshold int, medianThresholdMin float64) []MinuteBatch {
	buckets := make(map[string][]int)
	for _, p := range pairs {
		key := event.FormatTime(p.TTo.Truncate(time.Minute))
		buckets[key] = append(buckets[key], p.DwellMinutes)
	}

	var out []MinuteBatch
	for minute, dwells := range buckets {
		if len(dwells) < countThreshold {
			continue
		}
		sort.Ints(dwells)
		n := len(dwells)
		var med float64
		if n%2 == 1 {
			med = float64(dwells[n/2])
		} else {
			med = float64(dwells[n/2-1]+dwells[n/2]) / 2
		}
		if med >= medianThresholdMin {
			out = append(out, MinuteBatch{Minute: minute, Count: n, MedianDwellMin: med})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute < out[j].Minute })
	return out
}
