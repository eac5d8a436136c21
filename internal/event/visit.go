package event

import (
	"sort"
	"time"
)

// TimeLayout is the timestamp format used by the shop-floor collectors:
// 24-hour clock, seconds precision, no timezone.
const TimeLayout = "2006-01-02 15:04:05"

// Visit is one station-visit event: a unit completing one process stage.
// Visits are immutable once parsed; analyzers only read them.
type Visit struct {
	UnitID    string
	Stage     string
	Timestamp time.Time
	Line      string
	ErrorFlag bool
}

// StageTimes maps stage name to the earliest visit timestamp a unit has
// recorded at that stage. It is the per-unit pivot all analyzers walk.
type StageTimes map[string]time.Time

// UnitIndex groups visits by unit, keeping only the earliest timestamp per
// stage. This mirrors the one-row-per-unit pivot the flow analyzers operate
// on: re-scans of the same stage do not move the completion time.
func UnitIndex(visits []Visit) map[string]StageTimes {
	idx := make(map[string]StageTimes)
	for _, v := range visits {
		st, ok := idx[v.UnitID]
		if !ok {
			st = make(StageTimes)
			idx[v.UnitID] = st
		}
		if prev, ok := st[v.Stage]; !ok || v.Timestamp.Before(prev) {
			st[v.Stage] = v.Timestamp
		}
	}
	return idx
}

// SortedUnitIDs returns the unit ids of an index in lexical order, so output
// built from the index is deterministic regardless of map iteration.
func SortedUnitIDs(idx map[string]StageTimes) []string {
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
