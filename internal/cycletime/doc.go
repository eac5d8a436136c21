// Package cycletime builds station-pair transit statistics from station
// visits: an hour-by-hour table keyed by the upstream completion hour, and
// whole-window historical stats used as the expected hop durations by the
// arrival walker.
package cycletime
