// Package flowgap measures station-to-station flow inside a time window:
// per-stage completion counts, held-unit gaps between adjacent stages, flow
// efficiency, bottleneck ranking, and work-in-progress scans that point at
// the most likely holding locations.
package flowgap
