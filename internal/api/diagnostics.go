package api

import (
	"fmt"
)

// DiagnosticHint is one human-readable insight about a line's flow health.
// Dashboards display these as chips on the line card; Detail is written in
// plain English for operators who do not read the raw analysis payloads.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives diagnostic hints from a line's last-hour
// overview. Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(lo LineOverview) []DiagnosticHint {
	var hints []DiagnosticHint
	fs := lo.FlowSummary

	// ── Held units ────────────────────────────────────────────────────────────
	if fs.TotalHeldUnits > 0 {
		v := float64(fs.TotalHeldUnits)
		var level, title, detail string
		switch {
		case fs.TotalHeldUnits > 20:
			level = "critical"
			title = fmt.Sprintf("%d units held", fs.TotalHeldUnits)
			detail = fmt.Sprintf(
				"%d units completed a station in the last hour but never reached the next one. "+
					"The worst gap is %s, running at %.1f%% flow efficiency. "+
					"At this volume units are accumulating faster than the line can clear them — "+
					"check the downstream station for a stoppage or a staging buffer that is not being worked.",
				fs.TotalHeldUnits, fs.WorstBottleneck, fs.WorstEfficiency,
			)
		case fs.TotalHeldUnits > 5:
			level = "warning"
			title = fmt.Sprintf("%d units held", fs.TotalHeldUnits)
			detail = fmt.Sprintf(
				"%d units are sitting between stations, mostly at %s. "+
					"This is worth a walk-by: a growing held count usually means the downstream "+
					"station is short-staffed or blocked.",
				fs.TotalHeldUnits, fs.WorstBottleneck,
			)
		default:
			level = "info"
			title = fmt.Sprintf("%d units in transit", fs.TotalHeldUnits)
			detail = fmt.Sprintf(
				"A small number of units (%d) have not yet reached their next station. "+
					"This is normal transit lag unless the number keeps growing.",
				fs.TotalHeldUnits,
			)
		}
		hints = append(hints, DiagnosticHint{Key: "held_units", Level: level, Title: title, Detail: detail, Value: &v})
	}

	// ── Critical flows ────────────────────────────────────────────────────────
	if n := len(fs.CriticalFlows); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "critical_flows",
			Level: "warning",
			Title: fmt.Sprintf("%d critical flows", n),
			Detail: fmt.Sprintf(
				"%d station-to-station flows are either holding more than 10 units or running "+
					"below 80%% efficiency. The worst is %s at %.1f%%. "+
					"Compare completion counts on both sides of each flagged flow to see which "+
					"side is the constraint.",
				n, fs.WorstBottleneck, fs.WorstEfficiency,
			),
			Value: &v,
		})
	}

	// ── WIP upstream of packing ───────────────────────────────────────────────
	if lo.WIPCount > 10 {
		v := float64(lo.WIPCount)
		hints = append(hints, DiagnosticHint{
			Key:   "wip_buildup",
			Level: "warning",
			Title: fmt.Sprintf("%d units in WIP", lo.WIPCount),
			Detail: fmt.Sprintf(
				"%d units have completed an intermediate station but show no packing completion. "+
					"Large WIP pools upstream of packing are where units get parked out of sight. "+
					"The hiding-locations list in the flow analysis names the stations holding them.",
				lo.WIPCount,
			),
			Value: &v,
		})
	}

	// ── Hiding signature ──────────────────────────────────────────────────────
	if lo.BatchCount > 0 {
		v := float64(lo.BatchCount)
		level := "warning"
		if lo.BatchCount > 2 || lo.SuspiciousPercentage > 50 {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "batch_hiding",
			Level: level,
			Title: fmt.Sprintf("%d hiding batches", lo.BatchCount),
			Detail: fmt.Sprintf(
				"%d groups of units were inspected around the same time, held, and then packed "+
					"together — the signature of units being set aside and released in bulk. "+
					"%.1f%% of packed units exceeded the delay threshold, with delays up to %.1f hours. "+
					"Review the full hiding report for the batch timeline and evidence scores.",
				lo.BatchCount, lo.SuspiciousPercentage, lo.MaxDelayHours,
			),
			Value: &v,
		})
	} else if lo.SuspiciousPercentage > 25 {
		v := lo.SuspiciousPercentage
		hints = append(hints, DiagnosticHint{
			Key:   "slow_packing",
			Level: "warning",
			Title: fmt.Sprintf("%.0f%% slow to pack", lo.SuspiciousPercentage),
			Detail: fmt.Sprintf(
				"%.1f%% of units took longer than the configured threshold to move from final "+
					"inspection to packing, but they are not clustering into batches. "+
					"This looks like general packing slowness rather than deliberate holding — "+
					"check packing-station staffing and material availability.",
				lo.SuspiciousPercentage,
			),
			Value: &v,
		})
	}

	// ── Extreme single delay ──────────────────────────────────────────────────
	if lo.MaxDelayHours > 6 {
		v := lo.MaxDelayHours
		hints = append(hints, DiagnosticHint{
			Key:   "extreme_delay",
			Level: "critical",
			Title: fmt.Sprintf("%.1fh max delay", lo.MaxDelayHours),
			Detail: fmt.Sprintf(
				"At least one unit waited %.1f hours between inspection and packing. "+
					"Delays this long usually mean a unit was physically misplaced or pulled "+
					"aside without a repair record. Trace the unit in the suspicious-units list.",
				lo.MaxDelayHours,
			),
			Value: &v,
		})
	}

	// ── All clear ─────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "Flow normal",
			Detail: "No held units, no critical flows, and no hiding signature in the last hour. " +
				"Keep an eye on the completion counts — a sudden drop in volume can indicate " +
				"an upstream problem even when every flow shows 100% efficiency.",
		})
	}

	sortHints(hints)
	return hints
}

// sortHints orders hints critical > warning > info > ok, stable within level.
func sortHints(hints []DiagnosticHint) {
	rank := map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}
	for i := 1; i < len(hints); i++ {
		for j := i; j > 0 && rank[hints[j].Level] < rank[hints[j-1].Level]; j-- {
			hints[j], hints[j-1] = hints[j-1], hints[j]
		}
	}
}
