package hiding

import (
	"fmt"
	"sort"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Batch type thresholds, in minutes of inspection/packing/holding span.
const (
	rapidInspectionMax = 30
	rapidPackingMax    = 10
	longHoldMin        = 300
	gradualInspection  = 60
	gradualPacking     = 30
	burstPackingMax    = 5
)

// Batch types by timing shape, checked in order.
const (
	BatchRapid    = "RAPID_BATCH"
	BatchLongHold = "LONG_HOLD_BATCH"
	BatchGradual  = "GRADUAL_BATCH"
	BatchBurst    = "BURST_RELEASE"
	BatchStandard = "STANDARD_BATCH"
)

// Period is a timestamped span inside a batch.
type Period struct {
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// HoldingPeriod spans last inspection to first packing.
type HoldingPeriod struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DurationHours   float64 `json:"duration_hours"`
}

// TimingAnalysis breaks a batch's lifecycle into its three spans.
type TimingAnalysis struct {
	InspectionPeriod Period        `json:"inspection_period"`
	PackingPeriod    Period        `json:"packing_period"`
	HoldingPeriod    HoldingPeriod `json:"holding_period"`
	TotalSpanHours   float64       `json:"total_span_hours"`
}

// BatchDelayStats summarizes the member delays of a batch.
type BatchDelayStats struct {
	AvgDelayHours   float64 `json:"avg_delay_hours"`
	MinDelayHours   float64 `json:"min_delay_hours"`
	MaxDelayHours   float64 `json:"max_delay_hours"`
	DelayStdMinutes float64 `json:"delay_std_minutes"`
	UniformityScore float64 `json:"uniformity_score"`
}

// Characteristics carries the evidence verdict for a batch.
type Characteristics struct {
	HidingEvidenceScore  float64        `json:"hiding_evidence_score"`
	BatchType            string         `json:"batch_type"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
}

// Batch is one merged cluster with full timing and evidence analysis.
type Batch struct {
	BatchID         string          `json:"batch_id"`
	UnitCount       int             `json:"unit_count"`
	Units           []string        `json:"units"`
	Timing          TimingAnalysis  `json:"timing_analysis"`
	DelayStatistics BatchDelayStats `json:"delay_statistics"`
	Characteristics Characteristics `json:"batch_characteristics"`
}

// analyzeBatch computes timing spans, delay statistics, and the evidence
// score for one cluster of units.
func analyzeBatch(members []Unit) Batch {
	byInspect := append([]Unit(nil), members...)
	sort.SliceStable(byInspect, func(i, j int) bool {
		return byInspect[i].InspectTime.Before(byInspect[j].InspectTime)
	})
	byPacking := append([]Unit(nil), members...)
	sort.SliceStable(byPacking, func(i, j int) bool {
		return byPacking[i].PackingTime.Before(byPacking[j].PackingTime)
	})

	firstInspect := byInspect[0].InspectTime
	lastInspect := byInspect[len(byInspect)-1].InspectTime
	firstPacking := byPacking[0].PackingTime
	lastPacking := byPacking[len(byPacking)-1].PackingTime

	inspectionMinutes := lastInspect.Sub(firstInspect).Minutes()
	packingMinutes := lastPacking.Sub(firstPacking).Minutes()
	holdingMinutes := firstPacking.Sub(lastInspect).Minutes()
	spanHours := lastPacking.Sub(firstInspect).Hours()

	delayMinutes := make([]float64, len(members))
	delayHours := make([]float64, len(members))
	ids := make([]string, len(members))
	sevDist := make(map[string]int)
	for i, u := range members {
		delayMinutes[i] = u.DelayMinutes
		delayHours[i] = u.DelayHours
		ids[i] = u.UnitID
		sevDist[u.Severity]++
	}

	stdMinutes := stats.StdDev(delayMinutes)
	uniformity := 1.0
	if stdMinutes > 0 {
		uniformity = 1 / (1 + stdMinutes)
	}
	avgHours, _ := stats.Mean(delayHours)
	minHours, _ := stats.Min(delayHours)
	maxHours, _ := stats.Max(delayHours)

	return Batch{
		BatchID:   fmt.Sprintf("batch_%s_size%d", firstInspect.Format("20060102_1504"), len(members)),
		UnitCount: len(members),
		Units:     ids,
		Timing: TimingAnalysis{
			InspectionPeriod: Period{
				StartTime:       event.FormatTime(firstInspect),
				EndTime:         event.FormatTime(lastInspect),
				DurationMinutes: stats.Round2(inspectionMinutes),
			},
			PackingPeriod: Period{
				StartTime:       event.FormatTime(firstPacking),
				EndTime:         event.FormatTime(lastPacking),
				DurationMinutes: stats.Round2(packingMinutes),
			},
			HoldingPeriod: HoldingPeriod{
				DurationMinutes: stats.Round2(holdingMinutes),
				DurationHours:   stats.Round2(holdingMinutes / 60),
			},
			TotalSpanHours: stats.Round2(spanHours),
		},
		DelayStatistics: BatchDelayStats{
			AvgDelayHours:   stats.Round2(avgHours),
			MinDelayHours:   stats.Round2(minHours),
			MaxDelayHours:   stats.Round2(maxHours),
			DelayStdMinutes: stats.Round2(stdMinutes),
			UniformityScore: stats.Round3(uniformity),
		},
		Characteristics: Characteristics{
			HidingEvidenceScore:  stats.Round3(evidenceScore(members, inspectionMinutes, packingMinutes, holdingMinutes)),
			BatchType:            batchType(inspectionMinutes, packingMinutes, holdingMinutes),
			SeverityDistribution: sevDist,
		},
	}
}

// evidenceScore is a bounded [0,1] rubric over batch size, timing spans,
// and delay consistency.
func evidenceScore(members []Unit, inspectionMinutes, packingMinutes, holdingMinutes float64) float64 {
	score := 0.0

	switch size := len(members); {
	case size >= 20:
		score += 0.3
	case size >= 10:
		score += 0.2
	case size >= 5:
		score += 0.1
	}

	// Inspected quickly but held two hours or more.
	if inspectionMinutes < 60 && holdingMinutes > 120 {
		score += 0.3
	}

	// Large batch released in a narrow packing window.
	if packingMinutes < 10 && len(members) > 5 {
		score += 0.2
	}

	delayHours := make([]float64, len(members))
	for i, u := range members {
		delayHours[i] = u.DelayHours
	}
	if stats.StdDev(delayHours) < 0.5 {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}
	return score
}

func batchType(inspectionMinutes, packingMinutes, holdingMinutes float64) string {
	switch {
	case inspectionMinutes < rapidInspectionMax && packingMinutes < rapidPackingMax:
		return BatchRapid
	case holdingMinutes > longHoldMin:
		return BatchLongHold
	case inspectionMinutes > gradualInspection && packingMinutes > gradualPacking:
		return BatchGradual
	case packingMinutes < burstPackingMax:
		return BatchBurst
	default:
		return BatchStandard
	}
}
