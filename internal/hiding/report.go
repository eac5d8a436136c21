package hiding

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

const highEvidenceScore = 0.7

// Statistics summarizes the suspicious/normal split over all units.
type Statistics struct {
	TotalUnits           int     `json:"total_units"`
	SuspiciousCount      int     `json:"suspicious_count"`
	NormalCount          int     `json:"normal_count"`
	SuspiciousPercentage float64 `json:"suspicious_percentage"`
	AvgDelayMinutes      float64 `json:"avg_delay_minutes"`
	MaxDelayHours        float64 `json:"max_delay_hours"`
	MinDelaySeconds      float64 `json:"min_delay_seconds"`
	ThresholdMinutes     int     `json:"threshold_minutes"`
}

// HourCount is a packing hour and how many suspicious units packed in it.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// AdvancedPattern flags a cross-batch signature.
type AdvancedPattern struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// AdvancedPatterns is the cross-batch pattern summary.
type AdvancedPatterns struct {
	Patterns          []AdvancedPattern `json:"patterns"`
	TotalPatternCount int               `json:"total_pattern_count"`
	MaxSeverity       string            `json:"max_severity"`
}

// DetectionMethods counts raw clusters per detector before merging.
type DetectionMethods struct {
	PackingClusters    int `json:"packing_clusters"`
	InspectionClusters int `json:"inspection_clusters"`
	CombinedPatterns   int `json:"combined_patterns"`
}

// SizeStats describes batch sizes across all batches.
type SizeStats struct {
	AvgBatchSize      float64 `json:"avg_batch_size"`
	LargestBatchSize  int     `json:"largest_batch_size"`
	SmallestBatchSize int     `json:"smallest_batch_size"`
}

// EvidenceStats describes evidence scores across all batches.
type EvidenceStats struct {
	AvgHidingScore      float64 `json:"avg_hiding_score"`
	MaxHidingScore      float64 `json:"max_hiding_score"`
	HighEvidenceBatches int     `json:"high_evidence_batches"`
}

// TimingStats describes holding spans across all batches.
type TimingStats struct {
	AvgHoldingHours float64 `json:"avg_holding_hours"`
	MaxHoldingHours float64 `json:"max_holding_hours"`
	MinHoldingHours float64 `json:"min_holding_hours"`
}

// BatchStatistics rolls all detected batches up.
type BatchStatistics struct {
	TotalUnitsInBatches int            `json:"total_units_in_batches"`
	PercentageInBatches float64        `json:"percentage_in_batches"`
	BatchSizeStats      *SizeStats     `json:"batch_size_stats,omitempty"`
	HidingEvidenceStats *EvidenceStats `json:"hiding_evidence_stats,omitempty"`
	TimingStats         *TimingStats   `json:"timing_stats,omitempty"`
	BatchTypes          map[string]int `json:"batch_type_distribution,omitempty"`
}

// Parameters echoes the clustering knobs used for a report.
type Parameters struct {
	TimeWindowMinutes int `json:"time_window_minutes"`
	MinBatchSize      int `json:"min_batch_size"`
}

// BatchReport is the full batch-hiding section of a report.
type BatchReport struct {
	BatchDetected    bool             `json:"batch_detected"`
	Reason           string           `json:"reason,omitempty"`
	TotalBatches     int              `json:"total_batches"`
	DetectionMethods DetectionMethods `json:"detection_methods"`
	Batches          []Batch          `json:"batches"`
	BatchStatistics  BatchStatistics  `json:"batch_statistics"`
	HidingPatterns   AdvancedPatterns `json:"hiding_patterns"`
	Parameters       Parameters       `json:"analysis_parameters"`
}

// Patterns is the detected-patterns section of a report.
type Patterns struct {
	PatternDetected        bool           `json:"pattern_detected"`
	Details                string         `json:"details,omitempty"`
	SeverityBreakdown      map[string]int `json:"severity_breakdown,omitempty"`
	MostCommonPackingHours []HourCount    `json:"most_common_packing_hours"`
	TotalSuspicious        int            `json:"total_suspicious"`
	LongestDelayHours      float64        `json:"longest_delay_hours"`
	BatchHiding            BatchReport    `json:"batch_hiding_patterns"`
}

// Report is the complete hiding analysis for one line.
type Report struct {
	LineName          string     `json:"line_name"`
	AnalysisTimestamp string     `json:"analysis_timestamp"`
	Statistics        Statistics `json:"statistics"`
	SuspiciousUnits   []Unit     `json:"suspicious_units"`
	NormalUnits       []Unit     `json:"normal_units"`
	DetectedPatterns  Patterns   `json:"detected_patterns"`
	Recommendations   []string   `json:"recommendations"`
}

// Detector clusters delay-thresholded units into hiding batches.
type Detector struct {
	timeWindowMinutes int
	minBatchSize      int
}

// NewDetector validates the clustering parameters up front; they are caller
// configuration, not data.
func NewDetector(timeWindowMinutes, minBatchSize int) (*Detector, error) {
	if timeWindowMinutes <= 0 {
		return nil, fmt.Errorf("hiding: time window must be positive, got %d", timeWindowMinutes)
	}
	if minBatchSize <= 0 {
		return nil, fmt.Errorf("hiding: min batch size must be positive, got %d", minBatchSize)
	}
	return &Detector{timeWindowMinutes: timeWindowMinutes, minBatchSize: minBatchSize}, nil
}

// Report classifies the dwell pairs against thresholdMinutes and runs the
// full pattern detection. now stamps the report.
func (d *Detector) Report(line string, pairs []dwell.Pair, thresholdMinutes int, now time.Time) Report {
	suspicious, normal := Classify(pairs, thresholdMinutes)

	st := Statistics{
		TotalUnits:       len(pairs),
		SuspiciousCount:  len(suspicious),
		NormalCount:      len(normal),
		ThresholdMinutes: thresholdMinutes,
	}
	if len(pairs) > 0 {
		var delays []float64
		for _, p := range pairs {
			delays = append(delays, p.TTo.Sub(p.TFrom).Seconds())
		}
		avg, _ := stats.Mean(delays)
		max, _ := stats.Max(delays)
		min, _ := stats.Min(delays)
		st.SuspiciousPercentage = stats.Round2(float64(len(suspicious)) / float64(len(pairs)) * 100)
		st.AvgDelayMinutes = stats.Round2(avg / 60)
		st.MaxDelayHours = stats.Round2(max / 3600)
		st.MinDelaySeconds = min
	}

	patterns := d.detectPatterns(suspicious)

	return Report{
		LineName:          line,
		AnalysisTimestamp: event.FormatTime(now),
		Statistics:        st,
		SuspiciousUnits:   suspicious,
		NormalUnits:       normal,
		DetectedPatterns:  patterns,
		Recommendations:   recommendations(st, patterns),
	}
}

func (d *Detector) detectPatterns(suspicious []Unit) Patterns {
	if len(suspicious) == 0 {
		return Patterns{Details: "No suspicious units found"}
	}

	breakdown := make(map[string]int)
	hourFreq := make(map[int]int)
	longest := 0.0
	for _, u := range suspicious {
		breakdown[u.Severity]++
		hourFreq[u.PackingTime.Hour()]++
		if u.DelayHours > longest {
			longest = u.DelayHours
		}
	}

	hours := make([]HourCount, 0, len(hourFreq))
	for h, n := range hourFreq {
		hours = append(hours, HourCount{Hour: h, Count: n})
	}
	sort.SliceStable(hours, func(i, j int) bool {
		if hours[i].Count != hours[j].Count {
			return hours[i].Count > hours[j].Count
		}
		return hours[i].Hour < hours[j].Hour
	})
	if len(hours) > 3 {
		hours = hours[:3]
	}

	return Patterns{
		PatternDetected:        true,
		SeverityBreakdown:      breakdown,
		MostCommonPackingHours: hours,
		TotalSuspicious:        len(suspicious),
		LongestDelayHours:      longest,
		BatchHiding:            d.detectBatches(suspicious),
	}
}

func (d *Detector) detectBatches(suspicious []Unit) BatchReport {
	params := Parameters{TimeWindowMinutes: d.timeWindowMinutes, MinBatchSize: d.minBatchSize}
	if len(suspicious) < d.minBatchSize {
		return BatchReport{
			Reason:     fmt.Sprintf("Not enough suspicious units (minimum %d required)", d.minBatchSize),
			Batches:    []Batch{},
			Parameters: params,
		}
	}

	packing := packingClusters(suspicious, time.Duration(d.timeWindowMinutes)*time.Minute, d.minBatchSize)
	inspection := inspectionClusters(suspicious, d.minBatchSize)
	delayBuckets := delayBucketClusters(suspicious, d.minBatchSize)

	merged := mergeClusters(packing, inspection, delayBuckets, d.minBatchSize)
	batches := make([]Batch, len(merged))
	for i, cluster := range merged {
		batches[i] = analyzeBatch(cluster)
	}

	return BatchReport{
		BatchDetected: len(batches) > 0,
		TotalBatches:  len(batches),
		DetectionMethods: DetectionMethods{
			PackingClusters:    len(packing),
			InspectionClusters: len(inspection),
			CombinedPatterns:   len(delayBuckets),
		},
		Batches:         batches,
		BatchStatistics: batchStatistics(batches, len(suspicious)),
		HidingPatterns:  advancedPatterns(batches),
		Parameters:      params,
	}
}

// advancedPatterns flags cross-batch signatures: clusters of high evidence
// scores, repeated burst releases, and extended holds.
func advancedPatterns(batches []Batch) AdvancedPatterns {
	out := AdvancedPatterns{Patterns: []AdvancedPattern{}, MaxSeverity: "NONE"}
	if len(batches) == 0 {
		return out
	}

	highEvidence, bursts, longHolds := 0, 0, 0
	for _, b := range batches {
		if b.Characteristics.HidingEvidenceScore > highEvidenceScore {
			highEvidence++
		}
		switch b.Characteristics.BatchType {
		case BatchBurst:
			bursts++
		case BatchLongHold:
			longHolds++
		}
	}

	if highEvidence > 0 {
		sev := SeverityHigh
		if highEvidence > 2 {
			sev = SeverityCritical
		}
		out.Patterns = append(out.Patterns, AdvancedPattern{
			Pattern:     "HIGH_EVIDENCE_HIDING",
			Description: fmt.Sprintf("%d batches with high hiding evidence scores", highEvidence),
			Severity:    sev,
		})
	}
	if bursts > 1 {
		out.Patterns = append(out.Patterns, AdvancedPattern{
			Pattern:     "SYSTEMATIC_BURST_RELEASE",
			Description: fmt.Sprintf("%d batches released in burst patterns", bursts),
			Severity:    SeverityHigh,
		})
	}
	if longHolds > 0 {
		out.Patterns = append(out.Patterns, AdvancedPattern{
			Pattern:     "EXTENDED_HOLDING",
			Description: fmt.Sprintf("%d batches held for extended periods", longHolds),
			Severity:    SeverityHigh,
		})
	}

	out.TotalPatternCount = len(out.Patterns)
	for _, p := range out.Patterns {
		if severityRank(p.Severity) > severityRank(out.MaxSeverity) {
			out.MaxSeverity = p.Severity
		}
	}
	return out
}

func batchStatistics(batches []Batch, suspiciousTotal int) BatchStatistics {
	if len(batches) == 0 {
		return BatchStatistics{}
	}

	totalUnits := 0
	sizes := make([]float64, len(batches))
	scores := make([]float64, len(batches))
	holding := make([]float64, len(batches))
	types := make(map[string]int)
	largest, smallest := batches[0].UnitCount, batches[0].UnitCount
	highEvidence := 0

	for i, b := range batches {
		totalUnits += b.UnitCount
		sizes[i] = float64(b.UnitCount)
		scores[i] = b.Characteristics.HidingEvidenceScore
		holding[i] = b.Timing.HoldingPeriod.DurationHours
		types[b.Characteristics.BatchType]++
		if b.UnitCount > largest {
			largest = b.UnitCount
		}
		if b.UnitCount < smallest {
			smallest = b.UnitCount
		}
		if b.Characteristics.HidingEvidenceScore > highEvidenceScore {
			highEvidence++
		}
	}

	avgSize, _ := stats.Mean(sizes)
	avgScore, _ := stats.Mean(scores)
	maxScore, _ := stats.Max(scores)
	avgHold, _ := stats.Mean(holding)
	maxHold, _ := stats.Max(holding)
	minHold, _ := stats.Min(holding)

	return BatchStatistics{
		TotalUnitsInBatches: totalUnits,
		PercentageInBatches: stats.Round2(float64(totalUnits) / float64(suspiciousTotal) * 100),
		BatchSizeStats: &SizeStats{
			AvgBatchSize:      stats.Round2(avgSize),
			LargestBatchSize:  largest,
			SmallestBatchSize: smallest,
		},
		HidingEvidenceStats: &EvidenceStats{
			AvgHidingScore:      stats.Round3(avgScore),
			MaxHidingScore:      stats.Round3(maxScore),
			HighEvidenceBatches: highEvidence,
		},
		TimingStats: &TimingStats{
			AvgHoldingHours: stats.Round2(avgHold),
			MaxHoldingHours: stats.Round2(maxHold),
			MinHoldingHours: stats.Round2(minHold),
		},
		BatchTypes: types,
	}
}

func recommendations(st Statistics, patterns Patterns) []string {
	var recs []string

	switch pct := st.SuspiciousPercentage; {
	case pct > 50:
		recs = append(recs, "CRITICAL: More than 50% of units are being held for extended periods. Investigate process bottlenecks immediately.")
	case pct > 25:
		recs = append(recs, "WARNING: Over 25% of units show extended delays. Review packing station workflow and capacity.")
	case pct > 10:
		recs = append(recs, "CAUTION: Elevated percentage of delayed units detected. Monitor trend closely.")
	}

	if st.MaxDelayHours > 6 {
		recs = append(recs, "ALERT: Some units are being held for more than 6 hours. Check for hidden inventory practices.")
	}

	if patterns.PatternDetected && len(patterns.MostCommonPackingHours) > 0 {
		recs = append(recs, fmt.Sprintf("PATTERN: Most suspicious packing activity occurs at hour %d:00. Focus monitoring during this time.",
			patterns.MostCommonPackingHours[0].Hour))
	}

	if bh := patterns.BatchHiding; bh.BatchDetected {
		pct := bh.BatchStatistics.PercentageInBatches
		switch {
		case pct > 70:
			recs = append(recs, fmt.Sprintf("BATCH HIDING CRITICAL: %.2f%% of suspicious units are in %d batches. Strong evidence of intentional batch holding.",
				pct, bh.TotalBatches))
		case pct > 50:
			recs = append(recs, fmt.Sprintf("BATCH HIDING WARNING: %.2f%% of suspicious units are in %d batches. Investigate batch packing practices.",
				pct, bh.TotalBatches))
		case bh.TotalBatches > 1:
			recs = append(recs, fmt.Sprintf("BATCH PATTERN: Detected %d batches of held units. Monitor for systematic batch hiding.",
				bh.TotalBatches))
		}
		if ts := bh.BatchStatistics.TimingStats; ts != nil && ts.AvgHoldingHours > 2 {
			recs = append(recs, fmt.Sprintf("EXTENDED HOLDING: Batches are held for an average of %.2f hours before packing. Investigate reasons for extended holding.",
				ts.AvgHoldingHours))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "NORMAL: Production flow appears normal with minimal delays between final inspection and packing.")
	}
	return recs
}
