package cycletime

import (
	"testing"
	"time"

	"github.com/linesight/linesight/internal/event"
)

var baseTime = time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

func chainABC(t *testing.T) event.StageChain {
	t.Helper()
	c, err := event.NewStageChain("A", "B", "C")
	if err != nil {
		t.Fatalf("NewStageChain: %v", err)
	}
	return c
}

func visit(unit, stage string, offset time.Duration) event.Visit {
	return event.Visit{UnitID: unit, Stage: stage, Timestamp: baseTime.Add(offset), Line: "J01"}
}

func TestNew_RejectsNonPositiveCap(t *testing.T) {
	if _, err := New(chainABC(t), 0); err == nil {
		t.Error("cap 0 should be rejected")
	}
}

func TestHourlyTable_BucketsByUpstreamHour(t *testing.T) {
	agg, _ := New(chainABC(t), 3600)
	visits := []event.Visit{
		visit("U1", "A", 0),
		visit("U1", "B", 45*time.Second),
		visit("U2", "A", 10*time.Minute),
		// U2 never reaches B: upstream counted, no sample.
	}
	table := agg.HourlyTable(visits)

	de, ok := table.ByDate["2025-08-20"]
	if !ok {
		t.Fatalf("missing date entry, got %v", table.ByDate)
	}
	he, ok := de.Hours["10:00"]
	if !ok {
		t.Fatalf("missing hour entry, got %v", de.Hours)
	}
	if he.Hour != 10 {
		t.Errorf("hour = %d, want 10", he.Hour)
	}

	ab := he.StationPairs["A_to_B"]
	if ab.UpstreamEvents != 2 {
		t.Errorf("upstream_events = %d, want 2", ab.UpstreamEvents)
	}
	if ab.DownstreamPresent != 1 {
		t.Errorf("downstream_present = %d, want 1", ab.DownstreamPresent)
	}
	if ab.SampleSize != 1 {
		t.Errorf("sample_size = %d, want 1", ab.SampleSize)
	}
	if ab.MedianSeconds == nil || *ab.MedianSeconds != 45 {
		t.Errorf("median = %v, want 45", ab.MedianSeconds)
	}

	// B_to_C saw no upstream activity this hour: explicit zero shape.
	bc := he.StationPairs["B_to_C"]
	if bc.UpstreamEvents != 1 {
		// U1 completed B at 10:00:45, so B_to_C has one upstream event.
		t.Errorf("B_to_C upstream_events = %d, want 1", bc.UpstreamEvents)
	}
	if bc.SampleSize != 0 || bc.MedianSeconds != nil {
		t.Errorf("B_to_C should have empty sample, got %+v", bc)
	}
}

func TestHourlyTable_CapBoundaryInclusive(t *testing.T) {
	agg, _ := New(chainABC(t), 60)
	visits := []event.Visit{
		visit("U1", "A", 0),
		visit("U1", "B", 60*time.Second), // exactly at cap: included
		visit("U2", "A", 0),
		visit("U2", "B", 61*time.Second), // over cap: excluded from sample
	}
	table := agg.HourlyTable(visits)
	ab := table.ByDate["2025-08-20"].Hours["10:00"].StationPairs["A_to_B"]
	if ab.SampleSize != 1 {
		t.Errorf("sample_size = %d, want 1 (cap is inclusive)", ab.SampleSize)
	}
	if ab.UpstreamEvents != 2 || ab.DownstreamPresent != 1 {
		t.Errorf("counters = up %d down %d, want 2/1", ab.UpstreamEvents, ab.DownstreamPresent)
	}
}

func TestHourlyTable_NonPositiveDeltaExcluded(t *testing.T) {
	agg, _ := New(chainABC(t), 3600)
	visits := []event.Visit{
		visit("U1", "A", time.Minute),
		visit("U1", "B", time.Minute), // same instant: not strictly after, no pair
	}
	table := agg.HourlyTable(visits)
	ab := table.ByDate["2025-08-20"].Hours["10:00"].StationPairs["A_to_B"]
	if ab.SampleSize != 0 || ab.DownstreamPresent != 0 {
		t.Errorf("zero delta must be excluded, got %+v", ab)
	}
	if ab.UpstreamEvents != 1 {
		t.Errorf("upstream still counts, got %d", ab.UpstreamEvents)
	}
}

func TestHourlyTable_NoActivityNoHour(t *testing.T) {
	agg, _ := New(chainABC(t), 3600)
	table := agg.HourlyTable(nil)
	if len(table.ByDate) != 0 {
		t.Errorf("empty input should emit no buckets, got %v", table.ByDate)
	}
}

func TestHistorical_FallbackForEmptyPair(t *testing.T) {
	agg, _ := New(chainABC(t), 3600)
	visits := []event.Visit{
		visit("U1", "A", 0),
		visit("U1", "B", 30*time.Second),
	}
	hist := agg.Historical(visits)

	ab := hist["A_to_B"]
	if ab.UsedFallback {
		t.Error("A_to_B has a sample, fallback should not be used")
	}
	if ab.MedianSeconds == nil || *ab.MedianSeconds != 30 {
		t.Errorf("A_to_B median = %v, want 30", ab.MedianSeconds)
	}

	bc := hist["B_to_C"]
	if !bc.UsedFallback {
		t.Error("B_to_C has no sample, fallback expected")
	}
	if bc.MedianSeconds == nil || *bc.MedianSeconds != DefaultMedianSeconds {
		t.Errorf("B_to_C median = %v, want default %v", bc.MedianSeconds, DefaultMedianSeconds)
	}
	if got := hist.MedianSecondsFor("B_to_C"); got != DefaultMedianSeconds {
		t.Errorf("MedianSecondsFor = %v, want %v", got, DefaultMedianSeconds)
	}
}

func TestThroughput_DeltasAndHourlySummary(t *testing.T) {
	visits := []event.Visit{
		visit("U1", "PACKING", 0),
		visit("U2", "PACKING", 12*time.Second),
		visit("U3", "PACKING", 27*time.Second),
		visit("U4", "OTHER", time.Minute),
	}
	sum := Throughput(visits, "PACKING")
	if sum.TotalRecords != 3 || sum.TotalDeltas != 2 {
		t.Fatalf("records/deltas = %d/%d, want 3/2", sum.TotalRecords, sum.TotalDeltas)
	}
	// Newest first.
	if sum.ListedDeltas[0].ToUnitID != "U3" {
		t.Errorf("first listed delta should be newest, got %+v", sum.ListedDeltas[0])
	}
	if sum.MinDeltaSeconds != 12 || sum.MaxDeltaSeconds != 15 {
		t.Errorf("min/max = %d/%d, want 12/15", sum.MinDeltaSeconds, sum.MaxDeltaSeconds)
	}
	if len(sum.HourlySummary) != 1 || sum.HourlySummary[0].Quantity != 3 {
		t.Errorf("hourly summary = %+v", sum.HourlySummary)
	}
}
