package event

import (
	"testing"
	"time"
)

func TestNewStageChain_DedupAndOrder(t *testing.T) {
	c, err := NewStageChain("A", "B", "A", "C")
	if err != nil {
		t.Fatalf("NewStageChain: %v", err)
	}
	got := c.Stages()
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if c.Terminal() != "C" {
		t.Errorf("Terminal = %q, want C", c.Terminal())
	}
}

func TestNewStageChain_RejectsTooShort(t *testing.T) {
	if _, err := NewStageChain("A", "A"); err == nil {
		t.Error("chain collapsing to one stage should error")
	}
	if _, err := NewStageChain(); err == nil {
		t.Error("empty chain should error")
	}
}

func TestStageChain_Pairs(t *testing.T) {
	c, _ := NewStageChain("A", "B", "C")
	pairs := c.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].Key() != "A_to_B" || pairs[1].Key() != "B_to_C" {
		t.Errorf("pair keys = %q, %q", pairs[0].Key(), pairs[1].Key())
	}
}

func TestParseRecord_SkipReasons(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want SkipReason
	}{
		{"ok", Record{UnitID: "U1", Stage: "ICT", Timestamp: "2025-08-20 10:00:00"}, ""},
		{"missing unit", Record{Stage: "ICT", Timestamp: "2025-08-20 10:00:00"}, SkipMissingUnitID},
		{"missing stage", Record{UnitID: "U1", Timestamp: "2025-08-20 10:00:00"}, SkipMissingStage},
		{"nan stage", Record{UnitID: "U1", Stage: "nan", Timestamp: "2025-08-20 10:00:00"}, SkipMissingStage},
		{"bad timestamp", Record{UnitID: "U1", Stage: "ICT", Timestamp: "20/08/2025"}, SkipBadTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, reason := ParseRecord(tc.rec)
			if reason != tc.want {
				t.Errorf("reason = %q, want %q", reason, tc.want)
			}
		})
	}
}

func TestDecodeRecords_TolerantFlagAndSkipCounts(t *testing.T) {
	raw := []byte(`[
		{"unit_id":"U1","stage_name":"ICT","timestamp":"2025-08-20 10:00:00","line_id":"J01","error_flag":1},
		{"unit_id":"U2","stage_name":"ICT","timestamp":"2025-08-20 10:00:05","line_id":"J01","error_flag":"0"},
		{"unit_id":"","stage_name":"ICT","timestamp":"2025-08-20 10:00:10","error_flag":"1"},
		{"unit_id":"U3","stage_name":"ICT","timestamp":"not a time","error_flag":0}
	]`)
	visits, skipped, err := DecodeRecords(raw)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(visits) != 2 {
		t.Fatalf("visits = %d, want 2", len(visits))
	}
	if !visits[0].ErrorFlag {
		t.Error("numeric error_flag 1 should parse as true")
	}
	if visits[1].ErrorFlag {
		t.Error(`string error_flag "0" should parse as false`)
	}
	if skipped[SkipMissingUnitID] != 1 || skipped[SkipBadTimestamp] != 1 {
		t.Errorf("skip counts = %v", skipped)
	}
	if skipped.Total() != 2 {
		t.Errorf("skipped total = %d, want 2", skipped.Total())
	}
}

func TestUnitIndex_KeepsEarliestPerStage(t *testing.T) {
	t0 := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)
	visits := []Visit{
		{UnitID: "U1", Stage: "ICT", Timestamp: t0.Add(5 * time.Minute)},
		{UnitID: "U1", Stage: "ICT", Timestamp: t0},
		{UnitID: "U1", Stage: "FT", Timestamp: t0.Add(10 * time.Minute)},
	}
	idx := UnitIndex(visits)
	if got := idx["U1"]["ICT"]; !got.Equal(t0) {
		t.Errorf("ICT time = %v, want %v", got, t0)
	}
	if got := idx["U1"]["FT"]; !got.Equal(t0.Add(10 * time.Minute)) {
		t.Errorf("FT time = %v", got)
	}
}
