package event

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Record is one raw ingest row as delivered by the collection layer. Field
// values are kept loose on purpose: the stream is operationally noisy and
// per-row problems are tolerated, not raised.
type Record struct {
	UnitID    string `json:"unit_id"`
	Stage     string `json:"stage_name"`
	Timestamp string `json:"timestamp"`
	Line      string `json:"line_id"`
	ErrorFlag Flag   `json:"error_flag"`
}

// Flag is a 0/1 error marker tolerant of both JSON numbers and the string
// forms "0"/"1" that some collectors emit.
type Flag bool

// UnmarshalJSON accepts 0, 1, "0", "1", true, false and whitespace-padded
// string variants. Anything else decodes as false (pass).
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(bytes.Trim(bytes.TrimSpace(data), `"`)))
	*f = Flag(s == "1" || s == "true")
	return nil
}

// MarshalJSON writes the flag back as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// SkipReason says why a raw record was not converted into a Visit.
type SkipReason string

// Per-row skip reasons. These are data-quality tolerances, not errors: rows
// are dropped silently but counted so callers can observe the drop rate.
const (
	SkipMissingUnitID SkipReason = "missing_unit_id"
	SkipMissingStage  SkipReason = "missing_stage_name"
	SkipBadTimestamp  SkipReason = "bad_timestamp"
)

// SkipStats counts skipped rows per reason.
type SkipStats map[SkipReason]int

// Total returns the number of rows skipped across all reasons.
func (s SkipStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// ParseRecord converts one raw record into a Visit. The second return is the
// empty string when the record parsed, or a SkipReason when it must be
// dropped.
func ParseRecord(r Record) (Visit, SkipReason) {
	if strings.TrimSpace(r.UnitID) == "" {
		return Visit{}, SkipMissingUnitID
	}
	stage := strings.TrimSpace(r.Stage)
	if stage == "" || strings.EqualFold(stage, "nan") {
		return Visit{}, SkipMissingStage
	}
	ts, err := time.Parse(TimeLayout, strings.TrimSpace(r.Timestamp))
	if err != nil {
		return Visit{}, SkipBadTimestamp
	}
	return Visit{
		UnitID:    strings.TrimSpace(r.UnitID),
		Stage:     stage,
		Timestamp: ts,
		Line:      r.Line,
		ErrorFlag: bool(r.ErrorFlag),
	}, ""
}

// ParseRecords converts a batch of raw records, collecting parse failures
// into per-reason skip counts instead of failing the batch.
func ParseRecords(recs []Record) ([]Visit, SkipStats) {
	visits := make([]Visit, 0, len(recs))
	skipped := make(SkipStats)
	for _, r := range recs {
		v, reason := ParseRecord(r)
		if reason != "" {
			skipped[reason]++
			continue
		}
		visits = append(visits, v)
	}
	return visits, skipped
}

// DecodeRecords reads a JSON array of raw records and parses it tolerantly.
// Only a malformed envelope is an error; per-row problems become skip counts.
func DecodeRecords(data []byte) ([]Visit, SkipStats, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, nil, fmt.Errorf("decode records: %w", err)
	}
	visits, skipped := ParseRecords(recs)
	return visits, skipped, nil
}

// FormatTime renders a timestamp in the collector wire format.
func FormatTime(t time.Time) string { return t.Format(TimeLayout) }
