package api

import (
	"github.com/linesight/linesight/internal/arrival"
	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/ecdf"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/flowgap"
	"github.com/linesight/linesight/internal/hiding"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status    string   `json:"status"`
	LineCount int      `json:"line_count"`
	Lines     []string `json:"lines"`
}

// LineInfo is one line entry in GET /api/v1/lines.
type LineInfo struct {
	Line       string `json:"line"`
	VisitCount int    `json:"visit_count"`
}

// IngestResponse is the payload for POST /api/v1/lines/{line}/visits.
type IngestResponse struct {
	Line         string          `json:"line"`
	Stored       int             `json:"stored"`
	TotalVisits  int             `json:"total_visits"`
	SkippedTotal int             `json:"skipped_total"`
	Skipped      event.SkipStats `json:"skipped,omitempty"`
}

// TableResponse wraps the hourly cycle-time table for one line.
type TableResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	*cycletime.Table
}

// HistoricalResponse wraps the whole-window pair stats for one line.
type HistoricalResponse struct {
	AnalysisID   string              `json:"analysis_id"`
	Line         string              `json:"line"`
	StationPairs cycletime.PairStats `json:"station_pairs"`
}

// ThroughputResponse wraps the single-stage throughput view.
type ThroughputResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	cycletime.ThroughputSummary
}

// ECDFWindow echoes the window the dwell sample was filtered with.
type ECDFWindow struct {
	Anchor  string `json:"anchor"`
	StartDt string `json:"start_dt"`
	EndDt   string `json:"end_dt"`
}

// ECDFResponse is the envelope for GET /api/v1/lines/{line}/ecdf.
type ECDFResponse struct {
	AnalysisID string     `json:"analysis_id"`
	Line       string     `json:"line"`
	StageFrom  string     `json:"stage_from"`
	StageTo    string     `json:"stage_to"`
	Window     ECDFWindow `json:"window"`
	ecdf.Result
	ReleaseBatches []dwell.MinuteBatch `json:"release_batches"`
}

// FlowResponse wraps one flow-gap analysis window.
type FlowResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	flowgap.Analysis
}

// DayFlowResponse wraps one day's hour-by-hour flow analysis.
type DayFlowResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	flowgap.DayFlow
}

// ArrivalResponse wraps one expected-arrival analysis window.
type ArrivalResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	arrival.Analysis
}

// DayArrivalResponse wraps one day's hour-by-hour arrival performance.
type DayArrivalResponse struct {
	AnalysisID string `json:"analysis_id"`
	Line       string `json:"line"`
	arrival.DayPerformance
}

// HidingResponse wraps one hiding-pattern report.
type HidingResponse struct {
	AnalysisID string `json:"analysis_id"`
	hiding.Report
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
