package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/linesight/linesight/internal/alerts"
	"github.com/linesight/linesight/internal/config"
	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/flowgap"
	"github.com/linesight/linesight/internal/hiding"
	"github.com/linesight/linesight/internal/store"
)

// overviewWindow is the lookback used for the live line overview that feeds
// the WebSocket hub and the alert engine.
const overviewWindow = time.Hour

// Pipeline bundles the analyzers built from one analysis configuration. It is
// shared by the HTTP handlers and the WebSocket hub so both views of a line
// are computed the same way.
type Pipeline struct {
	Chain    event.StageChain
	Agg      *cycletime.Aggregator
	Sampler  *dwell.Sampler
	Flow     *flowgap.Analyzer
	Detector *hiding.Detector
	Cfg      config.AnalysisConfig
}

// NewPipeline validates cfg and constructs the analyzer set.
func NewPipeline(cfg config.AnalysisConfig) (*Pipeline, error) {
	chain, err := event.NewStageChain(cfg.StageChain...)
	if err != nil {
		return nil, fmt.Errorf("api: stage chain: %w", err)
	}
	agg, err := cycletime.New(chain, float64(cfg.MaxCycleSeconds))
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	det, err := hiding.NewDetector(cfg.TimeWindowMinutes, cfg.MinBatchSize)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	return &Pipeline{
		Chain:    chain,
		Agg:      agg,
		Sampler:  dwell.NewSampler(chain, cfg.RepairStages),
		Flow:     flowgap.New(chain),
		Detector: det,
		Cfg:      cfg,
	}, nil
}

// InspectStage is the stage immediately upstream of the terminal stage. The
// inspect-to-pack dwell between these two is where hiding shows up.
func (p *Pipeline) InspectStage() string {
	stages := p.Chain.Stages()
	return stages[len(stages)-2]
}

// LineOverview is the live rollup for one line over the last hour.
type LineOverview struct {
	Line                 string          `json:"line"`
	WindowStart          string          `json:"window_start"`
	WindowEnd            string          `json:"window_end"`
	FlowSummary          flowgap.Summary `json:"flow_summary"`
	WIPCount             int             `json:"wip_count"`
	SuspiciousPercentage float64         `json:"suspicious_percentage"`
	BatchCount           int             `json:"batch_count"`
	MaxDelayHours        float64         `json:"max_delay_hours"`
}

// Overview is the all-lines live rollup broadcast to dashboard clients.
type Overview struct {
	GeneratedAt string         `json:"generated_at"`
	Lines       []LineOverview `json:"lines"`
}

// LineOverview computes the last-hour rollup for one line's visits.
func (p *Pipeline) LineOverview(line string, visits []event.Visit, now time.Time) (LineOverview, error) {
	start := now.Add(-overviewWindow)
	an, err := p.Flow.Analyze(visits, start, now)
	if err != nil {
		return LineOverview{}, err
	}

	pairs, err := p.Sampler.Pairs(visits, dwell.Params{
		StageFrom:  p.InspectStage(),
		StageTo:    p.Chain.Terminal(),
		CapMinutes: p.Cfg.CapMinutes,
	})
	if err != nil {
		return LineOverview{}, err
	}
	rep := p.Detector.Report(line, pairs, p.Cfg.ThresholdMinutes, now)

	wip := 0
	for _, units := range an.WIP {
		wip += len(units)
	}

	return LineOverview{
		Line:                 line,
		WindowStart:          event.FormatTime(start),
		WindowEnd:            event.FormatTime(now),
		FlowSummary:          an.Summary,
		WIPCount:             wip,
		SuspiciousPercentage: rep.Statistics.SuspiciousPercentage,
		BatchCount:           rep.DetectedPatterns.BatchHiding.TotalBatches,
		MaxDelayHours:        rep.Statistics.MaxDelayHours,
	}, nil
}

// Metrics converts a line overview to the flat shape the alert engine
// evaluates rule conditions against.
func (o LineOverview) Metrics() alerts.LineMetrics {
	return alerts.LineMetrics{
		Line:                 o.Line,
		TotalHeldUnits:       o.FlowSummary.TotalHeldUnits,
		WorstEfficiency:      o.FlowSummary.WorstEfficiency,
		CriticalFlowCount:    len(o.FlowSummary.CriticalFlows),
		WIPCount:             o.WIPCount,
		SuspiciousPercentage: o.SuspiciousPercentage,
		BatchCount:           o.BatchCount,
		MaxDelayHours:        o.MaxDelayHours,
	}
}

// BuildOverview computes the rollup for every live line in the store, sorted
// by line name. Lines whose rollup fails are skipped.
func BuildOverview(p *Pipeline, st *store.Store, now time.Time) Overview {
	lines := st.Lines()
	sort.Strings(lines)

	out := Overview{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Lines:       make([]LineOverview, 0, len(lines)),
	}
	for _, line := range lines {
		visits, ok := st.Get(line)
		if !ok {
			continue
		}
		lo, err := p.LineOverview(line, visits, now)
		if err != nil {
			continue
		}
		out.Lines = append(out.Lines, lo)
	}
	return out
}
