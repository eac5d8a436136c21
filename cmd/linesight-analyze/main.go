// linesight-analyze runs the full analysis pipeline over a snapshot file and
// prints one JSON report. It is the offline counterpart of the server's REST
// endpoints, useful for batch jobs and for replaying historical exports.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/linesight/linesight/internal/arrival"
	"github.com/linesight/linesight/internal/config"
	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/ecdf"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/flowgap"
	"github.com/linesight/linesight/internal/hiding"
)

const dateLayout = "2006-01-02"

// report is the combined output of one analyze run.
type report struct {
	AnalysisID  string              `json:"analysis_id"`
	GeneratedAt string              `json:"generated_at"`
	Input       string              `json:"input"`
	Line        string              `json:"line"`
	Visits      int                 `json:"visits"`
	Skipped     event.SkipStats     `json:"skipped,omitempty"`
	CycleTimes  *cycletime.Table    `json:"cycle_times"`
	Historical  cycletime.PairStats `json:"historical_cycle_times"`

	Dwell *dwellReport `json:"dwell,omitempty"`

	FlowGaps *flowgap.Analysis `json:"flow_gaps,omitempty"`
	Arrivals *arrival.Analysis `json:"arrivals,omitempty"`
	Hiding   *hiding.Report    `json:"hiding,omitempty"`
}

// dwellReport is the ECDF section, present when -from/-to name a stage pair.
type dwellReport struct {
	StageFrom string             `json:"stage_from"`
	StageTo   string             `json:"stage_to"`
	ecdf.Result
	ReleaseBatches []dwell.MinuteBatch `json:"release_batches,omitempty"`
}

func main() {
	var (
		inputPath  = flag.String("input", "", "snapshot file: JSON array of visit records (required)")
		configPath = flag.String("config", "", "config file; defaults apply when empty")
		line       = flag.String("line", "", "line name used in the hiding report")
		stageFrom  = flag.String("from", "", "dwell stage_from; empty uses the pre-terminal stage")
		stageTo    = flag.String("to", "", "dwell stage_to; empty uses the terminal stage")
		date       = flag.String("date", "", "analysis window as a whole day, YYYY-MM-DD")
		startStr   = flag.String("start", "", "window start, \"2006-01-02 15:04:05\"")
		endStr     = flag.String("end", "", "window end, \"2006-01-02 15:04:05\"")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *inputPath == "" {
		slog.Error("missing -input")
		os.Exit(2)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	an := cfg.Analysis

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		slog.Error("failed to read snapshot", "path", *inputPath, "err", err)
		os.Exit(1)
	}
	visits, skipped, err := event.DecodeRecords(data)
	if err != nil {
		slog.Error("failed to decode snapshot", "path", *inputPath, "err", err)
		os.Exit(1)
	}
	if skipped.Total() > 0 {
		slog.Warn("skipped malformed rows", "skipped", skipped.Total(), "kept", len(visits))
	}

	start, end, err := window(*date, *startStr, *endStr, visits)
	if err != nil {
		slog.Error("bad analysis window", "err", err)
		os.Exit(2)
	}

	chain, err := event.NewStageChain(an.StageChain...)
	if err != nil {
		slog.Error("bad stage chain", "err", err)
		os.Exit(1)
	}
	agg, err := cycletime.New(chain, float64(an.MaxCycleSeconds))
	if err != nil {
		slog.Error("bad cycle-time parameters", "err", err)
		os.Exit(1)
	}
	detector, err := hiding.NewDetector(an.TimeWindowMinutes, an.MinBatchSize)
	if err != nil {
		slog.Error("bad clustering parameters", "err", err)
		os.Exit(1)
	}
	sampler := dwell.NewSampler(chain, an.RepairStages)

	stages := chain.Stages()
	from, to := *stageFrom, *stageTo
	if from == "" {
		from = stages[len(stages)-2]
	}
	if to == "" {
		to = chain.Terminal()
	}

	out := report{
		AnalysisID:  uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Input:       *inputPath,
		Line:        *line,
		Visits:      len(visits),
		Skipped:     skipped,
		CycleTimes:  agg.HourlyTable(visits),
		Historical:  agg.Historical(visits),
	}

	pairs, err := sampler.Pairs(visits, dwell.Params{
		StageFrom:  from,
		StageTo:    to,
		CapMinutes: an.CapMinutes,
	})
	if err != nil {
		slog.Error("dwell sampling failed", "from", from, "to", to, "err", err)
		os.Exit(1)
	}
	res, err := ecdf.Compute(dwell.Durations(pairs), ecdf.Params{GridStep: an.GridStep})
	if err != nil {
		slog.Error("ecdf failed", "err", err)
		os.Exit(1)
	}
	out.Dwell = &dwellReport{
		StageFrom:      from,
		StageTo:        to,
		Result:         res,
		ReleaseBatches: dwell.BatchMinutes(pairs, 5, 60),
	}

	flow, err := flowgap.New(chain).Analyze(visits, start, end)
	if err != nil {
		slog.Error("flow-gap analysis failed", "err", err)
		os.Exit(1)
	}
	out.FlowGaps = &flow

	arr, err := arrival.NewWalker(chain, out.Historical).Analyze(visits, start, end)
	if err != nil {
		slog.Error("arrival analysis failed", "err", err)
		os.Exit(1)
	}
	out.Arrivals = &arr

	rep := detector.Report(*line, pairs, an.ThresholdMinutes, time.Now())
	out.Hiding = &rep

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to encode report", "err", err)
		os.Exit(1)
	}
}

// window resolves the analysis window from flags. A -date covers the whole
// day; -start/-end name it exactly; with neither, the snapshot's own time span
// is used.
func window(date, startStr, endStr string, visits []event.Visit) (time.Time, time.Time, error) {
	if date != "" {
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return day, day.Add(24 * time.Hour), nil
	}
	if startStr != "" || endStr != "" {
		start, err := time.Parse(event.TimeLayout, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := time.Parse(event.TimeLayout, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, end, nil
	}
	if len(visits) == 0 {
		now := time.Now()
		return now.Add(-time.Hour), now, nil
	}
	start, end := visits[0].Timestamp, visits[0].Timestamp
	for _, v := range visits[1:] {
		if v.Timestamp.Before(start) {
			start = v.Timestamp
		}
		if v.Timestamp.After(end) {
			end = v.Timestamp
		}
	}
	return start, end.Add(time.Second), nil
}
