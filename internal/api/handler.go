package api

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/linesight/linesight/internal/alerts"
	"github.com/linesight/linesight/internal/arrival"
	"github.com/linesight/linesight/internal/cycletime"
	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/ecdf"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/hiding"
	"github.com/linesight/linesight/internal/store"
)

// maxIngestBytes caps one ingest request body (64 MiB).
const maxIngestBytes = 64 << 20

// Release-batch flagging defaults for the ECDF view: at least this many units
// arriving in the same minute, with at least this median dwell.
const (
	defaultBatchCount     = 5
	defaultBatchMedianMin = 60.0
)

// dateLayout is the day selector format for the hour-by-hour analyses.
const dateLayout = "2006-01-02"

// Handler is the HTTP handler for all /api/v1/* endpoints. It reads visit
// snapshots from the store and computes analyses on demand.
type Handler struct {
	store    *store.Store
	pipeline atomic.Pointer[Pipeline]
	engine   *alerts.Engine
	mux      *http.ServeMux
	now      func() time.Time
}

// New creates a Handler wired to the given store and analyzer pipeline and
// registers all routes. engine may be nil when alerting is not configured.
func New(st *store.Store, p *Pipeline, engine *alerts.Engine) *Handler {
	h := &Handler{
		store:  st,
		engine: engine,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	h.pipeline.Store(p)

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/lines", h.listLines)
	h.mux.HandleFunc("/api/v1/lines/", h.lineRoutes) // subtree — extracts {line}
	h.mux.HandleFunc("/api/v1/overview", h.overview)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

// UpdatePipeline swaps the analyzer pipeline. Used by config hot reload; in
// flight requests keep the pipeline they started with.
func (h *Handler) UpdatePipeline(p *Pipeline) {
	h.pipeline.Store(p)
}

func (h *Handler) pl() *Pipeline { return h.pipeline.Load() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	requestsTotal.WithLabelValues(endpointLabel(r.URL.Path), strconv.Itoa(rec.code)).Inc()
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — liveness plus the live line set.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lines := h.store.Lines()
	sort.Strings(lines)
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		LineCount: len(lines),
		Lines:     lines,
	})
}

// listLines returns GET /api/v1/lines — all live lines with visit counts.
func (h *Handler) listLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lines := h.store.Lines()
	sort.Strings(lines)
	out := make([]LineInfo, 0, len(lines))
	for _, line := range lines {
		visits, ok := h.store.Get(line)
		if !ok {
			continue
		}
		out = append(out, LineInfo{Line: line, VisitCount: len(visits)})
	}
	jsonResp(w, http.StatusOK, out)
}

// overview returns GET /api/v1/overview — the live per-line rollup that the
// WebSocket hub broadcasts.
func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildOverview(h.pl(), h.store, h.now()))
}

// alerts returns GET /api/v1/alerts — firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.engine == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.engine.Active())
}

// lineRoutes dispatches /api/v1/lines/{line}/{op}.
func (h *Handler) lineRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/lines/")
	if rest == "" {
		h.listLines(w, r)
		return
	}
	line, op, _ := strings.Cut(rest, "/")

	if op == "visits" {
		h.ingest(w, r, line)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	visits, ok := h.store.Get(line)
	if !ok {
		jsonErr(w, http.StatusNotFound, "line not found")
		return
	}

	switch op {
	case "cycletimes":
		h.cycletimes(w, r, line, visits)
	case "cycletimes/historical":
		h.historical(w, line, visits)
	case "throughput":
		h.throughput(w, r, line, visits)
	case "ecdf":
		h.ecdf(w, r, line, visits)
	case "flowgaps":
		h.flowgaps(w, r, line, visits)
	case "arrivals":
		h.arrivals(w, r, line, visits)
	case "hiding":
		h.hiding(w, r, line, visits)
	case "diagnostics":
		h.diagnostics(w, line, visits)
	default:
		jsonErr(w, http.StatusNotFound, "unknown operation")
	}
}

// ingest handles POST /api/v1/lines/{line}/visits — a JSON array of raw
// records. mode=append (default) extends the snapshot; mode=replace swaps it.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, line string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if line == "" {
		jsonErr(w, http.StatusBadRequest, "line name is required")
		return
	}

	mode := r.URL.Query().Get("mode")
	switch mode {
	case "", "append", "replace":
	default:
		jsonErr(w, http.StatusBadRequest, "mode must be append or replace")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	visits, skipped, err := event.DecodeRecords(body)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	var total int
	if mode == "replace" {
		h.store.Replace(line, visits)
		total = len(visits)
	} else {
		total = h.store.Append(line, visits)
	}

	ingestVisitsTotal.Add(float64(len(visits)))
	for reason, n := range skipped {
		ingestSkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}

	jsonResp(w, http.StatusOK, IngestResponse{
		Line:         line,
		Stored:       len(visits),
		TotalVisits:  total,
		SkippedTotal: skipped.Total(),
		Skipped:      skipped,
	})
}

// cycletimes returns GET /api/v1/lines/{line}/cycletimes — the hourly
// date -> hour -> pair table.
func (h *Handler) cycletimes(w http.ResponseWriter, _ *http.Request, line string, visits []event.Visit) {
	analysesTotal.WithLabelValues("cycletime_table").Inc()
	jsonResp(w, http.StatusOK, TableResponse{
		AnalysisID: uuid.NewString(),
		Line:       line,
		Table:      h.pl().Agg.HourlyTable(visits),
	})
}

// historical returns GET /api/v1/lines/{line}/cycletimes/historical — the
// whole-window per-pair stats the arrival walker runs on.
func (h *Handler) historical(w http.ResponseWriter, line string, visits []event.Visit) {
	analysesTotal.WithLabelValues("cycletime_historical").Inc()
	jsonResp(w, http.StatusOK, HistoricalResponse{
		AnalysisID:   uuid.NewString(),
		Line:         line,
		StationPairs: h.pl().Agg.Historical(visits),
	})
}

// throughput returns GET /api/v1/lines/{line}/throughput?stage=S — the
// inter-event delta view for one stage.
func (h *Handler) throughput(w http.ResponseWriter, r *http.Request, line string, visits []event.Visit) {
	stage := r.URL.Query().Get("stage")
	if stage == "" {
		jsonErr(w, http.StatusBadRequest, "stage parameter is required")
		return
	}
	analysesTotal.WithLabelValues("throughput").Inc()
	jsonResp(w, http.StatusOK, ThroughputResponse{
		AnalysisID:        uuid.NewString(),
		Line:              line,
		ThroughputSummary: cycletime.Throughput(visits, stage),
	})
}

// ecdf returns GET /api/v1/lines/{line}/ecdf — the censored dwell ECDF
// between two stages, plus the flagged release-batch minutes.
func (h *Handler) ecdf(w http.ResponseWriter, r *http.Request, line string, visits []event.Visit) {
	q := r.URL.Query()
	p := h.pl()

	anchor, err := dwell.ParseAnchor(q.Get("anchor"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := timeParam(q.Get("start"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := timeParam(q.Get("end"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}
	capMinutes, err := intParam(q.Get("cap_minutes"), p.Cfg.CapMinutes)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "cap_minutes: "+err.Error())
		return
	}
	gridStep, err := intParam(q.Get("grid_step"), p.Cfg.GridStep)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "grid_step: "+err.Error())
		return
	}
	gridMax, err := intParam(q.Get("grid_max"), 0)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "grid_max: "+err.Error())
		return
	}
	evalAt, err := intListParam(q.Get("eval_at"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "eval_at: "+err.Error())
		return
	}

	params := dwell.Params{
		StageFrom:        q.Get("stage_from"),
		StageTo:          q.Get("stage_to"),
		Window:           dwell.Window{Anchor: anchor, Start: start, End: end},
		CapMinutes:       capMinutes,
		CensorFlowErrors: boolParam(q.Get("censor_flow_errors")),
		CensorRepairs:    boolParam(q.Get("censor_repairs")),
	}

	pairs, err := p.Sampler.Pairs(visits, params)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := ecdf.Compute(dwell.Durations(pairs), ecdf.Params{
		GridStep: gridStep,
		GridMax:  gridMax,
		EvalAt:   evalAt,
	})
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	analysesTotal.WithLabelValues("ecdf").Inc()
	jsonResp(w, http.StatusOK, ECDFResponse{
		AnalysisID: uuid.NewString(),
		Line:       line,
		StageFrom:  params.StageFrom,
		StageTo:    params.StageTo,
		Window: ECDFWindow{
			Anchor:  string(anchor),
			StartDt: timeText(start),
			EndDt:   timeText(end),
		},
		Result:         result,
		ReleaseBatches: dwell.BatchMinutes(pairs, defaultBatchCount, defaultBatchMedianMin),
	})
}

// flowgaps returns GET /api/v1/lines/{line}/flowgaps. With start+end it
// analyzes one window; with date it produces the hour-by-hour day view.
func (h *Handler) flowgaps(w http.ResponseWriter, r *http.Request, line string, visits []event.Visit) {
	q := r.URL.Query()
	p := h.pl()

	if d := q.Get("date"); d != "" {
		day, err := time.Parse(dateLayout, d)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "date: want "+dateLayout)
			return
		}
		df, err := p.Flow.AnalyzeDay(visits, day)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		analysesTotal.WithLabelValues("flowgap_day").Inc()
		jsonResp(w, http.StatusOK, DayFlowResponse{AnalysisID: uuid.NewString(), Line: line, DayFlow: df})
		return
	}

	start, end, err := windowParams(q.Get("start"), q.Get("end"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	an, err := p.Flow.Analyze(visits, start, end)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	analysesTotal.WithLabelValues("flowgap").Inc()
	jsonResp(w, http.StatusOK, FlowResponse{AnalysisID: uuid.NewString(), Line: line, Analysis: an})
}

// arrivals returns GET /api/v1/lines/{line}/arrivals. With start+end it runs
// the expected-arrival walk for one window; with date the day view.
func (h *Handler) arrivals(w http.ResponseWriter, r *http.Request, line string, visits []event.Visit) {
	q := r.URL.Query()
	p := h.pl()
	walker := arrival.NewWalker(p.Chain, p.Agg.Historical(visits))

	if d := q.Get("date"); d != "" {
		day, err := time.Parse(dateLayout, d)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "date: want "+dateLayout)
			return
		}
		dp, err := walker.AnalyzeDay(visits, day)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		analysesTotal.WithLabelValues("arrival_day").Inc()
		jsonResp(w, http.StatusOK, DayArrivalResponse{AnalysisID: uuid.NewString(), Line: line, DayPerformance: dp})
		return
	}

	start, end, err := windowParams(q.Get("start"), q.Get("end"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	an, err := walker.Analyze(visits, start, end)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	analysesTotal.WithLabelValues("arrival").Inc()
	jsonResp(w, http.StatusOK, ArrivalResponse{AnalysisID: uuid.NewString(), Line: line, Analysis: an})
}

// hiding returns GET /api/v1/lines/{line}/hiding — the hiding-pattern report
// over the inspect-to-pack dwell pairs.
func (h *Handler) hiding(w http.ResponseWriter, r *http.Request, line string, visits []event.Visit) {
	q := r.URL.Query()
	p := h.pl()
	cfg := p.Cfg

	threshold, err := intParam(q.Get("threshold_minutes"), cfg.ThresholdMinutes)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "threshold_minutes: "+err.Error())
		return
	}
	if threshold <= 0 {
		jsonErr(w, http.StatusBadRequest, "threshold_minutes must be positive")
		return
	}
	timeWindow, err := intParam(q.Get("time_window_minutes"), cfg.TimeWindowMinutes)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "time_window_minutes: "+err.Error())
		return
	}
	minBatch, err := intParam(q.Get("min_batch_size"), cfg.MinBatchSize)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "min_batch_size: "+err.Error())
		return
	}
	capMinutes, err := intParam(q.Get("cap_minutes"), cfg.CapMinutes)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "cap_minutes: "+err.Error())
		return
	}

	det := p.Detector
	if timeWindow != cfg.TimeWindowMinutes || minBatch != cfg.MinBatchSize {
		det, err = hiding.NewDetector(timeWindow, minBatch)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	stageFrom := q.Get("stage_from")
	if stageFrom == "" {
		stageFrom = p.InspectStage()
	}
	stageTo := q.Get("stage_to")
	if stageTo == "" {
		stageTo = p.Chain.Terminal()
	}

	pairs, err := p.Sampler.Pairs(visits, dwell.Params{
		StageFrom:  stageFrom,
		StageTo:    stageTo,
		CapMinutes: capMinutes,
	})
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	analysesTotal.WithLabelValues("hiding").Inc()
	jsonResp(w, http.StatusOK, HidingResponse{
		AnalysisID: uuid.NewString(),
		Report:     det.Report(line, pairs, threshold, h.now()),
	})
}

// diagnostics returns GET /api/v1/lines/{line}/diagnostics — plain-language
// hints about the line's current flow health.
func (h *Handler) diagnostics(w http.ResponseWriter, line string, visits []event.Visit) {
	lo, err := h.pl().LineOverview(line, visits, h.now())
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	analysesTotal.WithLabelValues("diagnostics").Inc()
	jsonResp(w, http.StatusOK, computeDiagnostics(lo))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// timeParam parses an optional wire-format timestamp. Empty means unset.
func timeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(event.TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want %q", event.TimeLayout)
	}
	return t, nil
}

// windowParams parses a required start+end pair.
func windowParams(startS, endS string) (time.Time, time.Time, error) {
	if startS == "" || endS == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end are required (or use date=YYYY-MM-DD)")
	}
	start, err := timeParam(startS)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %v", err)
	}
	end, err := timeParam(endS)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %v", err)
	}
	return start, end, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// intListParam parses a comma-separated integer list.
func intListParam(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func boolParam(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return event.FormatTime(t)
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// endpointLabel normalizes a request path to a bounded metric label: line
// names are stripped so label cardinality stays fixed.
func endpointLabel(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "other"
	}
	if sub, ok := strings.CutPrefix(rest, "lines/"); ok {
		_, op, found := strings.Cut(sub, "/")
		if !found || op == "" {
			return "lines"
		}
		return "lines/" + op
	}
	return rest
}
