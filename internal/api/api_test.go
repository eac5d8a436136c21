package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linesight/linesight/internal/api"
	"github.com/linesight/linesight/internal/config"
	"github.com/linesight/linesight/internal/store"
)

// --- test helpers -----------------------------------------------------------

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		StageChain:        []string{"A", "B", "C"},
		RepairStages:      []string{"REPAIR"},
		MaxCycleSeconds:   3600,
		CapMinutes:        1440,
		ThresholdMinutes:  60,
		TimeWindowMinutes: 5,
		MinBatchSize:      3,
		GridStep:          10,
	}
}

func newHandler(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	p, err := api.NewPipeline(testConfig())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	st := store.New(5 * time.Minute)
	return api.New(st, p, nil), st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// rec builds one raw ingest row.
func rec(unit, stage, ts string) string {
	return `{"unit_id":"` + unit + `","stage_name":"` + stage + `","timestamp":"` + ts + `","line_id":"SMT-1","error_flag":0}`
}

// seedLine posts a small A→B→C walk for three units.
func seedLine(t *testing.T, h http.Handler) {
	t.Helper()
	rows := []string{
		rec("u1", "A", "2025-08-20 10:00:00"),
		rec("u1", "B", "2025-08-20 10:05:00"),
		rec("u1", "C", "2025-08-20 10:10:00"),
		rec("u2", "A", "2025-08-20 10:01:00"),
		rec("u2", "B", "2025-08-20 10:07:00"),
		rec("u2", "C", "2025-08-20 10:20:00"),
		rec("u3", "A", "2025-08-20 10:02:00"),
		rec("u3", "B", "2025-08-20 10:09:00"),
	}
	rr := post(t, h, "/api/v1/lines/SMT-1/visits", "["+strings.Join(rows, ",")+"]")
	if rr.Code != http.StatusOK {
		t.Fatalf("seed ingest: got %d (body: %s)", rr.Code, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["status"] != "ok" {
		t.Errorf("status: got %v, want ok", resp["status"])
	}
	if resp["line_count"].(float64) != 0 {
		t.Errorf("line_count: got %v, want 0", resp["line_count"])
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h, _ := newHandler(t)
	rr := post(t, h, "/api/v1/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- ingest -----------------------------------------------------------------

func TestIngest_CountsSkips(t *testing.T) {
	h, _ := newHandler(t)
	body := "[" + strings.Join([]string{
		rec("u1", "A", "2025-08-20 10:00:00"),
		rec("", "A", "2025-08-20 10:00:00"),       // missing unit id
		rec("u2", "A", "2025-08-20T10:00:00Z"),    // bad timestamp layout
		rec("u3", "nan", "2025-08-20 10:00:00"),   // stage placeholder
	}, ",") + "]"

	rr := post(t, h, "/api/v1/lines/SMT-1/visits", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["stored"].(float64) != 1 {
		t.Errorf("stored: got %v, want 1", resp["stored"])
	}
	if resp["skipped_total"].(float64) != 3 {
		t.Errorf("skipped_total: got %v, want 3", resp["skipped_total"])
	}

	// The line is now live.
	var health map[string]interface{}
	decode(t, get(t, h, "/api/v1/health"), &health)
	if health["line_count"].(float64) != 1 {
		t.Errorf("line_count after ingest: got %v, want 1", health["line_count"])
	}
}

func TestIngest_ReplaceMode(t *testing.T) {
	h, st := newHandler(t)
	seedLine(t, h)

	rr := post(t, h, "/api/v1/lines/SMT-1/visits?mode=replace",
		"["+rec("u9", "A", "2025-08-20 12:00:00")+"]")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	visits, ok := st.Get("SMT-1")
	if !ok || len(visits) != 1 {
		t.Errorf("after replace: got %d visits, want 1", len(visits))
	}
}

func TestIngest_BadMode(t *testing.T) {
	h, _ := newHandler(t)
	rr := post(t, h, "/api/v1/lines/SMT-1/visits?mode=merge", "[]")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestIngest_MalformedEnvelope(t *testing.T) {
	h, _ := newHandler(t)
	rr := post(t, h, "/api/v1/lines/SMT-1/visits", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/v1/lines/SMT-1/visits")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- line routes ------------------------------------------------------------

func TestUnknownLine_NotFound(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/v1/lines/NOPE/cycletimes")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestUnknownOperation_NotFound(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)
	rr := get(t, h, "/api/v1/lines/SMT-1/frobnicate")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- cycletimes -------------------------------------------------------------

func TestCycletimes_Table(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/cycletimes")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["analysis_id"] == "" || resp["analysis_id"] == nil {
		t.Error("analysis_id: missing")
	}
	byDate := resp["by_date"].(map[string]interface{})
	if _, ok := byDate["2025-08-20"]; !ok {
		t.Errorf("by_date: missing 2025-08-20, got keys %v", byDate)
	}
}

func TestCycletimes_Historical(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/cycletimes/historical")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	pairs := resp["station_pairs"].(map[string]interface{})
	for _, key := range []string{"A_to_B", "B_to_C"} {
		if _, ok := pairs[key]; !ok {
			t.Errorf("station_pairs: missing %s", key)
		}
	}
}

// --- throughput --------------------------------------------------------------

func TestThroughput_RequiresStage(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)
	rr := get(t, h, "/api/v1/lines/SMT-1/throughput")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestThroughput_Deltas(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/throughput?stage=A")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["total_records"].(float64) != 3 {
		t.Errorf("total_records: got %v, want 3", resp["total_records"])
	}
	if resp["total_deltas"].(float64) != 2 {
		t.Errorf("total_deltas: got %v, want 2", resp["total_deltas"])
	}
}

// --- ecdf ---------------------------------------------------------------------

func TestECDF_Basic(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/ecdf?stage_from=A&stage_to=C")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	// u1: 10 min, u2: 19 min; u3 never reaches C.
	if resp["n"].(float64) != 2 {
		t.Errorf("n: got %v, want 2", resp["n"])
	}
	if resp["stage_from"] != "A" || resp["stage_to"] != "C" {
		t.Errorf("stage echo: got %v → %v", resp["stage_from"], resp["stage_to"])
	}
	window := resp["window"].(map[string]interface{})
	if window["anchor"] != "start" {
		t.Errorf("anchor: got %v, want start default", window["anchor"])
	}
}

func TestECDF_ParamValidation(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	tests := []struct {
		name string
		path string
	}{
		{"unknown anchor", "/api/v1/lines/SMT-1/ecdf?stage_from=A&stage_to=C&anchor=middle"},
		{"stage not in chain", "/api/v1/lines/SMT-1/ecdf?stage_from=X&stage_to=C"},
		{"same stages", "/api/v1/lines/SMT-1/ecdf?stage_from=A&stage_to=A"},
		{"bad grid_step", "/api/v1/lines/SMT-1/ecdf?stage_from=A&stage_to=C&grid_step=0"},
		{"bad eval_at", "/api/v1/lines/SMT-1/ecdf?stage_from=A&stage_to=C&eval_at=10,xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, h, tt.path)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

// --- flowgaps -----------------------------------------------------------------

func TestFlowgaps_Window(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/flowgaps?start=2025-08-20+10:00:00&end=2025-08-20+11:00:00")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	flows := resp["flow_analysis"].(map[string]interface{})
	bc := flows["B_to_C"].(map[string]interface{})
	// 3 units through B, 2 through C → 1 held.
	if bc["held_units_count"].(float64) != 1 {
		t.Errorf("B_to_C held: got %v, want 1", bc["held_units_count"])
	}
}

func TestFlowgaps_RequiresWindow(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)
	rr := get(t, h, "/api/v1/lines/SMT-1/flowgaps")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestFlowgaps_InvertedWindow(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)
	rr := get(t, h, "/api/v1/lines/SMT-1/flowgaps?start=2025-08-20+11:00:00&end=2025-08-20+10:00:00")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestFlowgaps_DayView(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/flowgaps?date=2025-08-20")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["date"] != "2025-08-20" {
		t.Errorf("date: got %v", resp["date"])
	}
	hours := resp["hours"].(map[string]interface{})
	if _, ok := hours["10:00"]; !ok {
		t.Errorf("hours: missing 10:00, got %v", hours)
	}
}

// --- arrivals -----------------------------------------------------------------

func TestArrivals_Window(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/arrivals?start=2025-08-20+10:00:00&end=2025-08-20+11:00:00")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if _, ok := resp["expected_arrivals"]; !ok {
		t.Error("expected_arrivals: missing")
	}
	if _, ok := resp["cycle_time_analysis"]; !ok {
		t.Error("cycle_time_analysis: missing")
	}
}

// --- hiding -------------------------------------------------------------------

func TestHiding_DefaultReport(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/hiding")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["line_name"] != "SMT-1" {
		t.Errorf("line_name: got %v", resp["line_name"])
	}
	stats := resp["statistics"].(map[string]interface{})
	if stats["threshold_minutes"].(float64) != 60 {
		t.Errorf("threshold_minutes: got %v, want 60 default", stats["threshold_minutes"])
	}
}

func TestHiding_ParamValidation(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	for _, path := range []string{
		"/api/v1/lines/SMT-1/hiding?threshold_minutes=0",
		"/api/v1/lines/SMT-1/hiding?min_batch_size=0",
		"/api/v1/lines/SMT-1/hiding?time_window_minutes=-5",
		"/api/v1/lines/SMT-1/hiding?threshold_minutes=abc",
	} {
		rr := get(t, h, path)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

// --- alerts / overview / diagnostics ------------------------------------------

func TestAlerts_EmptyWithoutEngine(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("alerts: got %d items, want 0", len(resp))
	}
}

func TestOverview_ListsLines(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/overview")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	lines := resp["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("lines: got %d, want 1", len(lines))
	}
	if lines[0].(map[string]interface{})["line"] != "SMT-1" {
		t.Errorf("line: got %v", lines[0])
	}
}

func TestDiagnostics_AlwaysHints(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)

	rr := get(t, h, "/api/v1/lines/SMT-1/diagnostics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	var hints []map[string]interface{}
	decode(t, rr, &hints)
	if len(hints) == 0 {
		t.Fatal("diagnostics: got no hints")
	}
	for _, hint := range hints {
		if hint["key"] == "" || hint["level"] == "" {
			t.Errorf("hint missing key/level: %v", hint)
		}
	}
}

// --- Content-Type ---------------------------------------------------------------

func TestContentTypeJSON(t *testing.T) {
	h, _ := newHandler(t)
	seedLine(t, h)
	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/lines",
		"/api/v1/lines/SMT-1/cycletimes",
		"/api/v1/lines/SMT-1/hiding",
		"/api/v1/alerts",
	} {
		rr := get(t, h, path)
		ct := rr.Header().Get("Content-Type")
		if ct != "application/json" {
			t.Errorf("%s Content-Type: got %q, want application/json", path, ct)
		}
	}
}
