package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"aircrashes/internal/engine"
	"aircrashes/internal/metrics"
	"aircrashes/internal/models"
)

func testDataset() *engine.Dataset {
	lat, lon := 48.85, 2.35
	return engine.NewDataset([]models.Record{
		{Year: 1999, Country: "USA", Aircraft: "DC-9", Fatalities: 10, Aboard: 12},
		{Year: 2005, Country: "USA", Aircraft: "B737", Fatalities: 20, Aboard: 25},
		{Year: 2005, Country: "France", Aircraft: "A320", Fatalities: 0, Aboard: 3, Latitude: &lat, Longitude: &lon},
	})
}

func newTestServer(ds *engine.Dataset) (*echo.Echo, *Handler) {
	h := NewHandler(ds, Options{})
	e := NewServer(h, ServerOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return e, h
}

func get(e *echo.Echo, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestLoadingState(t *testing.T) {
	e, h := newTestServer(nil)

	for _, path := range []string{"/healthz", "/api/summary", "/api/meta", "/api/dashboard"} {
		if rec := get(e, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503 while loading, got %d", path, rec.Code)
		}
	}

	h.SetData(testDataset())
	if rec := get(e, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 after SetData, got %d", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	e, _ := newTestServer(testDataset())

	rec := get(e, "/api/summary?year_min=2000&year_max=2023")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var m models.SummaryMetrics
	decode(t, rec, &m)
	if m.Count != 2 || m.TotalFatalities != 20 || m.MeanFatalitiesPerRecord != 10 {
		t.Errorf("unexpected summary: %+v", m)
	}

	// defaults cover the whole dataset
	rec = get(e, "/api/summary")
	decode(t, rec, &m)
	if m.Count != 3 {
		t.Errorf("expected all 3 records by default, got %d", m.Count)
	}
}

func TestCountryParams(t *testing.T) {
	e, _ := newTestServer(testDataset())

	tests := []struct {
		query string
		want  int
	}{
		{"country=France", 1},
		{"country=France&country=USA", 3},
		{"country=France,USA", 3},
		{"country=all", 3},
		{"country=Atlantis", 0},
	}
	for _, tt := range tests {
		rec := get(e, "/api/summary?"+tt.query)
		var m models.SummaryMetrics
		decode(t, rec, &m)
		if m.Count != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.query, tt.want, m.Count)
		}
	}
}

func TestDefaultCountries(t *testing.T) {
	h := NewHandler(testDataset(), Options{DefaultCountries: []string{"France"}})
	e := NewServer(h, ServerOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	for query, want := range map[string]int{
		"":             1,
		"?country=USA": 2,
		"?country=all": 3,
		"?country=":    1,
	} {
		var m models.SummaryMetrics
		decode(t, get(e, "/api/summary"+query), &m)
		if m.Count != want {
			t.Errorf("%q: expected %d, got %d", query, want, m.Count)
		}
	}
}

func TestBadRequests(t *testing.T) {
	e, _ := newTestServer(testDataset())

	tests := []struct {
		target string
		code   int
	}{
		{"/api/summary?year_min=2010&year_max=2000", http.StatusBadRequest},
		{"/api/summary?year_min=abc", http.StatusBadRequest},
		{"/api/years/sum?field=year", http.StatusBadRequest},
		{"/api/years/sum?field=altitude", http.StatusBadRequest},
		{"/api/years/trend?window=0", http.StatusBadRequest},
		{"/api/top/country?n=ten", http.StatusBadRequest},
		{"/api/top/wings", http.StatusNotFound},
		{"/api/records/top?order=sideways", http.StatusBadRequest},
		{"/api/export?format=parquet", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := get(e, tt.target)
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, rec.Code)
			continue
		}
		var body map[string]string
		decode(t, rec, &body)
		if body["error"] == "" {
			t.Errorf("%s: missing error message: %s", tt.target, rec.Body)
		}
	}
}

func TestYearViews(t *testing.T) {
	e, _ := newTestServer(testDataset())

	var crashes []models.YearValue
	decode(t, get(e, "/api/years/crashes"), &crashes)
	if len(crashes) != 2 || crashes[1].Year != 2005 || crashes[1].Value != 2 {
		t.Errorf("crashes: %v", crashes)
	}

	var aboard []models.YearValue
	decode(t, get(e, "/api/years/sum?field=aboard"), &aboard)
	if len(aboard) != 2 || aboard[1].Value != 28 {
		t.Errorf("aboard: %v", aboard)
	}

	var trend []models.TrendPoint
	decode(t, get(e, "/api/years/trend?window=3"), &trend)
	if len(trend) != 7 {
		t.Fatalf("expected 7 points (1999..2005), got %d", len(trend))
	}
	if trend[0].Value != nil || trend[6].Value == nil {
		t.Errorf("trend values: %+v", trend)
	}

	var rel []models.YearRelation
	decode(t, get(e, "/api/years/relationship"), &rel)
	if len(rel) != 2 || rel[1].Fatalities != 20 {
		t.Errorf("relationship: %v", rel)
	}
}

func TestTopAndRecords(t *testing.T) {
	e, _ := newTestServer(testDataset())

	var top []models.CategoryCount
	decode(t, get(e, "/api/top/country?n=1"), &top)
	if len(top) != 1 || top[0].Category != "USA" || top[0].Count != 2 {
		t.Errorf("top: %v", top)
	}

	var page struct {
		Data   []models.Record `json:"data"`
		Total  int             `json:"total"`
		Limit  int             `json:"limit"`
		Offset int             `json:"offset"`
	}
	decode(t, get(e, "/api/records?limit=2&offset=1"), &page)
	if page.Total != 3 || page.Limit != 2 || page.Offset != 1 || len(page.Data) != 2 {
		t.Errorf("page: %+v", page)
	}
	if page.Data[0].Year != 2005 || page.Data[0].Country != "USA" {
		t.Errorf("page order: %+v", page.Data)
	}

	decode(t, get(e, "/api/records?limit=9223372036854775807&offset=1"), &page)
	if page.Total != 3 || page.Offset != 1 || len(page.Data) != 2 {
		t.Errorf("huge limit page: %+v", page)
	}

	var deadliest []models.Record
	decode(t, get(e, "/api/records/top?field=fatalities&k=1"), &deadliest)
	if len(deadliest) != 1 || deadliest[0].Fatalities != 20 {
		t.Errorf("deadliest: %v", deadliest)
	}

	var geo []models.GeoPoint
	decode(t, get(e, "/api/geo"), &geo)
	if len(geo) != 1 || geo[0].Country != "France" {
		t.Errorf("geo: %v", geo)
	}

	var scatter []models.ScatterPoint
	decode(t, get(e, "/api/scatter"), &scatter)
	if len(scatter) != 3 {
		t.Errorf("scatter: %v", scatter)
	}
}

func TestDashboardAndMeta(t *testing.T) {
	e, _ := newTestServer(testDataset())

	var d models.Dashboard
	decode(t, get(e, "/api/dashboard?year_min=2000"), &d)
	if d.Summary.Count != 2 || d.Filter.YearMin != 2000 || d.Filter.YearMax != 2005 {
		t.Errorf("dashboard: %+v", d)
	}

	var meta models.Meta
	decode(t, get(e, "/api/meta"), &meta)
	if meta.YearMin != 1999 || meta.YearMax != 2005 || len(meta.Countries) != 2 || meta.Kept != 3 {
		t.Errorf("meta: %+v", meta)
	}
}

func TestETag(t *testing.T) {
	e, _ := newTestServer(testDataset())

	first := get(e, "/api/summary?country=USA")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	if rec := get(e, "/api/summary?country=USA", "If-None-Match", etag); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec.Code)
	}
	other := get(e, "/api/summary?country=France")
	if other.Header().Get("ETag") == etag {
		t.Error("different queries share an ETag")
	}
}

func TestExport(t *testing.T) {
	e, _ := newTestServer(testDataset())

	rec := get(e, "/api/export?format=csv&country=USA")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type: %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "air_crashes.csv") {
		t.Errorf("content disposition: %s", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header + 2 rows, got %d lines", len(lines))
	}

	if rec := get(e, "/api/export?format=xlsx"); rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("xlsx export: %d", rec.Code)
	}
}

func TestMetricsRecordClientErrors(t *testing.T) {
	m, err := metrics.New()
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(testDataset(), Options{})
	e := NewServer(h, ServerOptions{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Metrics: m})

	if rec := get(e, "/api/summary?year_min=2010&year_max=2000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := get(e, "/api/records?limit=9223372036854775807&offset=1"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := get(e, "/metrics").Body.String()
	for _, want := range []string{
		`aircrashes_http_requests_total{code="400",route="/api/summary"} 1`,
		`aircrashes_http_requests_total{code="200",route="/api/records"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s:\n%s", want, body)
		}
	}
	if strings.Contains(body, `code="500"`) {
		t.Errorf("unexpected 500 in metrics:\n%s", body)
	}
}
