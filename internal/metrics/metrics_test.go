package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"aircrashes/internal/engine"
)

func TestObserveLoad(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.ObserveLoad(engine.LoadStats{Rows: 10, Kept: 8, DroppedYear: 2, Elapsed: 1500 * time.Millisecond}, nil)
	m.ObserveLoad(engine.LoadStats{}, errors.New("boom"))

	if got := testutil.ToFloat64(m.rows); got != 8 {
		t.Errorf("rows = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.loadSeconds); got != 1.5 {
		t.Errorf("load seconds = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(m.loads.WithLabelValues("error")); got != 1 {
		t.Errorf("failed loads = %v, want 1", got)
	}
}

func TestMiddleware(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
		case errors.Is(err, engine.ErrInvalidCriteria):
			code = http.StatusBadRequest
		}
		_ = c.NoContent(code)
	}
	e.Use(m.Middleware())
	e.GET("/api/summary", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int{"count": 1})
	})
	e.GET("/api/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "nope")
	})

	e.GET("/api/criteria", func(c echo.Context) error {
		return engine.ErrInvalidCriteria
	})

	for _, path := range []string{"/api/summary", "/api/summary", "/api/fail", "/api/criteria"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/summary", "200")); got != 2 {
		t.Errorf("summary requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/fail", "400")); got != 1 {
		t.Errorf("failed requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/criteria", "400")); got != 1 {
		t.Errorf("bad criteria requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/criteria", "500")); got != 0 {
		t.Errorf("bad criteria counted as 500: %v", got)
	}
}

func TestHandler(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveLoad(engine.LoadStats{Kept: 3}, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "aircrashes_dataset_rows 3") {
		t.Errorf("scrape output missing dataset rows:\n%s", body)
	}
}
