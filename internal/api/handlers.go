package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"

	"aircrashes/internal/engine"
	"aircrashes/internal/export"
	"aircrashes/internal/models"
)

const (
	defaultPageSize = 50

	headerETag        = "ETag"
	headerIfNoneMatch = "If-None-Match"
)

var errLoading = echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is still loading")

// Options are the defaults applied when a request leaves a parameter out.
type Options struct {
	// 0 means the dataset bound
	DefaultYearMin int
	DefaultYearMax int
	// used when a request names no country
	DefaultCountries []string
	Dashboard        engine.DashboardOptions
}

// Handler serves views of the currently published Dataset. It starts empty
// and answers 503 until SetData is called.
type Handler struct {
	data atomic.Pointer[engine.Dataset]
	opts Options
}

func NewHandler(ds *engine.Dataset, opts Options) *Handler {
	if opts.Dashboard == (engine.DashboardOptions{}) {
		opts.Dashboard = engine.DefaultDashboardOptions()
	}
	h := &Handler{opts: opts}
	if ds != nil {
		h.data.Store(ds)
	}
	return h
}

// SetData publishes ds to every subsequent request.
func (h *Handler) SetData(ds *engine.Dataset) {
	h.data.Store(ds)
}

func (h *Handler) Data() *engine.Dataset {
	return h.data.Load()
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.GetHealth)

	api := e.Group("/api")
	api.GET("/meta", h.GetMeta)
	api.GET("/dashboard", h.GetDashboard)
	api.GET("/summary", h.GetSummary)
	api.GET("/years/crashes", h.GetCrashesByYear)
	api.GET("/years/sum", h.GetSumByYear)
	api.GET("/years/trend", h.GetTrend)
	api.GET("/years/relationship", h.GetRelationship)
	api.GET("/top/:category", h.GetTopCategory)
	api.GET("/records", h.GetRecords)
	api.GET("/records/top", h.GetTopRecords)
	api.GET("/scatter", h.GetScatter)
	api.GET("/geo", h.GetGeo)
	api.GET("/export", h.GetExport)
}

// --- REQUEST HELPERS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// queryInt returns def when name is absent and 400 when it is not an integer.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer, got %q", name, raw))
	}
	return n, nil
}

// countries accepts both ?country=A&country=B and ?country=A,B.
func countries(c echo.Context) []string {
	var out []string
	for _, v := range c.QueryParams()["country"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func (h *Handler) criteria(c echo.Context, ds *engine.Dataset) (engine.FilterCriteria, error) {
	lo, hi, _ := ds.YearBounds()
	if h.opts.DefaultYearMin != 0 {
		lo = h.opts.DefaultYearMin
	}
	if h.opts.DefaultYearMax != 0 {
		hi = h.opts.DefaultYearMax
	}

	var crit engine.FilterCriteria
	var err error
	if crit.YearMin, err = queryInt(c, "year_min", lo); err != nil {
		return crit, err
	}
	if crit.YearMax, err = queryInt(c, "year_max", hi); err != nil {
		return crit, err
	}
	crit.Countries = countries(c)
	if len(crit.Countries) == 0 {
		crit.Countries = h.opts.DefaultCountries
	}
	return crit, nil
}

// view resolves the published Dataset and the request's filter.
func (h *Handler) view(c echo.Context) (engine.View, engine.FilterCriteria, error) {
	ds := h.data.Load()
	if ds == nil {
		return engine.View{}, engine.FilterCriteria{}, errLoading
	}
	crit, err := h.criteria(c, ds)
	if err != nil {
		return engine.View{}, crit, err
	}
	v, err := engine.Filter(ds.All(), crit)
	if err != nil {
		return engine.View{}, crit, err
	}
	return v, crit, nil
}

// notModified sets the ETag of the response and reports whether the client
// already holds it. The tag changes with the dataset and with the query.
func notModified(c echo.Context, ds *engine.Dataset) bool {
	key := c.Path() + "?" + c.QueryParams().Encode()
	etag := fmt.Sprintf(`"%016x-%016x"`, ds.Fingerprint(), xxh3.HashString(key))
	c.Response().Header().Set(headerETag, etag)
	return c.Request().Header.Get(headerIfNoneMatch) == etag
}

// respond writes payload as JSON unless the client's copy is current.
func respond(c echo.Context, v engine.View, payload interface{}) error {
	if ds := v.Dataset(); ds != nil && notModified(c, ds) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, payload)
}

// --- HANDLERS ---

func (h *Handler) GetHealth(c echo.Context) error {
	ds := h.data.Load()
	if ds == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "rows": ds.Len()})
}

func (h *Handler) GetMeta(c echo.Context) error {
	ds := h.data.Load()
	if ds == nil {
		return errLoading
	}
	lo, hi, _ := ds.YearBounds()
	stats := ds.Stats()
	return c.JSON(http.StatusOK, models.Meta{
		Source:      ds.Source(),
		Fingerprint: fmt.Sprintf("%016x", ds.Fingerprint()),
		YearMin:     lo,
		YearMax:     hi,
		Countries:   ds.Countries(),
		Rows:        stats.Rows,
		Kept:        stats.Kept,
		DroppedYear: stats.DroppedYear,
		Coerced:     stats.CoercedNumeric,
	})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	v, crit, err := h.view(c)
	if err != nil {
		return err
	}
	data, err := engine.BuildDashboard(v, crit, h.opts.Dashboard)
	if err != nil {
		return err
	}
	return respond(c, v, data)
}

func (h *Handler) GetSummary(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	return respond(c, v, engine.Summary(v))
}

func (h *Handler) GetCrashesByYear(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	return respond(c, v, engine.CountsByYear(v))
}

func (h *Handler) GetSumByYear(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	field := engine.FieldFatalities
	if raw := c.QueryParam("field"); raw != "" {
		if field, err = engine.ParseField(raw); err != nil {
			return err
		}
	}
	series, err := engine.SumByYear(v, field)
	if err != nil {
		return err
	}
	return respond(c, v, series)
}

// crashes per year, gaps filled, smoothed
func (h *Handler) GetTrend(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	window, err := queryInt(c, "window", h.opts.Dashboard.TrendWindow)
	if err != nil {
		return err
	}
	trend, err := engine.RollingAverage(engine.FillYears(engine.CountsByYear(v)), window)
	if err != nil {
		return err
	}
	return respond(c, v, trend)
}

func (h *Handler) GetRelationship(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	return respond(c, v, engine.YearlyRelationship(v))
}

func (h *Handler) GetTopCategory(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	category, err := engine.ParseCategory(c.Param("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	n, err := queryInt(c, "n", h.opts.Dashboard.TopN)
	if err != nil {
		return err
	}
	top, err := engine.TopNByCategory(v, category, n)
	if err != nil {
		return err
	}
	return respond(c, v, top)
}

func (h *Handler) GetRecords(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	total := v.Len()
	limit, offset := getPaginationParams(c, defaultPageSize)

	return respond(c, v, map[string]interface{}{
		"data":   v.Slice(offset, limit),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetTopRecords(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	field := engine.FieldFatalities
	if raw := c.QueryParam("field"); raw != "" {
		if field, err = engine.ParseField(raw); err != nil {
			return err
		}
	}
	k, err := queryInt(c, "k", h.opts.Dashboard.TopK)
	if err != nil {
		return err
	}
	var descending bool
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "desc":
		descending = true
	case "asc":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "order must be asc or desc")
	}
	records, err := engine.TopKRecords(v, field, k, descending)
	if err != nil {
		return err
	}
	return respond(c, v, records)
}

func (h *Handler) GetScatter(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	return respond(c, v, engine.AboardVsFatalities(v))
}

func (h *Handler) GetGeo(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	return respond(c, v, engine.GeoPoints(v))
}

func (h *Handler) GetExport(c echo.Context) error {
	v, _, err := h.view(c)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if notModified(c, v.Dataset()) {
		return c.NoContent(http.StatusNotModified)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, v); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", format.FileName()))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

// --- ERRORS ---

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}
	switch {
	case errors.Is(err, engine.ErrInvalidCriteria),
		errors.Is(err, engine.ErrInvalidWindow),
		errors.Is(err, engine.ErrUnknownField),
		errors.Is(err, engine.ErrUnknownCategory):
		return http.StatusBadRequest, err.Error()
	}
	var le *engine.LoadError
	if errors.As(err, &le) {
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusOf(err)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
