package usecases

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

const (
	maxPreviewRows = 200
	defaultBins    = 30
	emptyDataMsg   = "No data to plot after applying filters"
)

// ChartBuilder turns a ChartSpec into an image block and a table preview.
// Single Responsibility: Only chart interpretation; routing lives in the Orchestrator.
type ChartBuilder struct {
	registry ports.DatasetRegistry
	cache    ports.ChartCache
	renderer ports.ChartRenderer
	metrics  ports.Metrics
	logger   zerolog.Logger
	now      func() time.Time
	flight   singleflight.Group
}

// ChartOption configures a ChartBuilder.
type ChartOption func(*ChartBuilder)

// WithChartMetrics reports cache hits and misses.
func WithChartMetrics(m ports.Metrics) ChartOption {
	return func(b *ChartBuilder) { b.metrics = m }
}

// WithChartLogger sets the builder's logger.
func WithChartLogger(l zerolog.Logger) ChartOption {
	return func(b *ChartBuilder) { b.logger = l.With().Str("component", "charts").Logger() }
}

// WithChartClock overrides the time source used for took_ms.
func WithChartClock(now func() time.Time) ChartOption {
	return func(b *ChartBuilder) { b.now = now }
}

// NewChartBuilder creates a ChartBuilder with injected dependencies.
func NewChartBuilder(registry ports.DatasetRegistry, cache ports.ChartCache, renderer ports.ChartRenderer, opts ...ChartOption) *ChartBuilder {
	b := &ChartBuilder{
		registry: registry,
		cache:    cache,
		renderer: renderer,
		metrics:  ports.NopMetrics{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CacheKey derives the cache key for a spec against a loaded dataset. It
// fails when the spec has no canonical JSON form, e.g. a NaN filter value.
func CacheKey(session string, loadedAt time.Time, spec entities.ChartSpec) (string, error) {
	canonical, err := json.Marshal(spec.WithDefaults())
	if err != nil {
		return "", &entities.InvalidSpecError{Reason: "spec is not serializable: " + err.Error()}
	}
	h := sha256.New()
	h.Write([]byte(session))
	h.Write([]byte(":"))
	h.Write([]byte(loadedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(":"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Build interprets spec against the session's dataset. Only
// DatasetNotLoadedError and ColumnNotFoundError are returned as errors;
// every other failure comes back as an alert block.
func (b *ChartBuilder) Build(session string, spec entities.ChartSpec) (entities.Block, *entities.TablePayload, error) {
	start := b.now()

	// 1. Resolve dataset and its load time together
	ds, meta, ok := b.registry.Lookup(session)
	if !ok {
		return entities.Block{}, nil, &entities.DatasetNotLoadedError{Session: session}
	}

	// 2. Cache lookup
	spec = spec.WithDefaults()
	key, err := CacheKey(session, meta.LoadedAt, spec)
	if err != nil {
		return alertFor(err), nil, nil
	}
	if hit, ok := b.cache.Get(key); ok {
		b.metrics.ChartCache(true)
		return hit.Block, hit.Preview, nil
	}
	b.metrics.ChartCache(false)

	// 3-8. Build once per key, even under concurrent identical requests
	v, err, _ := b.flight.Do(key, func() (any, error) {
		if hit, ok := b.cache.Get(key); ok {
			return hit, nil
		}
		block, preview, err := b.build(session, ds, spec, start)
		if err != nil {
			return nil, err
		}
		result := ports.ChartResult{Block: block, Preview: preview}
		if block.Type == entities.BlockImage {
			b.cache.Set(key, result)
		}
		return result, nil
	})
	if err != nil {
		return entities.Block{}, nil, err
	}
	result := v.(ports.ChartResult)
	return result.Block, result.Preview, nil
}

func (b *ChartBuilder) build(session string, ds *entities.Dataset, spec entities.ChartSpec, start time.Time) (block entities.Block, preview *entities.TablePayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("session", session).Msg("chart build panicked")
			block, preview, err = chartFailed(), nil, nil
		}
	}()

	// 3. Filters
	ds, err = applyFilters(ds, spec.Filters)
	if err != nil {
		return alertFor(err), nil, nil
	}

	// 4. Referenced columns must exist
	x, ok := ds.Resolve(spec.X.Name)
	if !ok {
		return entities.Block{}, nil, &entities.ColumnNotFoundError{Column: spec.X.Name}
	}
	var y *entities.Column
	if spec.Y != nil {
		if y, ok = ds.Resolve(spec.Y.Name); !ok {
			return entities.Block{}, nil, &entities.ColumnNotFoundError{Column: spec.Y.Name}
		}
	}

	// 5. Inferred kinds govern compatibility; mismatches are reported, not fatal
	xKind := inferKind(x)
	var warnings []string
	if w := kindWarning("x", spec.X, x, xKind); w != "" {
		warnings = append(warnings, w)
	}
	var yKind entities.Kind
	if y != nil {
		yKind = inferKind(y)
		if w := kindWarning("y", *spec.Y, y, yKind); w != "" {
			warnings = append(warnings, w)
		}
	}

	if spec.Mark.Valid() && (spec.Y != nil || !spec.Mark.NeedsY()) {
		if err := spec.Validate(); err != nil {
			return alertFor(err), nil, nil
		}
	}

	// 6. Dispatch per mark
	var fig entities.Figure
	switch spec.Mark {
	case entities.MarkHistogram:
		if xKind != entities.KindQuantitative {
			return entities.NewAlertBlock(fmt.Sprintf("Column '%s' is not numeric. Use 'bar chart' for categorical data.", x.Name), "Invalid Chart Type"), nil, nil
		}
		fig, preview = histogramFigure(x, binCount(spec))
	case entities.MarkBar:
		if xKind == entities.KindQuantitative {
			return entities.NewAlertBlock(fmt.Sprintf("Column '%s' is numeric. Use 'histogram' for quantitative data.", x.Name), "Invalid Chart Type"), nil, nil
		}
		fig, preview = barFigure(x, spec)
	case entities.MarkLine:
		if y == nil {
			return entities.NewAlertBlock("Line chart requires Y axis specification.", "Invalid Chart Spec"), nil, nil
		}
		fig, preview, err = lineFigure(x, y, spec)
	case entities.MarkScatter:
		if y == nil {
			return entities.NewAlertBlock("Scatter plot requires Y axis specification.", "Invalid Chart Spec"), nil, nil
		}
		fig, preview, err = scatterFigure(x, y)
	case entities.MarkBox:
		if y == nil {
			return entities.NewAlertBlock("Box plot requires Y axis specification.", "Invalid Chart Spec"), nil, nil
		}
		fig, preview, err = boxFigure(x, y)
	default:
		return entities.NewAlertBlock(fmt.Sprintf("Unknown chart type: %s", spec.Mark), "Invalid Chart Type"), nil, nil
	}
	if err != nil {
		return alertFor(err), nil, nil
	}
	if preview.Len() == 0 {
		return entities.NewAlertBlock(emptyDataMsg, "No Data"), nil, nil
	}

	if spec.Title != "" {
		fig.Title = spec.Title
	}
	fig.Width, fig.Height = spec.Width, spec.Height
	png, err := b.renderer.Render(fig)
	if err != nil {
		b.logger.Warn().Err(err).Str("session", session).Str("mark", string(spec.Mark)).Msg("chart render failed")
		return chartFailed(), nil, nil
	}

	// 7. Image block with debug notes
	title := spec.Title
	if title == "" {
		title = spec.Mark.Label() + " Chart"
	}
	notes := map[string]any{"rows_used": ds.NumRows()}
	if len(warnings) > 0 {
		notes["warnings"] = warnings
	}
	tookMS := b.now().Sub(start).Milliseconds()
	block = entities.NewImageBlock(base64.StdEncoding.EncodeToString(png), title).WithDebug(&entities.DebugInfo{
		SessionID: session,
		Intent:    string(entities.IntentChart),
		TookMS:    &tookMS,
		Notes:     notes,
	})
	return block, preview, nil
}

func chartFailed() entities.Block {
	return entities.NewAlertBlock("Error rendering chart. Check the chart request and try again.", "Chart Error")
}

func alertFor(err error) entities.Block {
	var spec *entities.InvalidSpecError
	if errors.As(err, &spec) {
		return entities.NewAlertBlock(spec.Error(), "Invalid Chart Spec")
	}
	return chartFailed()
}

func inferKind(c *entities.Column) entities.Kind {
	switch {
	case c.IsTemporal():
		return entities.KindTemporal
	case c.IsNumeric():
		return entities.KindQuantitative
	}
	return entities.KindCategorical
}

func kindWarning(axis string, f entities.FieldSpec, c *entities.Column, inferred entities.Kind) string {
	if f.Kind == "" || f.Kind == inferred {
		return ""
	}
	return fmt.Sprintf("%s: '%s' declared %s but inferred %s", axis, c.Name, f.Kind, inferred)
}

func binCount(spec entities.ChartSpec) int {
	switch {
	case spec.Bins > 0:
		return spec.Bins
	case spec.X.Bin > 0:
		return spec.X.Bin
	}
	return defaultBins
}

func histogramFigure(x *entities.Column, bins int) (entities.Figure, *entities.TablePayload) {
	hist := binValues(x.NumericValues(), bins)
	preview := &entities.TablePayload{Headers: []string{"Bin Range", "Count"}, Rows: [][]any{}}
	for i, bin := range hist {
		if i == maxPreviewRows {
			preview.Truncated = true
			break
		}
		preview.Rows = append(preview.Rows, []any{binLabel(bin), strconv.Itoa(bin.Count)})
	}
	return entities.Figure{
		Kind:   entities.FigureHistogram,
		Title:  "Histogram of " + x.Name,
		XLabel: x.Name,
		YLabel: "Frequency",
		Bins:   hist,
	}, preview
}

func barFigure(x *entities.Column, spec entities.ChartSpec) (entities.Figure, *entities.TablePayload) {
	counts := valueCounts(x)
	switch {
	case spec.Agg == entities.AggSum:
		sort.SliceStable(counts, func(i, j int) bool { return compareCells(x, counts[i].Row, counts[j].Row) < 0 })
	case spec.X.Sort == entities.SortAsc:
		sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count < counts[j].Count })
	}
	if spec.X.TopK > 0 && len(counts) > spec.X.TopK {
		counts = counts[:spec.X.TopK]
	}

	fig := entities.Figure{
		Kind:   entities.FigureBar,
		Title:  "Bar Chart of " + x.Name,
		XLabel: x.Name,
		YLabel: "Count",
	}
	preview := &entities.TablePayload{Headers: []string{x.Name, "Count"}, Rows: [][]any{}}
	for _, vc := range counts {
		fig.Labels = append(fig.Labels, vc.Label)
		fig.Values = append(fig.Values, float64(vc.Count))
		preview.Rows = append(preview.Rows, []any{vc.Label, strconv.Itoa(vc.Count)})
	}
	return fig, preview
}

// group is a set of rows sharing one x key.
type group struct {
	label string
	first int       // representative row, orders raw groups
	start time.Time // period start, orders temporal groups
	rows  []int
}

func lineFigure(x, y *entities.Column, spec entities.ChartSpec) (entities.Figure, *entities.TablePayload, error) {
	groups, err := groupRows(x, spec.X.TimeUnit)
	if err != nil {
		return entities.Figure{}, nil, err
	}
	if spec.Agg != entities.AggCount && !y.IsNumeric() {
		return entities.Figure{}, nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("aggregation '%s' requires a numeric y column, '%s' is %s", spec.Agg, y.Name, y.DType)}
	}

	fig := entities.Figure{
		Kind:   entities.FigureLine,
		Title:  fmt.Sprintf("Line Chart of %s by %s", y.Name, x.Name),
		XLabel: x.Name,
		YLabel: y.Name,
	}
	preview := &entities.TablePayload{Headers: []string{"Time", "Value"}, Rows: [][]any{}}
	for _, g := range groups {
		v, ok := aggregate(y, g.rows, spec.Agg)
		if !ok {
			continue
		}
		fig.Labels = append(fig.Labels, g.label)
		fig.Values = append(fig.Values, v)
		preview.Rows = append(preview.Rows, []any{g.label, strconv.FormatFloat(v, 'f', 4, 64)})
	}
	return fig, preview, nil
}

// groupRows buckets non-null x rows by raw value or by period, ordered by key.
func groupRows(x *entities.Column, unit entities.TimeUnit) ([]*group, error) {
	index := make(map[string]*group)
	var groups []*group
	for i := 0; i < x.Len(); i++ {
		if x.IsNull(i) {
			continue
		}
		label := x.Label(i)
		var start time.Time
		if unit != "" {
			t, ok := timeAt(x, i)
			if !ok {
				return nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("column '%s' could not be parsed as dates", x.Name)}
			}
			start, label = period(t, unit)
		}
		g, ok := index[label]
		if !ok {
			g = &group{label: label, first: i, start: start}
			index[label] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, i)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if unit != "" {
			return groups[i].start.Before(groups[j].start)
		}
		return compareCells(x, groups[i].first, groups[j].first) < 0
	})
	return groups, nil
}

func timeAt(c *entities.Column, i int) (time.Time, bool) {
	switch {
	case c.IsTemporal():
		return c.Times[i], true
	case c.DType == entities.DTypeObject:
		return entities.ParseTime(c.Strings[i])
	}
	return time.Time{}, false
}

// period returns the start of t's period and its display label.
func period(t time.Time, unit entities.TimeUnit) (time.Time, string) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch unit {
	case entities.UnitWeek:
		monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		return monday, monday.Format("2006-01-02") + "/" + monday.AddDate(0, 0, 6).Format("2006-01-02")
	case entities.UnitMonth:
		m := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return m, m.Format("2006-01")
	case entities.UnitQuarter:
		q := (int(t.Month()) - 1) / 3
		s := time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return s, fmt.Sprintf("%dQ%d", t.Year(), q+1)
	case entities.UnitYear:
		y := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return y, y.Format("2006")
	}
	return day, day.Format("2006-01-02")
}

// aggregate reduces y over rows. A false result means every y was null
// under an aggregation that needs values.
func aggregate(y *entities.Column, rows []int, agg entities.Agg) (float64, bool) {
	var values []float64
	count := 0
	for _, r := range rows {
		if y.IsNull(r) {
			continue
		}
		count++
		if v, ok := y.Float(r); ok {
			values = append(values, v)
		}
	}
	switch agg {
	case entities.AggCount:
		return float64(count), true
	case entities.AggSum:
		return floats.Sum(values), true
	}
	if len(values) == 0 {
		return 0, false
	}
	switch agg {
	case entities.AggMin:
		return floats.Min(values), true
	case entities.AggMax:
		return floats.Max(values), true
	case entities.AggMedian:
		return median(values), true
	}
	return stat.Mean(values, nil), true
}

func scatterFigure(x, y *entities.Column) (entities.Figure, *entities.TablePayload, error) {
	for _, c := range []*entities.Column{x, y} {
		if !c.IsNumeric() && !c.IsTemporal() {
			return entities.Figure{}, nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("scatter plot needs numeric or temporal columns, '%s' is %s", c.Name, c.DType)}
		}
	}
	fig := entities.Figure{
		Kind:   entities.FigureScatter,
		Title:  fmt.Sprintf("Scatter Plot: %s vs %s", x.Name, y.Name),
		XLabel: x.Name,
		YLabel: y.Name,
	}
	preview := &entities.TablePayload{Headers: []string{x.Name, y.Name}, Rows: [][]any{}}
	for i := 0; i < x.Len(); i++ {
		xv, okx := x.Float(i)
		yv, oky := y.Float(i)
		if !okx || !oky {
			continue
		}
		fig.Points = append(fig.Points, entities.XY{X: xv, Y: yv})
		if len(preview.Rows) < maxPreviewRows {
			preview.Rows = append(preview.Rows, []any{x.Label(i), y.Label(i)})
		}
	}
	return fig, preview, nil
}

func boxFigure(x, y *entities.Column) (entities.Figure, *entities.TablePayload, error) {
	if !y.IsNumeric() {
		return entities.Figure{}, nil, &entities.InvalidSpecError{Reason: fmt.Sprintf("box plot needs a numeric y column, '%s' is %s", y.Name, y.DType)}
	}
	groups, err := groupRows(x, "")
	if err != nil {
		return entities.Figure{}, nil, err
	}
	fig := entities.Figure{
		Kind:   entities.FigureBox,
		Title:  fmt.Sprintf("Box Plot of %s by %s", y.Name, x.Name),
		XLabel: x.Name,
		YLabel: y.Name,
	}
	preview := &entities.TablePayload{Headers: []string{x.Name, "Min", "Mean", "Median", "Max"}, Rows: [][]any{}}
	for _, g := range groups {
		var values []float64
		for _, r := range g.rows {
			if v, ok := y.Float(r); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		s := describe(values)
		fig.Groups = append(fig.Groups, entities.BoxGroup{Label: g.label, Values: values})
		preview.Rows = append(preview.Rows, []any{g.label, fixed(s.Min, 2), fixed(s.Mean, 2), fixed(s.Median, 2), fixed(s.Max, 2)})
	}
	return fig, preview, nil
}
