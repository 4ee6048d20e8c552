package usecases

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/intents"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// Output bounds for the data actions.
const (
	maxSchemaRows   = 50
	maxSampleRows   = 100
	maxStatsColumns = 5
	maxMissingRows  = 15
	maxValueCounts  = 20
)

// ActionExecutor runs the fixed data actions against a session's dataset.
// Single Responsibility: Only tabular queries, no routing or chart specs.
type ActionExecutor struct {
	registry ports.DatasetRegistry
	renderer ports.ChartRenderer
}

// NewActionExecutor creates an ActionExecutor with injected dependencies.
func NewActionExecutor(registry ports.DatasetRegistry, renderer ports.ChartRenderer) *ActionExecutor {
	return &ActionExecutor{registry: registry, renderer: renderer}
}

func (a *ActionExecutor) load(session string) (*entities.Dataset, entities.DatasetMeta, error) {
	ds, meta, ok := a.registry.Lookup(session)
	if !ok {
		return nil, entities.DatasetMeta{}, &entities.DatasetNotLoadedError{Session: session}
	}
	return ds, meta, nil
}

// Summarize reports row, column and memory totals.
func (a *ActionExecutor) Summarize(session string) (entities.Block, error) {
	ds, meta, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}

	var numeric, text, temporal int
	for _, col := range meta.Columns {
		dt := meta.DTypes[col]
		switch {
		case strings.Contains(dt, "float") || strings.Contains(dt, "int"):
			numeric++
		case strings.Contains(dt, "object") || strings.Contains(dt, "string"):
			text++
		case strings.Contains(dt, "datetime"):
			temporal++
		}
	}

	mb := float64(ds.MemoryUsage()) / 1024 / 1024
	return entities.NewTableBlock(entities.TablePayload{
		Headers: []string{"Metric", "Value"},
		Rows: [][]any{
			{"Total Rows", strconv.Itoa(meta.Rows)},
			{"Total Columns", strconv.Itoa(len(meta.Columns))},
			{"Numeric Columns", strconv.Itoa(numeric)},
			{"Text Columns", strconv.Itoa(text)},
			{"Datetime Columns", strconv.Itoa(temporal)},
			{"Memory Usage", fmt.Sprintf("%.2f MB", mb)},
		},
		Note: "Try: 'Show stats' for numeric column details, 'Show missing values' for null analysis",
	}, "Dataset Summary"), nil
}

// Schema lists column names and types.
func (a *ActionExecutor) Schema(session string) (entities.Block, error) {
	_, meta, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}

	cols := meta.Columns
	truncated := len(cols) > maxSchemaRows
	if truncated {
		cols = cols[:maxSchemaRows]
	}
	rows := make([][]any, len(cols))
	for i, col := range cols {
		rows[i] = []any{col, meta.DTypes[col]}
	}

	return entities.NewTableBlock(entities.TablePayload{
		Headers:   []string{"Column", "Data Type"},
		Rows:      rows,
		Truncated: truncated,
		Note:      fmt.Sprintf("Showing %d of %d columns. Try: 'Show sample' to see data preview", len(rows), len(meta.Columns)),
	}, "Dataset Schema"), nil
}

// Sample returns the first n rows, n clamped to the sample bounds.
func (a *ActionExecutor) Sample(session string, n int) (entities.Block, error) {
	ds, _, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}

	n = intents.ClampSample(n)
	shown := min(n, ds.NumRows(), maxSampleRows)
	cols := ds.Columns()
	rows := make([][]any, shown)
	for i := range rows {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = c.Value(i)
		}
		rows[i] = row
	}

	return entities.NewTableBlock(entities.TablePayload{
		Headers:   ds.ColumnNames(),
		Rows:      rows,
		Truncated: n > maxSampleRows,
		Note:      fmt.Sprintf("Showing first %d rows. Try: 'Show stats' for statistics", shown),
	}, fmt.Sprintf("Data Sample (%d rows)", shown)), nil
}

// Stats reports descriptive statistics for the leading numeric columns.
func (a *ActionExecutor) Stats(session string) (entities.Block, error) {
	ds, _, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}

	var numeric []*entities.Column
	for _, c := range ds.Columns() {
		if c.IsNumeric() {
			numeric = append(numeric, c)
		}
	}
	if len(numeric) == 0 {
		return entities.NewAlertBlock("No numeric columns found in this dataset", ""), nil
	}
	if len(numeric) > maxStatsColumns {
		numeric = numeric[:maxStatsColumns]
	}

	headers := []string{"Statistic"}
	sums := make([]summary, len(numeric))
	for i, c := range numeric {
		headers = append(headers, c.Name)
		sums[i] = describe(c.NumericValues())
	}

	stats := []struct {
		name  string
		value func(summary) float64
	}{
		{"mean", func(s summary) float64 { return s.Mean }},
		{"std", func(s summary) float64 { return s.Std }},
		{"min", func(s summary) float64 { return s.Min }},
		{"q25", func(s summary) float64 { return s.Q25 }},
		{"median", func(s summary) float64 { return s.Median }},
		{"q75", func(s summary) float64 { return s.Q75 }},
		{"max", func(s summary) float64 { return s.Max }},
	}

	countRow := []any{"count"}
	for _, s := range sums {
		countRow = append(countRow, strconv.Itoa(s.Count))
	}
	rows := [][]any{countRow}
	for _, st := range stats {
		row := []any{st.name}
		for _, s := range sums {
			row = append(row, fixed(st.value(s), 4))
		}
		rows = append(rows, row)
	}

	return entities.NewTableBlock(entities.TablePayload{
		Headers: headers,
		Rows:    rows,
		Note:    fmt.Sprintf("Showing stats for %d numeric columns. Try: 'Show missing' for null analysis", len(numeric)),
	}, "Numeric Column Statistics"), nil
}

// Missing reports per-column null counts, highest first.
func (a *ActionExecutor) Missing(session string) (entities.Block, error) {
	ds, _, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}

	type missing struct {
		column string
		count  int
		pct    float64
	}
	cols := ds.Columns()
	report := make([]missing, len(cols))
	for i, c := range cols {
		n := c.NullCount()
		var pct float64
		if ds.NumRows() > 0 {
			pct = float64(n) / float64(ds.NumRows()) * 100
		}
		report[i] = missing{column: c.Name, count: n, pct: pct}
	}
	sort.SliceStable(report, func(i, j int) bool { return report[i].count > report[j].count })
	if len(report) > maxMissingRows {
		report = report[:maxMissingRows]
	}

	rows := make([][]any, len(report))
	for i, m := range report {
		rows[i] = []any{m.column, strconv.Itoa(m.count), fmt.Sprintf("%.2f%%", m.pct)}
	}

	return entities.NewTableBlock(entities.TablePayload{
		Headers: []string{"Column", "Missing Count", "Missing %"},
		Rows:    rows,
		Note:    "Columns sorted by missing count. Try: 'Show stats' for numeric details",
	}, "Missing Values Analysis"), nil
}

// Histogram renders a numeric column, or tabulates the top values of any other column.
func (a *ActionExecutor) Histogram(session, column string, bins int) (entities.Block, error) {
	ds, _, err := a.load(session)
	if err != nil {
		return entities.Block{}, err
	}
	col, ok := ds.Resolve(column)
	if !ok {
		return entities.Block{}, &entities.ColumnNotFoundError{Column: column}
	}

	if !col.IsNumeric() {
		counts := valueCounts(col)
		if len(counts) > maxValueCounts {
			counts = counts[:maxValueCounts]
		}
		rows := make([][]any, len(counts))
		for i, vc := range counts {
			rows[i] = []any{vc.Label, strconv.Itoa(vc.Count)}
		}
		return entities.NewTableBlock(entities.TablePayload{
			Headers: []string{"Value", "Count"},
			Rows:    rows,
			Note:    "Showing top 20 values. Use 'histogram' on numeric columns for visual distribution",
		}, "Top Values for "+col.Name), nil
	}

	values := col.NumericValues()
	if len(values) == 0 {
		return entities.NewAlertBlock(fmt.Sprintf("Column '%s' has no values to plot", col.Name), "No Data"), nil
	}
	title := "Histogram of " + col.Name
	png, err := a.renderer.Render(entities.Figure{
		Kind:   entities.FigureHistogram,
		Title:  title,
		XLabel: col.Name,
		YLabel: "Frequency",
		Width:  entities.DefaultChartWidth,
		Height: entities.DefaultChartHeight,
		Bins:   binValues(values, bins),
	})
	if err != nil {
		return entities.Block{}, fmt.Errorf("rendering histogram: %w", err)
	}
	return entities.NewImageBlock(base64.StdEncoding.EncodeToString(png), title), nil
}
