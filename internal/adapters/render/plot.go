// Package render provides chart renderer adapters.
// Clean Architecture: Adapter implementing ports.ChartRenderer.
// Figures arrive fully aggregated; this package only draws them.
package render

import (
	"bytes"
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// dpi matches the resolution vgimg uses for PNG output.
const dpi = 96

var errNoData = errors.New("figure has no data")

// PNGRenderer draws figures with gonum/plot. Every call builds its own plot,
// so concurrent renders share no drawing state.
type PNGRenderer struct{}

// NewPNGRenderer creates a PNG renderer.
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{}
}

// Render rasterises fig as PNG bytes.
func (r *PNGRenderer) Render(fig entities.Figure) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fig.Title
	p.X.Label.Text = fig.XLabel
	p.Y.Label.Text = fig.YLabel
	p.Add(plotter.NewGrid())

	var err error
	switch fig.Kind {
	case entities.FigureHistogram:
		err = addHistogram(p, fig)
	case entities.FigureBar:
		err = addBars(p, fig)
	case entities.FigureLine:
		err = addLine(p, fig)
	case entities.FigureScatter:
		err = addScatter(p, fig)
	case entities.FigureBox:
		err = addBoxes(p, fig)
	default:
		err = fmt.Errorf("unsupported figure kind %d", fig.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", fig.Kind, err)
	}

	width, height := fig.Width, fig.Height
	if width <= 0 {
		width = entities.DefaultChartWidth
	}
	if height <= 0 {
		height = entities.DefaultChartHeight
	}
	wt, err := p.WriterTo(pixels(width), pixels(height), "png")
	if err != nil {
		return nil, fmt.Errorf("creating png canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

func pixels(px int) vg.Length {
	return vg.Length(px) * vg.Inch / dpi
}

func addHistogram(p *plot.Plot, fig entities.Figure) error {
	if len(fig.Bins) == 0 {
		return errNoData
	}
	h := &plotter.Histogram{
		Bins:      make([]plotter.HistogramBin, len(fig.Bins)),
		FillColor: plotutil.Color(0),
		LineStyle: plotter.DefaultLineStyle,
	}
	for i, b := range fig.Bins {
		h.Bins[i] = plotter.HistogramBin{Min: b.Lo, Max: b.Hi, Weight: float64(b.Count)}
	}
	h.Width = fig.Bins[0].Hi - fig.Bins[0].Lo
	p.Add(h)
	return nil
}

func addBars(p *plot.Plot, fig entities.Figure) error {
	if len(fig.Values) == 0 {
		return errNoData
	}
	bars, err := plotter.NewBarChart(plotter.Values(fig.Values), vg.Points(barWidth(len(fig.Values))))
	if err != nil {
		return err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(fig.Labels...)
	return nil
}

// barWidth narrows bars as categories grow so they stay separated.
func barWidth(n int) float64 {
	switch {
	case n <= 10:
		return 30
	case n <= 25:
		return 15
	}
	return 6
}

func addLine(p *plot.Plot, fig entities.Figure) error {
	if len(fig.Values) == 0 {
		return errNoData
	}
	xys := make(plotter.XYs, len(fig.Values))
	for i, v := range fig.Values {
		xys[i].X = float64(i)
		xys[i].Y = v
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(1.5)
	points.Color = plotutil.Color(0)
	points.Radius = vg.Points(2)
	p.Add(line, points)
	p.NominalX(fig.Labels...)
	return nil
}

func addScatter(p *plot.Plot, fig entities.Figure) error {
	if len(fig.Points) == 0 {
		return errNoData
	}
	xys := make(plotter.XYs, len(fig.Points))
	for i, pt := range fig.Points {
		xys[i].X, xys[i].Y = pt.X, pt.Y
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.Color = plotutil.Color(1)
	s.Radius = vg.Points(2.5)
	p.Add(s)
	return nil
}

func addBoxes(p *plot.Plot, fig entities.Figure) error {
	labels := make([]string, 0, len(fig.Groups))
	for _, g := range fig.Groups {
		if len(g.Values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(labels)), plotter.Values(g.Values))
		if err != nil {
			return fmt.Errorf("group %q: %w", g.Label, err)
		}
		box.FillColor = plotutil.Color(2)
		p.Add(box)
		labels = append(labels, g.Label)
	}
	if len(labels) == 0 {
		return errNoData
	}
	p.NominalX(labels...)
	return nil
}
