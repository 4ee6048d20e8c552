package entities

// FigureKind selects how a Figure is drawn.
type FigureKind int

const (
	FigureHistogram FigureKind = iota
	FigureBar
	FigureLine
	FigureScatter
	FigureBox
)

func (k FigureKind) String() string {
	switch k {
	case FigureHistogram:
		return "histogram"
	case FigureBar:
		return "bar"
	case FigureLine:
		return "line"
	case FigureScatter:
		return "scatter"
	case FigureBox:
		return "box"
	}
	return "unknown"
}

// Figure is a render-ready description of a chart. All aggregation happens
// before a Figure is built; renderers only draw.
type Figure struct {
	Kind   FigureKind
	Title  string
	XLabel string
	YLabel string
	Width  int // pixels
	Height int // pixels

	Bins   []HistBin  // histogram
	Labels []string   // bar, line: one label per value
	Values []float64  // bar, line
	Points []XY       // scatter
	Groups []BoxGroup // box
}

// HistBin is one histogram bar covering (Lo, Hi].
type HistBin struct {
	Lo, Hi float64
	Count  int
}

// XY is a scatter point.
type XY struct {
	X, Y float64
}

// BoxGroup is the raw values of one box-plot category.
type BoxGroup struct {
	Label  string
	Values []float64
}
