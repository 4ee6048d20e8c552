package entities

// IntentName is the closed set of operations free text can resolve to.
type IntentName string

const (
	IntentSummarize IntentName = "summarize"
	IntentSchema    IntentName = "schema"
	IntentSample    IntentName = "sample"
	IntentStats     IntentName = "stats"
	IntentMissing   IntentName = "missing"
	IntentHistogram IntentName = "histogram"
	IntentChart     IntentName = "chart"
	IntentUnknown   IntentName = "unknown"
)

// Intent is the structured interpretation of one user message.
type Intent struct {
	Name IntentName `json:"name"`
	Args IntentArgs `json:"args"`
}

// IntentArgs holds the arguments an intent may carry. Which fields are
// meaningful depends on Name: N for sample, Column and Bins for histogram,
// Spec for chart.
type IntentArgs struct {
	N      int        `json:"n,omitempty"`
	Column string     `json:"column,omitempty"`
	Bins   int        `json:"bins,omitempty"`
	Spec   *ChartSpec `json:"spec,omitempty"`
}
