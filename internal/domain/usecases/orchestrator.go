// Package usecases - orchestrator.go routes a user message to a data action,
// the chart builder, or the language model.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/intents"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// ErrUnrecognizedIntent is returned by Dispatch for intents it cannot execute.
var ErrUnrecognizedIntent = errors.New("unrecognized intent")

const (
	systemPrompt = "You are a concise helpful assistant. Use short paragraphs, bullets when useful. " +
		"Respect markdown. Include timestamps only if asked."
	contextColumns = 20

	// TablePreviewNote is the debug note key carrying a chart's table preview.
	TablePreviewNote = "table_preview"
)

// Restorer reloads a session's dataset from durable metadata.
type Restorer interface {
	Restore(ctx context.Context, session string) (bool, error)
}

// Orchestrator decides between the data path and the language model.
// Stateless across calls; safe for concurrent use when its collaborators are.
type Orchestrator struct {
	registry ports.DatasetRegistry
	actions  *ActionExecutor
	charts   *ChartBuilder

	chat       ports.ChatService
	metaStore  ports.MetaStore
	restorer   Restorer
	llmEnabled bool

	logger  zerolog.Logger
	metrics ports.Metrics
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChatService sets the language-model collaborator.
func WithChatService(chat ports.ChatService) Option {
	return func(o *Orchestrator) { o.chat = chat }
}

// WithMetaStore sets the store consulted for LLM dataset context.
func WithMetaStore(store ports.MetaStore) Option {
	return func(o *Orchestrator) { o.metaStore = store }
}

// WithLLMFallback enables or disables language-model fallback.
func WithLLMFallback(enabled bool) Option {
	return func(o *Orchestrator) { o.llmEnabled = enabled }
}

// WithRestorer reloads expired sessions before routing.
func WithRestorer(r Restorer) Option {
	return func(o *Orchestrator) { o.restorer = r }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With().Str("component", "orchestrator").Logger() }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source used for took_ms.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator with injected dependencies.
// LLM fallback is on by default and takes effect once a ChatService is set.
func NewOrchestrator(registry ports.DatasetRegistry, actions *ActionExecutor, charts *ChartBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		actions:    actions,
		charts:     charts,
		llmEnabled: true,
		logger:     zerolog.Nop(),
		metrics:    ports.NopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) fallbackEnabled() bool {
	return o.llmEnabled && o.chat != nil
}

// Run answers one user message. It always returns exactly one block and
// never panics; every block carries debug info.
func (o *Orchestrator) Run(ctx context.Context, session, text string) (block entities.Block) {
	start := o.now()
	route := ports.RouteData
	intentName := ""

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("session", session).Msg("orchestrator panicked")
			block = entities.NewAlertBlock(entities.UserMessage(fmt.Errorf("panic: %v", r)), "Error")
		}
		took := o.now().Sub(start)
		block = block.MergeDebug(session, intentName, took.Milliseconds(), nil)
		if block.Type == entities.BlockAlert {
			route = ports.RouteAlert
		}
		o.metrics.ObserveRequest(route, took)
		o.logger.Debug().
			Str("session", session).
			Str("intent", intentName).
			Str("route", route).
			Int64("took_ms", took.Milliseconds()).
			Msg("request handled")
	}()

	// 1. Bring back an expired session if durable metadata allows it
	if session != "" && o.restorer != nil && !o.registry.Has(session) {
		if _, err := o.restorer.Restore(ctx, session); err != nil {
			o.logger.Warn().Err(err).Str("session", session).Msg("restoring session failed")
		}
	}

	// 2. Detect intent
	intent, found := intents.Detect(text)
	if found {
		intentName = string(intent.Name)
	}
	hasData := session != "" && o.registry.Has(session)

	// 3. Route
	switch {
	case hasData && found:
		b, err := o.Dispatch(ctx, session, intent)
		if err == nil {
			if intent.Name == entities.IntentChart {
				route = ports.RouteChart
			}
			return b
		}
		o.logger.Warn().Err(err).Str("session", session).Str("intent", intentName).Msg("dispatch failed")
		if o.fallbackEnabled() {
			route = ports.RouteLLM
			return o.askLLM(ctx, session, text)
		}
		if errors.Is(err, ErrUnrecognizedIntent) {
			return unrecognized()
		}
		return entities.NewAlertBlock(entities.UserMessage(err), "Error")

	case o.fallbackEnabled():
		route = ports.RouteLLM
		return o.askLLM(ctx, session, text)

	case !hasData:
		return entities.NewAlertBlock("No CSV data loaded. Please upload a CSV file first.", "No Data")
	}
	return unrecognized()
}

func unrecognized() entities.Block {
	return entities.NewAlertBlock("Unrecognized request. Try: summarize, stats, missing, histogram, schema, or sample", "Unrecognized")
}

// Dispatch executes a structured intent against the session's dataset.
// Domain conditions (not loaded, column not found) are returned as errors.
func (o *Orchestrator) Dispatch(ctx context.Context, session string, intent entities.Intent) (entities.Block, error) {
	switch intent.Name {
	case entities.IntentSummarize:
		return o.actions.Summarize(session)
	case entities.IntentSchema:
		return o.actions.Schema(session)
	case entities.IntentSample:
		n := intent.Args.N
		if n == 0 {
			n = intents.DefaultSampleN
		}
		return o.actions.Sample(session, n)
	case entities.IntentStats:
		return o.actions.Stats(session)
	case entities.IntentMissing:
		return o.actions.Missing(session)
	case entities.IntentHistogram:
		if strings.TrimSpace(intent.Args.Column) == "" {
			return entities.NewAlertBlock("Please specify a column for histogram. For example: 'histogram of price'", "Missing Column"), nil
		}
		bins := intent.Args.Bins
		if bins <= 0 {
			bins = intents.DefaultHistBins
		}
		return o.actions.Histogram(session, intent.Args.Column, bins)
	case entities.IntentChart:
		if intent.Args.Spec == nil {
			return entities.NewAlertBlock("No chart specification provided", "Missing Chart Spec"), nil
		}
		block, preview, err := o.charts.Build(session, *intent.Args.Spec)
		if err != nil {
			return entities.Block{}, err
		}
		if block.Type == entities.BlockImage && preview.Len() > 0 {
			block = block.MergeDebug(session, string(entities.IntentChart), debugTook(block), map[string]any{TablePreviewNote: preview})
		}
		return block, nil
	}
	return entities.Block{}, fmt.Errorf("%w: %q", ErrUnrecognizedIntent, intent.Name)
}

func debugTook(b entities.Block) int64 {
	if b.Debug == nil || b.Debug.TookMS == nil {
		return 0
	}
	return *b.Debug.TookMS
}

func (o *Orchestrator) askLLM(ctx context.Context, session, text string) entities.Block {
	// 1. Build conversation
	messages := []entities.ChatMessage{{Role: entities.RoleSystem, Content: systemPrompt}}
	if csv := o.datasetContext(ctx, session); csv != "" {
		messages = append(messages, entities.ChatMessage{Role: entities.RoleSystem, Content: csv})
	}
	messages = append(messages, entities.ChatMessage{Role: entities.RoleUser, Content: text})

	// 2. Call the model; failures never reach the user verbatim
	reply, err := o.chat.Chat(ctx, messages)
	o.metrics.LLMCall(err)
	if err != nil {
		o.logger.Warn().Err(err).Str("session", session).Msg("llm call failed")
		return entities.NewAlertBlock(entities.UserMessage(&entities.UpstreamError{Reason: "chat", Err: err}), "Error")
	}
	return entities.NewTextBlock(reply, "")
}

// datasetContext describes the session's dataset for the model. The metadata
// store is preferred so context survives registry expiry.
func (o *Orchestrator) datasetContext(ctx context.Context, session string) string {
	if session == "" {
		return ""
	}
	var (
		meta  entities.DatasetMeta
		found bool
	)
	if o.metaStore != nil {
		m, ok, err := o.metaStore.Get(ctx, session)
		if err != nil {
			o.logger.Warn().Err(err).Str("session", session).Msg("reading session metadata failed")
		}
		meta, found = m, ok && err == nil
	}
	if !found {
		meta, found = o.registry.GetMeta(session)
	}
	if !found {
		return ""
	}

	cols := meta.Columns
	if len(cols) > contextColumns {
		cols = cols[:contextColumns]
	}
	dtypes := make([]string, len(cols))
	for i, c := range cols {
		dtypes[i] = c + ":" + meta.DTypes[c]
	}

	var sb strings.Builder
	sb.WriteString("CSV context:\n")
	fmt.Fprintf(&sb, "- rows: %d\n", meta.Rows)
	fmt.Fprintf(&sb, "- columns: %s\n", strings.Join(cols, ", "))
	fmt.Fprintf(&sb, "- dtypes: %s\n", strings.Join(dtypes, ", "))
	sb.WriteString("When asked for plots, respond with textual summaries only.")
	return sb.String()
}
