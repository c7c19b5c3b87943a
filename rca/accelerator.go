// Package rca is the RCAccelerator service: it validates user settings against the served
// models, answers prompts through the chat pipeline and produces root cause analyses for
// every failed test of a Tempest report.
package rca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/odit-bit/rcaccelerator/tempest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	RCAErrorResponse = "Error generating RCA."

	_default_concurrency = 4
)

var (
	ErrNoTracebacks      = errors.New("rca: no tracebacks found in report")
	ErrModelsUnavailable = errors.New("rca: model backend unavailable")
)

// ValidationError is a setting that does not match what the service offers.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// Analyzer answers one question. Implemented by *chat.Pipeline.
type Analyzer interface {
	Answer(ctx context.Context, q chat.Query, s chat.Settings) (*chat.Answer, error)
	Stream(ctx context.Context, q chat.Query, s chat.Settings, sink func(string) error) (*chat.Answer, error)
	ClearHistory(ctx context.Context, session string) error
}

// ReportSource returns the failed tests of a report. Implemented by *tempest.Fetcher.
type ReportSource interface {
	Failures(ctx context.Context, url string) ([]tempest.Failure, error)
}

type RCAItem struct {
	TestName string   `json:"test_name"`
	Response string   `json:"response"`
	URLs     []string `json:"urls"`
}

type ModelsInfo struct {
	Generative []string          `json:"generative"`
	Embeddings []string          `json:"embeddings"`
	Rerank     []string          `json:"rerank"`
	Profiles   []profile.Profile `json:"profiles"`
	Defaults   chat.Settings     `json:"defaults"`
}

type Accelerator struct {
	catalog     *model.Catalog
	profiles    *profile.Registry
	analyzer    Analyzer
	reports     ReportSource
	defaults    chat.Settings
	concurrency int

	latency  metric.Float64Histogram
	rcaItems metric.Int64Counter
}

func NewAccelerator(catalog *model.Catalog, profiles *profile.Registry, analyzer Analyzer, reports ReportSource, defaults chat.Settings, concurrency int) (*Accelerator, error) {
	if concurrency < 1 {
		concurrency = _default_concurrency
	}

	meter := otel.Meter("rca.accelerator")
	latency, err := meter.Float64Histogram(
		"rca.pipeline.duration",
		metric.WithDescription("duration of a chat pipeline run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	rcaItems, err := meter.Int64Counter(
		"rca.tempest.items_total",
		metric.WithDescription("total number of analysed tempest failures"),
	)
	if err != nil {
		return nil, err
	}

	return &Accelerator{
		catalog:     catalog,
		profiles:    profiles,
		analyzer:    analyzer,
		reports:     reports,
		defaults:    defaults,
		concurrency: concurrency,
		latency:     latency,
		rcaItems:    rcaItems,
	}, nil
}

// Defaults returns the settings a request starts from.
func (a *Accelerator) Defaults() chat.Settings {
	return a.defaults
}

// ValidateSettings fills empty model names with the first served model and rejects
// unknown models or profiles. Model lists come from the catalog cache.
func (a *Accelerator) ValidateSettings(ctx context.Context, s *chat.Settings) error {
	fields := []struct {
		kind  model.Kind
		name  *string
		label string
	}{
		{model.KindGenerative, &s.GenerativeModel, "generative"},
		{model.KindEmbeddings, &s.EmbeddingsModel, "embeddings"},
		{model.KindRerank, &s.RerankModel, "rerank"},
	}
	for _, f := range fields {
		available, err := a.catalog.Names(ctx, f.kind)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrModelsUnavailable, err)
		}
		if len(available) == 0 {
			return fmt.Errorf("%w: %w: %s", ErrModelsUnavailable, model.ErrNoModel, f.kind)
		}
		if *f.name == "" {
			*f.name = available[0]
			continue
		}
		if !slices.Contains(available, *f.name) {
			return &ValidationError{Detail: fmt.Sprintf("Invalid %s model. Available: %s", f.label, quoteList(available))}
		}
	}

	if _, err := a.profiles.Get(s.Profile); err != nil {
		return &ValidationError{Detail: fmt.Sprintf("Invalid profile name. Allowed: %s", quoteList(a.profiles.Names()))}
	}
	return nil
}

// Prompt answers content with validated settings.
func (a *Accelerator) Prompt(ctx context.Context, q chat.Query, s chat.Settings) (*chat.Answer, error) {
	start := time.Now()
	ans, err := a.analyzer.Answer(ctx, q, s)
	a.observe(ctx, "prompt", start, err)
	return ans, err
}

// PromptStream is Prompt with every delta sent to sink.
func (a *Accelerator) PromptStream(ctx context.Context, q chat.Query, s chat.Settings, sink func(string) error) (*chat.Answer, error) {
	start := time.Now()
	ans, err := a.analyzer.Stream(ctx, q, s, sink)
	a.observe(ctx, "prompt_stream", start, err)
	return ans, err
}

func (a *Accelerator) ClearSession(ctx context.Context, session string) error {
	return a.analyzer.ClearHistory(ctx, session)
}

// RCAFromTempest analyses every distinct failed test of the report concurrently.
// A failed analysis yields RCAErrorResponse for that test only.
func (a *Accelerator) RCAFromTempest(ctx context.Context, reportURL string, s chat.Settings) ([]RCAItem, error) {
	failures, err := a.reports.Failures(ctx, reportURL)
	if err != nil {
		return nil, err
	}
	if len(failures) == 0 {
		return nil, ErrNoTracebacks
	}
	failures = tempest.Unique(failures)

	// rca messages are independent of any conversation
	s.KeepHistory = false

	items := make([]RCAItem, len(failures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, f := range failures {
		g.Go(func() error {
			item := RCAItem{TestName: f.TestName, Response: RCAErrorResponse, URLs: []string{}}
			content := fmt.Sprintf("Test: %s\n\n%s", f.TestName, f.Traceback)

			start := time.Now()
			ans, err := a.analyzer.Answer(gctx, chat.Query{Content: content}, s)
			a.observe(gctx, "rca", start, err)
			if err != nil {
				slog.Error("rca item failed", "test", f.TestName, "error", err)
				a.rcaItems.Add(gctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
			} else {
				item.Response = ans.Content
				item.URLs = ans.URLs
				a.rcaItems.Add(gctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Models lists what a client may pick from.
func (a *Accelerator) Models(ctx context.Context) (*ModelsInfo, error) {
	info := &ModelsInfo{
		Profiles: a.profiles.All(),
		Defaults: a.defaults,
	}
	var err error
	if info.Generative, err = a.catalog.Names(ctx, model.KindGenerative); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelsUnavailable, err)
	}
	if info.Embeddings, err = a.catalog.Names(ctx, model.KindEmbeddings); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelsUnavailable, err)
	}
	if info.Rerank, err = a.catalog.Names(ctx, model.KindRerank); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelsUnavailable, err)
	}
	return info, nil
}

func (a *Accelerator) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	a.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// quoteList renders names as ['a', 'b'].
func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
