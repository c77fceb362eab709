package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intellisearch/synthesizer/internal/citations"
	"github.com/intellisearch/synthesizer/internal/metrics"
	"github.com/intellisearch/synthesizer/internal/profiles"
	"github.com/intellisearch/synthesizer/internal/tracing"
	"github.com/intellisearch/synthesizer/internal/util"
)

const defaultSectionConcurrency = 3

// ProgressFunc receives lifecycle events during a synthesis run. Events are
// best-effort notifications; the callback must not block.
type ProgressFunc func(event string, fields map[string]interface{})

// Progress event names emitted during a run.
const (
	EventOutlinePlanned   = "outline_planned"
	EventChunksAllocated  = "chunks_allocated"
	EventSectionStarted   = "section_started"
	EventSectionCompleted = "section_completed"
	EventExpansionRound   = "expansion_round"
	EventReportTruncated  = "report_truncated"
	EventReportCompleted  = "report_completed"
)

// Request is one synthesis job: a topic, an evidence pool, and the profile
// whose word contract the output must honor. Outline is optional; when it
// fails validation the deterministic fallback applies.
type Request struct {
	Topic   string
	Profile profiles.ReportProfile
	Chunks  []Chunk
	Outline []OutlineItem
}

// Engine turns an evidence pool into a sectioned, deduplicated, cited report.
// It owns orchestration only: retrieval happens upstream and text generation
// is delegated to the Generator.
type Engine struct {
	gen         Generator
	logger      *zap.Logger
	concurrency int
	progress    ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds how many sections generate in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithProgress registers a lifecycle event callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine creates a synthesis engine backed by gen.
func NewEngine(gen Generator, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		gen:         gen,
		logger:      logger,
		concurrency: defaultSectionConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Synthesize runs the full pipeline: outline, allocate, generate sections,
// enforce the word budget, deduplicate, and render citations. The only fatal
// error is a failed outline; every later problem degrades to a warning so a
// report is always produced.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "synthesis.run")
	defer span.End()

	start := time.Now()
	metrics.SynthesisRuns.WithLabelValues(req.Profile.Name).Inc()

	sections, err := PlanOutline(req.Profile, req.Outline, e.logger)
	if err != nil {
		metrics.SynthesisCompleted.WithLabelValues(req.Profile.Name, "outline_error").Inc()
		return nil, err
	}
	e.emit(EventOutlinePlanned, map[string]interface{}{
		"sections": sectionTitles(sections),
	})

	cm := citations.NewMap()
	Allocate(req.Chunks, sections, cm)
	e.emit(EventChunksAllocated, map[string]interface{}{
		"chunks":   len(req.Chunks),
		"sections": len(sections),
	})

	result := &Result{SectionsPlanned: len(sections)}
	warnings := e.generateSections(ctx, req.Topic, sections, result)
	result.Warnings = append(result.Warnings, warnings...)

	body := assembleBody(sections)

	ctrl := &budgetController{profile: req.Profile, gen: e.gen, logger: e.logger}
	outcome := ctrl.run(ctx, body, req.Topic, taggedPool(req.Chunks, cm))
	result.Warnings = append(result.Warnings, outcome.Warnings...)
	result.ExpansionRounds = outcome.ExpansionRounds
	if outcome.ExpansionRounds > 0 {
		metrics.ExpansionRounds.Add(float64(outcome.ExpansionRounds))
		e.emit(EventExpansionRound, map[string]interface{}{"rounds": outcome.ExpansionRounds})
	}
	for _, w := range outcome.Warnings {
		switch w.Code {
		case WarnOverLengthTruncate:
			metrics.ReportsTruncated.Inc()
			e.emit(EventReportTruncated, map[string]interface{}{"max_words": req.Profile.MaxWords})
		case WarnExpansionDiscarded:
			metrics.ExpansionsDiscarded.Inc()
		}
	}

	deduped, removed := Deduplicate(outcome.Body)
	result.DuplicatesCut = removed
	if removed > 0 {
		metrics.DuplicateSentencesRemoved.Add(float64(removed))
		e.logger.Debug("Removed near-duplicate sentences", zap.Int("removed", removed))
	}

	result.UniqueSources = cm.Len()
	metrics.CitationsAssigned.Add(float64(cm.Len()))

	wc := util.WordCount(deduped)
	result.Document = Document{
		Body:           deduped,
		CitationsBlock: cm.Render(time.Now().UTC()),
		WordCount:      wc,
	}

	metrics.ReportWordCount.WithLabelValues(req.Profile.Name).Observe(float64(wc))
	metrics.SynthesisCompleted.WithLabelValues(req.Profile.Name, completionStatus(result)).Inc()
	metrics.SynthesisDuration.WithLabelValues(req.Profile.Name).Observe(time.Since(start).Seconds())

	e.emit(EventReportCompleted, map[string]interface{}{
		"word_count":     wc,
		"unique_sources": result.UniqueSources,
		"warnings":       len(result.Warnings),
	})
	e.logger.Info("Synthesis complete",
		zap.String("profile", req.Profile.Name),
		zap.Int("word_count", wc),
		zap.Int("sections", len(sections)),
		zap.Int("sections_failed", result.SectionsFailed),
		zap.Int("unique_sources", result.UniqueSources),
		zap.Int("duplicates_removed", removed),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// generateSections fills each section body with bounded parallelism. A
// failed or canceled section becomes a placeholder rather than aborting the
// run; results land in per-section slots so output order is deterministic.
func (e *Engine) generateSections(ctx context.Context, topic string, sections []*Section, result *Result) []Warning {
	warnings := make([][]Warning, len(sections))
	failed := make([]bool, len(sections))

	g := &errgroup.Group{}
	g.SetLimit(e.concurrency)
	for i, sec := range sections {
		i, sec := i, sec
		g.Go(func() error {
			e.emit(EventSectionStarted, map[string]interface{}{"title": sec.Title})
			secStart := time.Now()

			text, err := e.gen.GenerateSection(ctx, SectionRequest{
				Topic:       topic,
				Title:       sec.Title,
				TargetWords: sec.TargetWords,
				Chunks:      sec.Chunks,
				Directive:   siblingDirective(sections, i),
			})
			metrics.SectionGenerationDuration.Observe(float64(time.Since(secStart).Milliseconds()))

			if err != nil || strings.TrimSpace(text) == "" {
				failed[i] = true
				metrics.SectionFailures.Inc()
				sec.Generated = fmt.Sprintf("*Content generation for %q was unavailable.*", sec.Title)
				msg := fmt.Sprintf("section %q failed: generator returned no content", sec.Title)
				if err != nil {
					msg = fmt.Sprintf("section %q failed: %v", sec.Title, err)
				}
				warnings[i] = append(warnings[i], Warning{Code: WarnSectionFailed, Message: msg})
				e.logger.Warn("Section generation failed, using placeholder",
					zap.String("title", sec.Title),
					zap.Error(err),
				)
			} else {
				sec.Generated = strings.TrimSpace(text)
				metrics.SectionsGenerated.Inc()
			}
			e.emit(EventSectionCompleted, map[string]interface{}{
				"title":  sec.Title,
				"failed": failed[i],
			})
			return nil
		})
	}
	g.Wait() // goroutines never return errors; failures degrade to placeholders

	var flat []Warning
	for i := range sections {
		if failed[i] {
			result.SectionsFailed++
		}
		flat = append(flat, warnings[i]...)
	}
	return flat
}

// siblingDirective tells the generator what the other sections cover so it
// does not restate their ground.
func siblingDirective(sections []*Section, self int) string {
	others := make([]string, 0, len(sections)-1)
	for i, sec := range sections {
		if i != self {
			others = append(others, sec.Title)
		}
	}
	if len(others) == 0 {
		return "Write focused, non-repetitive prose grounded in the numbered evidence chunks."
	}
	return fmt.Sprintf(
		"Write focused prose grounded in the numbered evidence chunks. "+
			"Do not cover ground belonging to the sibling sections: %s.",
		strings.Join(others, "; "))
}

// assembleBody joins the generated sections under markdown headings.
func assembleBody(sections []*Section) string {
	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", sec.Title, sec.Generated))
	}
	return strings.Join(parts, "\n\n")
}

// taggedPool re-tags the full chunk pool for expansion requests. Assign is
// idempotent, so numbers match what the allocator handed out.
func taggedPool(pool []Chunk, cm *citations.Map) []TaggedChunk {
	tagged := make([]TaggedChunk, 0, len(pool))
	for _, c := range pool {
		tagged = append(tagged, TaggedChunk{Chunk: c, CitationNumber: cm.Assign(c.SourceURL, c.SourceTitle)})
	}
	return tagged
}

func sectionTitles(sections []*Section) []string {
	titles := make([]string, len(sections))
	for i, sec := range sections {
		titles[i] = sec.Title
	}
	return titles
}

func completionStatus(r *Result) string {
	if len(r.Warnings) > 0 {
		return "degraded"
	}
	return "ok"
}

func (e *Engine) emit(event string, fields map[string]interface{}) {
	if e.progress != nil {
		e.progress(event, fields)
	}
}
