// Package pipeline runs harvest jobs end to end: keyword expansion, source
// fan-out, deduplication, and storage into the canonical registry.
//
// A run moves through a fixed sequence of phases and reports progress over a
// channel of events. Exactly one final result is emitted per run, as the last
// event before the channel closes, no matter how the run ends.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholium/harvest-service/internal/dedup"
	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/events"
	"github.com/scholium/harvest-service/internal/observability"
	"github.com/scholium/harvest-service/internal/papersources"
	"github.com/scholium/harvest-service/internal/repository"
)

// Phase identifies one stage of a harvest run.
type Phase string

// Run phases in execution order. Expanding and Recommending are skipped when
// the config does not enable them.
const (
	PhaseExpanding     Phase = "expanding"
	PhaseRecommending  Phase = "recommending"
	PhaseInitializing  Phase = "initializing"
	PhaseHarvesting    Phase = "harvesting"
	PhaseDeduplicating Phase = "deduplicating"
	PhaseStoring       Phase = "storing"
	PhaseCompleted     Phase = "completed"
)

// errorKeyPipeline is the errors map key for run-level failures.
const errorKeyPipeline = "pipeline"

// maxRecommendedVenues caps how many venues the recommender may add to a run.
const maxRecommendedVenues = 5

// eventBuffer must hold every event a run can emit so the producer never
// blocks, even when the consumer abandons the channel.
const eventBuffer = 16

// Event is one progress report from a running harvest.
type Event struct {
	// RunID identifies the run that produced this event.
	RunID string `json:"run_id"`

	// Phase is the stage about to begin, or PhaseCompleted for the final event.
	Phase Phase `json:"phase"`

	// Message is a human-readable progress description.
	Message string `json:"message"`

	// Details carries optional structured data about the phase.
	Details map[string]any `json:"details,omitempty"`

	// Final is set only on the last event of a run.
	Final *domain.HarvestFinalResult `json:"final,omitempty"`
}

// QueryExpander expands a keyword list into a richer set of search terms.
type QueryExpander interface {
	ExpandAll(ctx context.Context, keywords []string) ([]string, error)
}

// VenueRecommender suggests publication venues relevant to the keywords.
type VenueRecommender interface {
	Recommend(ctx context.Context, keywords []string, maxVenues int) ([]string, error)
}

// Orchestrator coordinates harvest runs. It is safe for concurrent use; each
// run owns its own deduplicator and event channel.
type Orchestrator struct {
	sources     *papersources.Registry
	papers      repository.PaperRepository
	runs        repository.RunRepository
	expander    QueryExpander
	recommender VenueRecommender
	publisher   events.Publisher
	metrics     *observability.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// Option configures optional collaborators on an Orchestrator.
type Option func(*Orchestrator)

// WithExpander sets the keyword expansion collaborator.
func WithExpander(e QueryExpander) Option {
	return func(o *Orchestrator) { o.expander = e }
}

// WithRecommender sets the venue recommendation collaborator.
func WithRecommender(r VenueRecommender) Option {
	return func(o *Orchestrator) { o.recommender = r }
}

// WithPublisher sets the publisher notified when runs complete.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an Orchestrator over the given source registry and
// repositories.
func NewOrchestrator(
	sources *papersources.Registry,
	papers repository.PaperRepository,
	runs repository.RunRepository,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		sources: sources,
		papers:  papers,
		runs:    runs,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts a harvest in a new goroutine and returns its event channel.
// The channel delivers progress events in phase order and is closed after the
// final result event. The buffer holds a full run's events, so the run always
// finishes even if the caller stops reading.
func (o *Orchestrator) Run(ctx context.Context, cfg domain.HarvestConfig) <-chan Event {
	ch := make(chan Event, eventBuffer)
	go o.run(ctx, cfg, ch)
	return ch
}

// RunSync runs a harvest to completion, discarding intermediate events, and
// returns only the final result.
func (o *Orchestrator) RunSync(ctx context.Context, cfg domain.HarvestConfig) *domain.HarvestFinalResult {
	var final *domain.HarvestFinalResult
	for event := range o.Run(ctx, cfg) {
		if event.Final != nil {
			final = event.Final
		}
	}
	return final
}

// runState tracks one run's mutable state across phases.
type runState struct {
	cfg      domain.HarvestConfig
	result   *domain.HarvestFinalResult
	logger   zerolog.Logger
	start    time.Time
	created  bool
	keywords []string
	venues   []string
}

func (o *Orchestrator) run(ctx context.Context, cfg domain.HarvestConfig, ch chan<- Event) {
	defer close(ch)

	cfg.ApplyDefaults()

	state := &runState{
		cfg:   cfg,
		start: o.now(),
		result: &domain.HarvestFinalResult{
			RunID:         o.newRunID(),
			Status:        domain.RunStatusRunning,
			SourceResults: make(map[domain.SourceType]domain.SourceOutcome),
			Errors:        make(map[string]string),
		},
		keywords: cfg.Keywords,
		venues:   cfg.Venues,
	}
	state.logger = observability.WithRunContext(o.logger, state.result.RunID)

	if o.metrics != nil {
		o.metrics.RecordRunStarted()
	}
	state.logger.Info().
		Strs("keywords", cfg.Keywords).
		Int("max_per_source", cfg.MaxResultsPerSource).
		Msg("harvest run started")

	if err := cfg.Validate(); err != nil {
		o.fail(ctx, state, ch, fmt.Errorf("invalid config: %w", err))
		return
	}

	if err := o.expand(ctx, state, ch); err != nil {
		o.fail(ctx, state, ch, err)
		return
	}
	if err := o.recommend(ctx, state, ch); err != nil {
		o.fail(ctx, state, ch, err)
		return
	}
	if err := o.initialize(ctx, state, ch); err != nil {
		o.fail(ctx, state, ch, err)
		return
	}

	papers := o.harvest(ctx, state, ch)
	unique := o.deduplicate(state, ch, papers)
	o.store(ctx, state, ch, unique)

	o.complete(ctx, state, ch)
}

// expand runs the keyword expansion collaborator when enabled.
func (o *Orchestrator) expand(ctx context.Context, state *runState, ch chan<- Event) error {
	if !state.cfg.ExpandKeywords || o.expander == nil {
		return nil
	}

	state.emit(ch, Event{
		Phase:   PhaseExpanding,
		Message: "expanding keywords",
		Details: map[string]any{"keywords": state.keywords},
	})

	expanded, err := o.expander.ExpandAll(ctx, state.keywords)
	if err != nil {
		return fmt.Errorf("expand keywords: %w", err)
	}
	if len(expanded) > 0 {
		state.keywords = expanded
	}
	state.logger.Debug().Strs("keywords", state.keywords).Msg("keywords expanded")
	return nil
}

// recommend runs the venue recommendation collaborator when enabled. New
// venues are appended to the configured ones.
func (o *Orchestrator) recommend(ctx context.Context, state *runState, ch chan<- Event) error {
	if !state.cfg.RecommendVenues || o.recommender == nil {
		return nil
	}

	state.emit(ch, Event{
		Phase:   PhaseRecommending,
		Message: "recommending venues",
		Details: map[string]any{"keywords": state.keywords},
	})

	recommended, err := o.recommender.Recommend(ctx, state.keywords, maxRecommendedVenues)
	if err != nil {
		return fmt.Errorf("recommend venues: %w", err)
	}

	seen := make(map[string]bool, len(state.venues))
	for _, v := range state.venues {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range recommended {
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		state.venues = append(state.venues, v)
	}
	state.logger.Debug().Strs("venues", state.venues).Msg("venues recommended")
	return nil
}

// initialize creates the durable run record.
func (o *Orchestrator) initialize(ctx context.Context, state *runState, ch chan<- Event) error {
	state.emit(ch, Event{
		Phase:   PhaseInitializing,
		Message: "creating run record",
	})

	run := &domain.HarvestRun{
		RunID:        state.result.RunID,
		Status:       domain.RunStatusRunning,
		Keywords:     state.keywords,
		Venues:       state.venues,
		Sources:      state.cfg.Sources,
		MaxPerSource: state.cfg.MaxResultsPerSource,
		StartedAt:    state.start,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	state.created = true
	return nil
}

// harvest fans out to the configured sources and concatenates their papers.
// Per-source failures are recorded in the result and never abort the run.
func (o *Orchestrator) harvest(ctx context.Context, state *runState, ch chan<- Event) []domain.HarvestedPaper {
	state.emit(ch, Event{
		Phase:   PhaseHarvesting,
		Message: fmt.Sprintf("searching %d sources", len(state.cfg.Sources)),
		Details: map[string]any{"sources": state.cfg.Sources},
	})

	params := papersources.SearchParams{
		Query:      strings.Join(state.keywords, " "),
		MaxResults: state.cfg.MaxResultsPerSource,
		YearFrom:   state.cfg.YearFrom,
		YearTo:     state.cfg.YearTo,
		Venues:     state.venues,
	}

	if o.metrics != nil {
		for _, st := range state.cfg.Sources {
			o.metrics.RecordSearchStarted(string(st))
		}
	}

	searchStart := o.now()
	results := o.sources.SearchSources(ctx, params, state.cfg.Sources)
	searchSeconds := o.now().Sub(searchStart).Seconds()

	var papers []domain.HarvestedPaper
	for _, r := range results {
		state.result.SourceResults[r.Source] = domain.SourceOutcome{
			Papers: len(r.Papers),
			Err:    r.Err,
		}
		if !r.Success() {
			state.result.Errors[string(r.Source)] = r.Err
			if o.metrics != nil {
				o.metrics.RecordSearchFailed(string(r.Source), searchSeconds)
			}
			state.logger.Warn().
				Str("source", string(r.Source)).
				Str("error", r.Err).
				Msg("source search failed")
			continue
		}
		papers = append(papers, r.Papers...)
		if o.metrics != nil {
			o.metrics.RecordSearchCompleted(string(r.Source), len(r.Papers), searchSeconds)
		}
		state.logger.Info().
			Str("source", string(r.Source)).
			Int("papers", len(r.Papers)).
			Int("total_found", r.TotalFound).
			Msg("source search completed")
	}

	state.result.PapersFound = len(papers)
	return papers
}

// deduplicate collapses the combined batch into unique papers.
func (o *Orchestrator) deduplicate(state *runState, ch chan<- Event, papers []domain.HarvestedPaper) []domain.HarvestedPaper {
	state.emit(ch, Event{
		Phase:   PhaseDeduplicating,
		Message: fmt.Sprintf("deduplicating %d papers", len(papers)),
		Details: map[string]any{"papers_found": len(papers)},
	})

	unique, merged := dedup.Deduplicate(papers)
	state.result.PapersDeduplicated = merged

	if o.metrics != nil {
		o.metrics.RecordPapersDeduplicated(merged)
	}
	state.logger.Info().
		Int("unique", len(unique)).
		Int("duplicates", merged).
		Msg("deduplication complete")

	return unique
}

// store batch-upserts the unique papers into the canonical registry.
// Per-paper failures are accumulated under "store:<key>" in the errors map.
func (o *Orchestrator) store(ctx context.Context, state *runState, ch chan<- Event, papers []domain.HarvestedPaper) {
	state.emit(ch, Event{
		Phase:   PhaseStoring,
		Message: fmt.Sprintf("storing %d papers", len(papers)),
		Details: map[string]any{"papers_unique": len(papers)},
	})

	batch, err := o.papers.UpsertBatch(ctx, papers)
	if err != nil {
		// UpsertBatch only errors when the context dies; whatever was stored
		// before that still counts.
		state.result.Errors[errorKeyPipeline] = fmt.Sprintf("store papers: %v", err)
	}
	if batch != nil {
		state.result.PapersNew = batch.New
		for key, msg := range batch.Errors {
			state.result.Errors["store:"+key] = msg
		}
		if o.metrics != nil {
			o.metrics.RecordPapersStored(batch.New, batch.Updated)
			o.metrics.RecordPaperStoreFailures(batch.Failed())
		}
		state.logger.Info().
			Int("new", batch.New).
			Int("updated", batch.Updated).
			Int("failed", batch.Failed()).
			Msg("papers stored")
	}

	state.result.Status = finalStatus(state.result, batch)
}

// finalStatus derives the terminal status from the stored counts and errors.
func finalStatus(result *domain.HarvestFinalResult, batch *repository.BatchUpsertResult) domain.RunStatus {
	stored := 0
	if batch != nil {
		stored = batch.New + batch.Updated
	}
	switch {
	case len(result.Errors) == 0:
		return domain.RunStatusSuccess
	case stored == 0:
		return domain.RunStatusFailed
	default:
		return domain.RunStatusPartial
	}
}

// complete finalizes the run record, notifies the publisher, and emits the
// final result event.
func (o *Orchestrator) complete(ctx context.Context, state *runState, ch chan<- Event) {
	state.result.DurationSeconds = o.now().Sub(state.start).Seconds()

	o.updateRun(ctx, state)

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(string(state.result.Status), state.result.DurationSeconds)
	}
	state.logger.Info().
		Str("status", string(state.result.Status)).
		Int("papers_found", state.result.PapersFound).
		Int("papers_new", state.result.PapersNew).
		Int("papers_deduplicated", state.result.PapersDeduplicated).
		Float64("duration_seconds", state.result.DurationSeconds).
		Msg("harvest run finished")

	o.notify(ctx, state)

	state.emit(ch, Event{
		Phase:   PhaseCompleted,
		Message: fmt.Sprintf("harvest %s", state.result.Status),
		Final:   state.result,
	})
}

// fail terminates the run with a pipeline-fatal error. The final result is
// still emitted as the last event.
func (o *Orchestrator) fail(ctx context.Context, state *runState, ch chan<- Event, err error) {
	state.result.Status = domain.RunStatusFailed
	state.result.Errors[errorKeyPipeline] = err.Error()
	state.result.DurationSeconds = o.now().Sub(state.start).Seconds()

	state.logger.Error().Err(err).Msg("harvest run failed")

	o.updateRun(ctx, state)

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(string(domain.RunStatusFailed), state.result.DurationSeconds)
	}

	o.notify(ctx, state)

	state.emit(ch, Event{
		Phase:   PhaseCompleted,
		Message: "harvest failed",
		Final:   state.result,
	})
}

// updateRun writes the final counts to the run record. Failures here are
// logged but never change the run outcome.
func (o *Orchestrator) updateRun(ctx context.Context, state *runState) {
	if !state.created {
		return
	}

	completedAt := o.now()
	update := domain.RunUpdate{
		Status:             &state.result.Status,
		PapersFound:        &state.result.PapersFound,
		PapersNew:          &state.result.PapersNew,
		PapersDeduplicated: &state.result.PapersDeduplicated,
		CompletedAt:        &completedAt,
	}
	if len(state.result.Errors) > 0 {
		update.Errors = state.result.Errors
	}

	if err := o.runs.UpdateRun(ctx, state.result.RunID, update); err != nil {
		state.logger.Error().Err(err).Msg("failed to update run record")
	}
}

// notify publishes the final result when a publisher is configured. Publish
// failures are logged and never affect the run status.
func (o *Orchestrator) notify(ctx context.Context, state *runState) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishRunCompleted(ctx, state.result); err != nil {
		state.logger.Warn().Err(err).Msg("failed to publish run completed event")
	}
}

// newRunID generates a run identifier unique across concurrent runs.
func (o *Orchestrator) newRunID() string {
	ts := o.now().UTC().Format("20060102-150405")
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("harvest-%s-%s", ts, suffix)
}

// emit stamps the run ID on an event and sends it without ever blocking the
// run. The channel buffer is sized for a full run, so a drop can only happen
// if that invariant breaks.
func (s *runState) emit(ch chan<- Event, event Event) {
	event.RunID = s.result.RunID
	select {
	case ch <- event:
	default:
	}
}
