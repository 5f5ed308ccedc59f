package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ladderwatch/internal/api"
	"ladderwatch/internal/config"
	"ladderwatch/internal/dedup"
	"ladderwatch/internal/domain"
	"ladderwatch/internal/recordstore"
	"ladderwatch/internal/scoring"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrCycleInFlight rejects a manual trigger while a cycle is running.
// Triggers are not queued; the caller retries after the cycle finishes.
var ErrCycleInFlight = errors.New("an ingestion cycle is already running")

// Discoverer is the external producer of raw candidates and their
// roster-validated form.
type Discoverer interface {
	Discover(ctx context.Context) ([]api.LadderMatch, error)
	Validate(ctx context.Context, raw []api.LadderMatch) ([]domain.ValidatedMatch, error)
}

// Orchestrator sequences discovery, scoring, deduplication, and storage
// into idempotent cycles, driven by a periodic timer or manual triggers.
// At most one cycle is in flight at a time.
type Orchestrator struct {
	cfg     *config.Config
	disc    Discoverer
	scorer  *scoring.Scorer
	dedup   *dedup.TieredStore
	records *recordstore.Store
	logger  zerolog.Logger
	now     func() time.Time

	cycleMu sync.Mutex

	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	running  bool
	bootedAt time.Time
	lastRun  *Result
}

func NewOrchestrator(
	cfg *config.Config,
	disc Discoverer,
	scorer *scoring.Scorer,
	dedupStore *dedup.TieredStore,
	records *recordstore.Store,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		disc:     disc,
		scorer:   scorer,
		dedup:    dedupStore,
		records:  records,
		logger:   logger.With().Str("component", "ingest").Logger(),
		now:      time.Now,
		bootedAt: time.Now(),
	}
}

// Start begins the periodic schedule. Calling Start while already running
// is a no-op, so there is never more than one active timer.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		o.logger.Debug().Msg("start ignored, orchestrator already running")
		return
	}

	o.cron = cron.New()
	spec := fmt.Sprintf("@every %s", o.cfg.PollInterval)
	entryID, err := o.cron.AddFunc(spec, o.scheduledRun)
	if err != nil {
		// @every with a positive duration cannot fail to parse
		o.logger.Error().Err(err).Str("spec", spec).Msg("failed to schedule ingestion")
		return
	}
	o.entryID = entryID
	o.cron.Start()
	o.running = true
	o.logger.Info().Dur("poll_interval", o.cfg.PollInterval).Msg("ingestion scheduler started")
}

// Stop prevents future scheduled cycles. An in-flight cycle finishes on
// its own; Stop does not interrupt it.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	o.cron.Stop()
	o.cron = nil
	o.running = false
	o.logger.Info().Msg("ingestion scheduler stopped")
}

func (o *Orchestrator) scheduledRun() {
	if _, err := o.RunOnce(context.Background()); errors.Is(err, ErrCycleInFlight) {
		o.logger.Warn().Msg("scheduled cycle skipped, previous cycle still running")
	}
}

// RunOnce executes a single ingestion cycle, in either state. A second
// caller while a cycle is in flight is rejected with ErrCycleInFlight
// rather than queued.
func (o *Orchestrator) RunOnce(ctx context.Context) (*Result, error) {
	if !o.cycleMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer o.cycleMu.Unlock()

	result := o.runCycle(ctx)

	o.mu.Lock()
	o.lastRun = result
	o.mu.Unlock()

	return result, nil
}

// runCycle is the cycle body. It never panics out and never returns
// early: every step's failure is folded into the result and the remaining
// counts still report.
func (o *Orchestrator) runCycle(ctx context.Context) (result *Result) {
	runID, err := gonanoid.New()
	if err != nil {
		runID = fmt.Sprintf("run-%d", o.now().UnixNano())
	}
	start := o.now()
	result = &Result{RunID: runID, StartedAt: start}

	defer func() {
		if r := recover(); r != nil {
			result.addError("cycle", fmt.Errorf("panic: %v", r))
		}
		result.DurationMS = o.now().Sub(start).Milliseconds()
		o.logger.Info().
			Str("run_id", result.RunID).
			Int("discovered", result.Discovered).
			Int("validated", result.Validated).
			Int("threshold_passed", result.ThresholdPassed).
			Int("unique", result.Unique).
			Int("duplicates", result.Duplicates).
			Int("stored", result.Stored).
			Int("errors", len(result.Errors)).
			Int64("duration_ms", result.DurationMS).
			Msg("ingestion cycle completed")
	}()

	logger := o.logger.With().Str("run_id", runID).Logger()

	raw, err := o.disc.Discover(ctx)
	if err != nil {
		result.addError("discovery", err)
		return result
	}
	result.Discovered = len(raw)

	validated, err := o.disc.Validate(ctx, raw)
	if err != nil {
		result.addError("validation", err)
		return result
	}
	validated = o.applyCutoff(validated)
	result.Validated = len(validated)

	scored := o.scorer.ScoreAll(validated)

	processedAt := o.now()
	var passed []domain.ProcessedMatch
	for _, s := range scored {
		if !s.Confidence.AtLeast(o.cfg.MinConfidence) {
			continue
		}
		passed = append(passed, domain.NewProcessedMatch(s.Match, s.Confidence, s.Factors, processedAt))
	}
	result.ThresholdPassed = len(passed)

	filtered := o.dedup.FilterDuplicates(ctx, passed)
	result.Unique = len(filtered.Unique)
	result.Duplicates = filtered.DuplicateCount

	storeResult := o.records.Store(ctx, filtered.Unique)
	result.Stored = storeResult.Stored
	for _, pe := range storeResult.Errors {
		result.addError(fmt.Sprintf("storage:%s", pe.Date), errors.New(pe.Error))
	}

	// commit acceptance only for ids whose partition write succeeded; a
	// failed partition's matches stay unaccepted and retry next cycle
	for date, ids := range storeResult.StoredIDs {
		o.dedup.RecordAccepted(ctx, date, ids)
	}

	if result.Duplicates > 0 {
		logger.Debug().Strs("duplicate_ids", filtered.DuplicateIDs).Msg("duplicates dropped")
	}
	return result
}

// applyCutoff drops matches played before the configured earliest
// eligible date.
func (o *Orchestrator) applyCutoff(matches []domain.ValidatedMatch) []domain.ValidatedMatch {
	if o.cfg.CutoffDate.IsZero() {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if !m.PlayedAt.Before(o.cfg.CutoffDate) {
			kept = append(kept, m)
		}
	}
	return kept
}

// Status is the orchestrator's externally visible state.
type Status struct {
	IsRunning bool          `json:"isRunning"`
	UptimeMS  int64         `json:"uptimeMs"`
	NextRunAt *time.Time    `json:"nextRunAt,omitempty"`
	LastRun   *Result       `json:"lastRun,omitempty"`
	Config    ConfigSummary `json:"config"`
}

type ConfigSummary struct {
	MinConfidence string `json:"minConfidence"`
	PollSeconds   int    `json:"pollSeconds"`
	LookbackDays  int    `json:"lookbackDays"`
	RetentionDays int    `json:"retentionDays"`
	BatchSize     int    `json:"batchSize"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		IsRunning: o.running,
		UptimeMS:  o.now().Sub(o.bootedAt).Milliseconds(),
		LastRun:   o.lastRun,
		Config: ConfigSummary{
			MinConfidence: string(o.cfg.MinConfidence),
			PollSeconds:   int(o.cfg.PollInterval / time.Second),
			LookbackDays:  o.cfg.LookbackDays,
			RetentionDays: o.cfg.RetentionDays,
			BatchSize:     o.cfg.BatchSize,
		},
	}
	if o.running {
		next := o.cron.Entry(o.entryID).Next
		if !next.IsZero() {
			status.NextRunAt = &next
		}
	}
	return status
}

// Stats aggregates the dedup, storage, and scoring views for the
// observability surface.
type AggregateStats struct {
	Dedup   dedup.Stats       `json:"dedup"`
	Storage recordstore.Stats `json:"storage"`
	Scoring scoring.Rules     `json:"scoring"`
}

func (o *Orchestrator) Stats(ctx context.Context) AggregateStats {
	stats := AggregateStats{
		Dedup:   o.dedup.Stats(),
		Scoring: o.scorer.Rules(),
	}
	storage, err := o.records.Stats(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("storage stats unavailable")
	}
	stats.Storage = storage
	return stats
}

// Cleanup delegates retention pruning to the dedup store.
func (o *Orchestrator) Cleanup(ctx context.Context) ([]string, error) {
	return o.dedup.Cleanup(ctx)
}

// Preload warms the dedup store; called once at startup before the
// scheduler begins.
func (o *Orchestrator) Preload(ctx context.Context) {
	o.dedup.Preload(ctx)
}
