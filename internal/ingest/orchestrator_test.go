package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ladderwatch/internal/api"
	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/config"
	"ladderwatch/internal/dedup"
	"ladderwatch/internal/domain"
	"ladderwatch/internal/recordstore"
	"ladderwatch/internal/scoring"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var playedAt = time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC)

type fakeDiscoverer struct {
	raw       []api.LadderMatch
	validated []domain.ValidatedMatch
	discErr   error
	valErr    error
	entered   chan struct{}
	block     chan struct{}
}

func (f *fakeDiscoverer) Discover(ctx context.Context) ([]api.LadderMatch, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	return f.raw, f.discErr
}

func (f *fakeDiscoverer) Validate(ctx context.Context, raw []api.LadderMatch) ([]domain.ValidatedMatch, error) {
	return f.validated, f.valErr
}

func testOrchestrator(t *testing.T, disc Discoverer, blobs blobstore.Store) (*Orchestrator, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		DedupIndexPath:         filepath.Join(t.TempDir(), "index.json"),
		MinConfidence:          domain.ConfidenceMedium,
		PollInterval:           15 * time.Minute,
		BatchSize:              50,
		LookbackDays:           7,
		MaxConcurrentRequests:  4,
		MaxRecordsPerPartition: 1000,
		RetentionDays:          90,
		CacheIDBudget:          1000,
	}

	scorer := scoring.NewScorer(scoring.DefaultRules())
	dedupStore := dedup.NewTieredStore(cfg, blobs, zerolog.Nop())
	records := recordstore.NewStore(cfg, blobs, zerolog.Nop())

	return NewOrchestrator(cfg, disc, scorer, dedupStore, records, zerolog.Nop()), cfg
}

func strongMatch(id int64) domain.ValidatedMatch {
	rating1, rating2 := 1510.0, 1490.0
	active := playedAt.Add(-48 * time.Hour)
	duration := int64(1200)

	p1 := domain.Participant{
		CharacterID: 1, BattleTag: "ToD#2792", Name: "ToD",
		Rating: &rating1, Race: domain.RaceHuman, IsCommunityPlayer: true, LastActiveAt: &active,
	}
	p2 := domain.Participant{
		CharacterID: 2, BattleTag: "Lyn#1990", Name: "Lyn",
		Rating: &rating2, Race: domain.RaceOrc, IsCommunityPlayer: true, LastActiveAt: &active,
	}

	return domain.ValidatedMatch{
		MatchID:         id,
		PlayedAt:        playedAt,
		MapName:         "Echo Isles",
		DurationSeconds: &duration,
		Participants:    []domain.Participant{p1, p2},
		Result:          domain.WinLossResult(p1, p2),
	}
}

func weakMatch(id int64) domain.ValidatedMatch {
	p1 := domain.Participant{CharacterID: 1, BattleTag: "Rando#1111", Name: "Rando"}
	p2 := domain.Participant{CharacterID: 2, BattleTag: "Known#2222", Name: "Known", IsCommunityPlayer: true}

	return domain.ValidatedMatch{
		MatchID:      id,
		PlayedAt:     playedAt,
		MapName:      "Unknown Arena",
		Participants: []domain.Participant{p1, p2},
		Result:       domain.UnknownResult([]domain.Participant{p1, p2}),
	}
}

func TestRunOnceFullCycle(t *testing.T) {
	disc := &fakeDiscoverer{
		raw:       make([]api.LadderMatch, 3),
		validated: []domain.ValidatedMatch{strongMatch(101), strongMatch(102), weakMatch(103)},
	}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())

	result, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Discovered)
	assert.Equal(t, 3, result.Validated)
	assert.Equal(t, 2, result.ThresholdPassed) // the weak match scores low
	assert.Equal(t, 2, result.Unique)
	assert.Equal(t, 2, result.Stored)
	assert.Zero(t, result.Duplicates)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
}

func TestSecondRunIsAllDuplicates(t *testing.T) {
	disc := &fakeDiscoverer{
		raw:       make([]api.LadderMatch, 2),
		validated: []domain.ValidatedMatch{strongMatch(201), strongMatch(202)},
	}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())
	ctx := context.Background()

	first, err := orch.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.Stored)

	second, err := orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Unique)
	assert.Zero(t, second.Stored)
	assert.Equal(t, 2, second.Duplicates)
}

func TestStorageFailureDoesNotCommitAcceptance(t *testing.T) {
	disc := &fakeDiscoverer{
		raw:       make([]api.LadderMatch, 1),
		validated: []domain.ValidatedMatch{strongMatch(301)},
	}
	failing := &partitionFailingStore{Store: blobstore.NewMemory()}
	orch, _ := testOrchestrator(t, disc, failing)
	ctx := context.Background()

	first, err := orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.Stored)
	require.Len(t, first.Errors, 1)
	assert.Contains(t, first.Errors[0].Context, "storage")

	// storage recovers; the match must still count as new, not accepted
	failing.healed = true
	second, err := orch.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Unique)
	assert.Equal(t, 1, second.Stored)
}

// partitionFailingStore fails partition writes until healed, while
// leaving the dedup index blob writable.
type partitionFailingStore struct {
	blobstore.Store
	healed bool
}

func (p *partitionFailingStore) WriteFile(ctx context.Context, name string, data []byte) error {
	if !p.healed && strings.HasPrefix(name, "matches/") {
		return errors.New("injected partition failure")
	}
	return p.Store.WriteFile(ctx, name, data)
}

func TestDiscoveryFailureCompletesCycleWithError(t *testing.T) {
	disc := &fakeDiscoverer{discErr: errors.New("upstream down")}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())

	result, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Discovered)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "discovery", result.Errors[0].Context)
}

func TestRunOnceRejectedWhileCycleInFlight(t *testing.T) {
	disc := &fakeDiscoverer{
		entered: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())

	done := make(chan struct{})
	go func() {
		_, _ = orch.RunOnce(context.Background())
		close(done)
	}()

	// wait until the in-flight cycle holds the lock
	<-disc.entered

	_, err := orch.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrCycleInFlight)

	close(disc.block)
	<-done

	// the lock is released once the cycle completes
	_, err = orch.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestStartStopStateMachine(t *testing.T) {
	disc := &fakeDiscoverer{}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())

	assert.False(t, orch.Status().IsRunning)

	orch.Start()
	status := orch.Status()
	assert.True(t, status.IsRunning)
	require.NotNil(t, status.NextRunAt)

	// starting twice is a no-op, not an error
	orch.Start()
	assert.True(t, orch.Status().IsRunning)

	orch.Stop()
	status = orch.Status()
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.NextRunAt)

	// stopping twice is harmless
	orch.Stop()
	assert.False(t, orch.Status().IsRunning)
}

func TestStatusCarriesLastRunAndConfig(t *testing.T) {
	disc := &fakeDiscoverer{validated: []domain.ValidatedMatch{strongMatch(401)}}
	orch, cfg := testOrchestrator(t, disc, blobstore.NewMemory())

	result, err := orch.RunOnce(context.Background())
	require.NoError(t, err)

	status := orch.Status()
	require.NotNil(t, status.LastRun)
	assert.Equal(t, result.RunID, status.LastRun.RunID)
	assert.Equal(t, string(cfg.MinConfidence), status.Config.MinConfidence)
	assert.Equal(t, cfg.LookbackDays, status.Config.LookbackDays)
	assert.GreaterOrEqual(t, status.UptimeMS, int64(0))
}

func TestCutoffDropsEarlierMatches(t *testing.T) {
	old := strongMatch(501)
	old.PlayedAt = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	disc := &fakeDiscoverer{
		raw:       make([]api.LadderMatch, 2),
		validated: []domain.ValidatedMatch{old, strongMatch(502)},
	}
	orch, cfg := testOrchestrator(t, disc, blobstore.NewMemory())
	cfg.CutoffDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := orch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Validated)
	assert.Equal(t, 1, result.Stored)
}

func TestCleanupDelegatesToDedupStore(t *testing.T) {
	disc := &fakeDiscoverer{}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())

	removed, err := orch.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestStatsAggregatesComponents(t *testing.T) {
	disc := &fakeDiscoverer{validated: []domain.ValidatedMatch{strongMatch(601)}}
	orch, _ := testOrchestrator(t, disc, blobstore.NewMemory())
	ctx := context.Background()

	_, err := orch.RunOnce(ctx)
	require.NoError(t, err)

	stats := orch.Stats(ctx)
	assert.Equal(t, 1, stats.Dedup.IndexMatches)
	assert.Equal(t, 1, stats.Storage.Partitions)
	assert.Equal(t, 6, stats.Scoring.MediumThreshold)
}
