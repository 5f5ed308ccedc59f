package dedup

import (
	"context"
	"sort"
	"time"

	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/config"
	"ladderwatch/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TieredStore answers "has match X on date D already been accepted?" with
// a read-through chain of memory, local file, and remote backup tiers,
// and writes through to all three on acceptance. A tier failing only
// means falling to the next one; total failure means an empty history, so
// infrastructure outages never block new dates.
type TieredStore struct {
	memory *memoryTier
	local  *localTier
	remote *remoteTier

	retentionDays int
	lookbackDays  int
	logger        zerolog.Logger
	now           func() time.Time
}

func NewTieredStore(cfg *config.Config, blobs blobstore.Store, logger zerolog.Logger) *TieredStore {
	return &TieredStore{
		memory:        newMemoryTier(cfg.CacheIDBudget),
		local:         newLocalTier(cfg.DedupIndexPath),
		remote:        newRemoteTier(blobs),
		retentionDays: cfg.RetentionDays,
		lookbackDays:  cfg.LookbackDays,
		logger:        logger.With().Str("component", "dedup").Logger(),
		now:           time.Now,
	}
}

// AcceptedIDs returns the ids already accepted for dateKey, walking the
// tiers in order and stopping at the first hit. Every tier failure is
// logged and falls through; all-tiers-miss is an empty set.
func (s *TieredStore) AcceptedIDs(ctx context.Context, dateKey string) map[string]struct{} {
	if ids, ok := s.memory.get(dateKey); ok {
		return ids
	}

	if ix, err := s.local.load(); err != nil {
		s.logger.Warn().Err(err).Str("date", dateKey).Msg("local index read failed, falling back to remote")
	} else if ids := ix.ids(dateKey); len(ids) > 0 {
		s.memory.set(dateKey, ids)
		return copyIDs(ids)
	}

	ix, err := s.remote.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", dateKey).Msg("remote index read failed, treating date as empty")
		return map[string]struct{}{}
	}
	ids := ix.ids(dateKey)
	if len(ids) > 0 {
		s.memory.set(dateKey, ids)
	}
	return ids
}

// FilterResult splits a batch into matches not seen before and the
// duplicates that were dropped.
type FilterResult struct {
	Unique         []domain.ProcessedMatch
	DuplicateCount int
	DuplicateIDs   []string
}

// FilterDuplicates partitions the batch by dateKey, checks each match
// against the accepted history for its date, and also catches duplicates
// within the batch itself. Matches sharing an id across different dates
// are independent.
func (s *TieredStore) FilterDuplicates(ctx context.Context, matches []domain.ProcessedMatch) FilterResult {
	result := FilterResult{}
	accepted := make(map[string]map[string]struct{})
	seen := make(map[string]map[string]struct{})

	for _, m := range matches {
		date := m.DateKey
		if _, ok := accepted[date]; !ok {
			accepted[date] = s.AcceptedIDs(ctx, date)
			seen[date] = make(map[string]struct{})
		}

		id := m.IDKey()
		if _, dup := accepted[date][id]; dup {
			result.DuplicateCount++
			result.DuplicateIDs = append(result.DuplicateIDs, id)
			continue
		}
		if _, dup := seen[date][id]; dup {
			result.DuplicateCount++
			result.DuplicateIDs = append(result.DuplicateIDs, id)
			continue
		}

		seen[date][id] = struct{}{}
		result.Unique = append(result.Unique, m)
	}

	return result
}

// RecordAccepted marks ids as accepted for dateKey across all three
// tiers. The memory write is synchronous; the local and remote writes are
// dispatched concurrently and joined, and neither failing aborts the call
// — a local failure is logged as an error (it threatens persistence
// across restarts), a remote one as a warning. Repeated calls with
// overlapping ids are idempotent.
func (s *TieredStore) RecordAccepted(ctx context.Context, dateKey string, ids []string) {
	if len(ids) == 0 {
		return
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	now := s.now()

	s.memory.merge(dateKey, set)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.Go(func() error {
		if err := s.local.mergeWrite(dateKey, set, now); err != nil {
			s.logger.Error().Err(err).Str("date", dateKey).Int("ids", len(set)).
				Msg("local index write failed, acceptance may not survive a restart")
		}
		return nil
	})
	g.Go(func() error {
		if err := s.remote.mergeWrite(gctx, dateKey, set, now); err != nil {
			s.logger.Warn().Err(err).Str("date", dateKey).Int("ids", len(set)).
				Msg("remote index write failed, local file remains the durable copy")
		}
		return nil
	})
	_ = g.Wait()
}

// Cleanup prunes acceptance history older than the retention window from
// all three tiers and reports the dateKeys removed from the local index.
func (s *TieredStore) Cleanup(ctx context.Context) ([]string, error) {
	now := s.now()
	cutoffKey := now.UTC().AddDate(0, 0, -s.retentionDays).Format(domain.DateKeyFormat)

	evicted := s.memory.removeOlderThan(cutoffKey)

	removed, err := s.local.prune(cutoffKey, now)
	if err != nil {
		s.logger.Error().Err(err).Str("cutoff", cutoffKey).Msg("local index prune failed")
		return nil, err
	}

	if _, remoteErr := s.remote.prune(ctx, cutoffKey, now); remoteErr != nil {
		s.logger.Warn().Err(remoteErr).Str("cutoff", cutoffKey).Msg("remote index prune failed")
	}

	s.logger.Info().Str("cutoff", cutoffKey).Int("dates_removed", len(removed)).
		Int("cache_entries_evicted", evicted).Msg("retention cleanup completed")
	return removed, nil
}

// Preload eagerly loads the local index into the memory cache so the
// first cycle skips tier-3 latency, then reconciles the recent lookback
// window against the remote store in the background. The background merge
// is idempotent, so overlapping with an in-flight cycle is safe.
func (s *TieredStore) Preload(ctx context.Context) {
	ix, err := s.local.load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("preload: local index unreadable, starting cold")
	} else {
		dates := make([]string, 0, len(ix.ProcessedMatches))
		for date := range ix.ProcessedMatches {
			dates = append(dates, date)
		}
		// oldest first so eviction keeps the most recent dates
		sort.Strings(dates)
		for _, date := range dates {
			s.memory.set(date, ix.ids(date))
		}
		s.logger.Info().Int("dates", len(dates)).Msg("preload: local index loaded into memory cache")
	}

	go s.reconcileRecent(context.WithoutCancel(ctx))
}

// reconcileRecent merges the remote index's view of the last lookback
// days into the memory cache and local file, covering ids another process
// instance may have accepted.
func (s *TieredStore) reconcileRecent(ctx context.Context) {
	ix, err := s.remote.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reconcile: remote index unreadable, skipping")
		return
	}

	now := s.now()
	merged := 0
	for i := 0; i < s.lookbackDays; i++ {
		date := now.UTC().AddDate(0, 0, -i).Format(domain.DateKeyFormat)
		ids := ix.ids(date)
		if len(ids) == 0 {
			continue
		}
		s.memory.merge(date, ids)
		if err := s.local.mergeWrite(date, ids, now); err != nil {
			s.logger.Warn().Err(err).Str("date", date).Msg("reconcile: local merge failed")
			continue
		}
		merged++
	}
	s.logger.Info().Int("dates_merged", merged).Msg("reconcile: remote history merged")
}

// Stats describes the dedup store for the observability surface.
type Stats struct {
	CachedDates   int    `json:"cachedDates"`
	CachedIDs     int    `json:"cachedIds"`
	IndexDates    int    `json:"indexDates"`
	IndexMatches  int    `json:"indexMatches"`
	RetentionDays int    `json:"retentionDays"`
	SchemaVersion string `json:"schemaVersion"`
}

func (s *TieredStore) Stats() Stats {
	stats := Stats{RetentionDays: s.retentionDays, SchemaVersion: indexSchemaVersion}
	stats.CachedDates, stats.CachedIDs = s.memory.stats()

	ix, err := s.local.load()
	if err != nil {
		s.logger.Debug().Err(err).Msg("stats: local index unreadable")
		return stats
	}
	stats.IndexDates = len(ix.ProcessedMatches)
	for _, ids := range ix.ProcessedMatches {
		stats.IndexMatches += len(ids)
	}
	return stats
}
