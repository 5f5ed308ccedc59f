package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/config"
	"ladderwatch/internal/constants"
	"ladderwatch/internal/domain"

	"github.com/rs/zerolog"
)

// Store persists processed matches to the remote backup store, one
// partition blob per dateKey. Partitions are independent: a failed write
// for one date never affects another.
type Store struct {
	blobs           blobstore.Store
	maxPerPartition int
	logger          zerolog.Logger
}

func NewStore(cfg *config.Config, blobs blobstore.Store, logger zerolog.Logger) *Store {
	return &Store{
		blobs:           blobs,
		maxPerPartition: cfg.MaxRecordsPerPartition,
		logger:          logger.With().Str("component", "recordstore").Logger(),
	}
}

type PartitionError struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// StoreResult reports what was actually written. StoredIDs only contains
// ids whose partition write succeeded, so callers can commit acceptance
// for exactly the matches that made it to storage.
type StoreResult struct {
	Stored    int
	StoredIDs map[string][]string
	Errors    []PartitionError
}

// Store groups matches by dateKey and merges each group into its
// partition. Ids already present in a partition are skipped (defense in
// depth beyond the dedup index). Partitions at capacity reject overflow
// with a recorded error rather than dropping it silently.
func (s *Store) Store(ctx context.Context, matches []domain.ProcessedMatch) StoreResult {
	result := StoreResult{StoredIDs: make(map[string][]string)}
	if len(matches) == 0 {
		return result
	}

	byDate := make(map[string][]domain.ProcessedMatch)
	for _, m := range matches {
		byDate[m.DateKey] = append(byDate[m.DateKey], m)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		stored, err := s.storePartition(ctx, date, byDate[date])
		if len(stored) > 0 {
			result.Stored += len(stored)
			result.StoredIDs[date] = stored
		}
		if err != nil {
			s.logger.Error().Err(err).Str("date", date).Msg("partition store failed")
			result.Errors = append(result.Errors, PartitionError{Date: date, Error: err.Error()})
		}
	}

	return result
}

func (s *Store) storePartition(ctx context.Context, date string, matches []domain.ProcessedMatch) ([]string, error) {
	existing, err := s.readPartition(ctx, date)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		present[m.IDKey()] = struct{}{}
	}

	var storedIDs []string
	merged := existing
	overflow := 0
	for _, m := range matches {
		id := m.IDKey()
		if _, ok := present[id]; ok {
			continue
		}
		if len(merged) >= s.maxPerPartition {
			overflow++
			continue
		}
		present[id] = struct{}{}
		merged = append(merged, m)
		storedIDs = append(storedIDs, id)
	}

	if len(storedIDs) > 0 {
		data, err := json.MarshalIndent(merged, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode partition %s: %w", date, err)
		}

		wctx, cancel := context.WithTimeout(ctx, constants.RemoteStoreTimeout)
		defer cancel()
		if err := s.blobs.WriteFile(wctx, partitionBlob(date), data); err != nil {
			return nil, fmt.Errorf("failed to write partition %s: %w", date, err)
		}
	}

	if overflow > 0 {
		return storedIDs, fmt.Errorf("partition %s at capacity (%d records), %d rejected", date, s.maxPerPartition, overflow)
	}
	return storedIDs, nil
}

// Get returns a partition's matches. An absent or unreadable partition is
// an empty list; reads never fail the caller.
func (s *Store) Get(ctx context.Context, date string) []domain.ProcessedMatch {
	matches, err := s.readPartition(ctx, date)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", date).Msg("partition read failed, returning empty")
		return nil
	}
	return matches
}

func (s *Store) readPartition(ctx context.Context, date string) ([]domain.ProcessedMatch, error) {
	rctx, cancel := context.WithTimeout(ctx, constants.RemoteStoreTimeout)
	defer cancel()

	data, err := s.blobs.ReadFile(rctx, partitionBlob(date))
	if blobstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", date, err)
	}

	var matches []domain.ProcessedMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode partition %s: %w", date, err)
	}
	return matches, nil
}

// ListDates enumerates the dateKeys that have a stored partition.
func (s *Store) ListDates(ctx context.Context) ([]string, error) {
	names, err := s.blobs.ListFiles(ctx, constants.MatchBlobPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var dates []string
	for _, name := range names {
		date := strings.TrimSuffix(strings.TrimPrefix(name, constants.MatchBlobPrefix), ".json")
		if _, err := time.Parse(domain.DateKeyFormat, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Stats summarizes stored partitions for the observability surface.
type Stats struct {
	Partitions   int    `json:"partitions"`
	EarliestDate string `json:"earliestDate,omitempty"`
	LatestDate   string `json:"latestDate,omitempty"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	dates, err := s.ListDates(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Partitions: len(dates)}
	if len(dates) > 0 {
		stats.EarliestDate = dates[0]
		stats.LatestDate = dates[len(dates)-1]
	}
	return stats, nil
}

func partitionBlob(date string) string {
	return constants.MatchBlobPrefix + date + ".json"
}
