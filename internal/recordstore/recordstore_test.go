package recordstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/config"
	"ladderwatch/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, blobs blobstore.Store) *Store {
	t.Helper()
	cfg := &config.Config{MaxRecordsPerPartition: 1000}
	return NewStore(cfg, blobs, zerolog.Nop())
}

func match(id int64, dateKey string) domain.ProcessedMatch {
	playedAt, _ := domain.ParseDateKey(dateKey)
	return domain.ProcessedMatch{
		MatchID:       id,
		PlayedAt:      playedAt,
		DateKey:       dateKey,
		MapName:       "Twisted Meadows",
		Confidence:    domain.ConfidenceMedium,
		ProcessedAt:   time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		SchemaVersion: domain.MatchSchemaVersion,
	}
}

// faultyStore fails writes for blob names containing a marker.
type faultyStore struct {
	blobstore.Store
	failSubstring string
}

func (f *faultyStore) WriteFile(ctx context.Context, name string, data []byte) error {
	if strings.Contains(name, f.failSubstring) {
		return errors.New("injected write failure")
	}
	return f.Store.WriteFile(ctx, name, data)
}

func TestStoreGroupsByDateAndRoundTrips(t *testing.T) {
	store := testStore(t, blobstore.NewMemory())
	ctx := context.Background()

	result := store.Store(ctx, []domain.ProcessedMatch{
		match(1, "2024-01-15"),
		match(2, "2024-01-16"),
		match(3, "2024-01-15"),
	})

	require.Empty(t, result.Errors)
	assert.Equal(t, 3, result.Stored)
	assert.ElementsMatch(t, []string{"1", "3"}, result.StoredIDs["2024-01-15"])
	assert.Equal(t, []string{"2"}, result.StoredIDs["2024-01-16"])

	day := store.Get(ctx, "2024-01-15")
	require.Len(t, day, 2)
	assert.Equal(t, "2024-01-15", day[0].DateKey)

	dates, err := store.ListDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-15", "2024-01-16"}, dates)
}

func TestStoreSkipsIDsAlreadyInPartition(t *testing.T) {
	store := testStore(t, blobstore.NewMemory())
	ctx := context.Background()

	first := store.Store(ctx, []domain.ProcessedMatch{match(1, "2024-01-15")})
	require.Equal(t, 1, first.Stored)

	// same id again: the partition itself rejects it even if the dedup
	// index missed it
	second := store.Store(ctx, []domain.ProcessedMatch{
		match(1, "2024-01-15"),
		match(2, "2024-01-15"),
	})
	assert.Equal(t, 1, second.Stored)
	assert.Equal(t, []string{"2"}, second.StoredIDs["2024-01-15"])

	assert.Len(t, store.Get(ctx, "2024-01-15"), 2)
}

func TestStoreIsolatesPartitionFailures(t *testing.T) {
	blobs := &faultyStore{Store: blobstore.NewMemory(), failSubstring: "2024-01-16"}
	store := testStore(t, blobs)
	ctx := context.Background()

	result := store.Store(ctx, []domain.ProcessedMatch{
		match(1, "2024-01-15"),
		match(2, "2024-01-16"),
		match(3, "2024-01-17"),
	})

	assert.Equal(t, 2, result.Stored)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "2024-01-16", result.Errors[0].Date)
	assert.NotContains(t, result.StoredIDs, "2024-01-16")

	assert.Len(t, store.Get(ctx, "2024-01-15"), 1)
	assert.Empty(t, store.Get(ctx, "2024-01-16"))
}

func TestStoreEnforcesPartitionCapacity(t *testing.T) {
	cfg := &config.Config{MaxRecordsPerPartition: 2}
	store := NewStore(cfg, blobstore.NewMemory(), zerolog.Nop())
	ctx := context.Background()

	result := store.Store(ctx, []domain.ProcessedMatch{
		match(1, "2024-01-15"),
		match(2, "2024-01-15"),
		match(3, "2024-01-15"),
	})

	assert.Equal(t, 2, result.Stored)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "capacity")
	assert.Len(t, store.Get(ctx, "2024-01-15"), 2)
}

func TestGetAbsentPartitionIsEmpty(t *testing.T) {
	store := testStore(t, blobstore.NewMemory())
	assert.Empty(t, store.Get(context.Background(), "2030-01-01"))
}

func TestGetUnreadablePartitionIsEmpty(t *testing.T) {
	blobs := blobstore.NewMemory()
	require.NoError(t, blobs.WriteFile(context.Background(), "matches/2024-01-15.json", []byte("{corrupt")))

	store := testStore(t, blobs)
	assert.Empty(t, store.Get(context.Background(), "2024-01-15"))
}

func TestListDatesIgnoresForeignBlobs(t *testing.T) {
	blobs := blobstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, blobs.WriteFile(ctx, "matches/2024-01-15.json", []byte("[]")))
	require.NoError(t, blobs.WriteFile(ctx, "matches/readme.txt", []byte("x")))

	store := testStore(t, blobs)
	dates, err := store.ListDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-15"}, dates)
}

func TestStatsSummarizesPartitions(t *testing.T) {
	store := testStore(t, blobstore.NewMemory())
	ctx := context.Background()

	store.Store(ctx, []domain.ProcessedMatch{
		match(1, "2024-01-10"),
		match(2, "2024-02-20"),
	})

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Partitions)
	assert.Equal(t, "2024-01-10", stats.EarliestDate)
	assert.Equal(t, "2024-02-20", stats.LatestDate)
}
