package roster

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ladderwatch/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE players (
			character_id INTEGER PRIMARY KEY,
			battle_tag TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			race TEXT NOT NULL DEFAULT '',
			rating REAL,
			last_active_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	require.NoError(t, err)
	return db
}

func TestUpsertAndResolve(t *testing.T) {
	repo := NewRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	rating := 2810.0
	active := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, Player{
		CharacterID:  101,
		BattleTag:    "Happy#2384",
		Name:         "Happy",
		Race:         domain.RaceUndead,
		Rating:       &rating,
		LastActiveAt: &active,
	}))

	p, err := repo.ResolveBattleTag(ctx, "Happy#2384")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(101), p.CharacterID)
	assert.Equal(t, domain.RaceUndead, p.Race)
	require.NotNil(t, p.Rating)
	assert.Equal(t, 2810.0, *p.Rating)

	// upsert replaces, never duplicates
	newRating := 2900.0
	require.NoError(t, repo.Upsert(ctx, Player{
		CharacterID: 101,
		BattleTag:   "Happy#2384",
		Name:        "Happy",
		Race:        domain.RaceUndead,
		Rating:      &newRating,
	}))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	p, err = repo.ResolveBattleTag(ctx, "Happy#2384")
	require.NoError(t, err)
	assert.Equal(t, 2900.0, *p.Rating)
}

func TestResolveUnknownTagIsNilNotError(t *testing.T) {
	repo := NewRepository(testDB(t), zerolog.Nop())

	p, err := repo.ResolveBattleTag(context.Background(), "Nobody#0000")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestListActiveFiltersByActivity(t *testing.T) {
	repo := NewRepository(testDB(t), zerolog.Nop())
	ctx := context.Background()

	recent := time.Now().UTC().Add(-24 * time.Hour)
	stale := time.Now().UTC().Add(-200 * 24 * time.Hour)

	require.NoError(t, repo.Upsert(ctx, Player{CharacterID: 1, BattleTag: "Fresh#1", Name: "Fresh", LastActiveAt: &recent}))
	require.NoError(t, repo.Upsert(ctx, Player{CharacterID: 2, BattleTag: "Stale#2", Name: "Stale", LastActiveAt: &stale}))
	require.NoError(t, repo.Upsert(ctx, Player{CharacterID: 3, BattleTag: "Never#3", Name: "Never"}))

	active, err := repo.ListActive(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Fresh#1", active[0].BattleTag)
}
