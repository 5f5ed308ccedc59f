package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ladderwatch/internal/domain"

	"github.com/rs/zerolog"
)

// Player is a community roster entry, the identity source validation
// resolves discovered participants against.
type Player struct {
	CharacterID  int64
	BattleTag    string
	Name         string
	Race         domain.Race
	Rating       *float64
	LastActiveAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRepository(db *sql.DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// ResolveBattleTag looks a battle tag up in the roster. A missing tag is
// (nil, nil), not an error.
func (r *Repository) ResolveBattleTag(ctx context.Context, battleTag string) (*Player, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT character_id, battle_tag, name, race, rating, last_active_at, created_at, updated_at
		FROM players WHERE battle_tag = ?`, battleTag)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve battle tag %s: %w", battleTag, err)
	}
	return p, nil
}

// ListActive returns roster players whose last activity is at or after
// the given instant. Players with no recorded activity are excluded.
func (r *Repository) ListActive(ctx context.Context, since time.Time) ([]Player, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT character_id, battle_tag, name, race, rating, last_active_at, created_at, updated_at
		FROM players
		WHERE last_active_at IS NOT NULL AND last_active_at >= ?
		ORDER BY battle_tag`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list active players: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

func (r *Repository) Upsert(ctx context.Context, p Player) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (character_id, battle_tag, name, race, rating, last_active_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
			battle_tag = excluded.battle_tag,
			name = excluded.name,
			race = excluded.race,
			rating = excluded.rating,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at`,
		p.CharacterID, p.BattleTag, p.Name, string(p.Race), p.Rating, p.LastActiveAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", p.BattleTag, err)
	}
	return nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row scanner) (*Player, error) {
	var p Player
	var race string
	var rating sql.NullFloat64
	var lastActive sql.NullTime

	if err := row.Scan(&p.CharacterID, &p.BattleTag, &p.Name, &race, &rating, &lastActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Race = domain.Race(race)
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}
	if lastActive.Valid {
		t := lastActive.Time
		p.LastActiveAt = &t
	}
	return &p, nil
}
