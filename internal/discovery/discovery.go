package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"ladderwatch/internal/api"
	"ladderwatch/internal/config"
	"ladderwatch/internal/constants"
	"ladderwatch/internal/domain"
	"ladderwatch/internal/roster"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MatchSearcher is the slice of the ladder client discovery needs.
type MatchSearcher interface {
	SearchMatches(ctx context.Context, battleTag string, offset, pageSize int) (*api.MatchSearchResponse, error)
}

// Service discovers raw candidate matches from the ranking service and
// validates them against the community roster.
type Service struct {
	client MatchSearcher
	roster *roster.Repository
	cfg    *config.Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(client MatchSearcher, rosterRepo *roster.Repository, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		roster: rosterRepo,
		cfg:    cfg,
		logger: logger.With().Str("component", "discovery").Logger(),
		now:    time.Now,
	}
}

// Discover fans out over the active roster and collects each player's
// recent matches, bounded by the lookback window and batch size. The same
// match seen through two players' histories is collapsed to one candidate.
func (s *Service) Discover(ctx context.Context) ([]api.LadderMatch, error) {
	now := s.now().UTC()
	horizon := now.AddDate(0, 0, -s.cfg.LookbackDays)
	if !s.cfg.CutoffDate.IsZero() && s.cfg.CutoffDate.After(horizon) {
		horizon = s.cfg.CutoffDate
	}

	players, err := s.roster.ListActive(ctx, now.AddDate(0, 0, -constants.RosterActivityDays))
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		s.logger.Info().Msg("no active roster players, nothing to discover")
		return nil, nil
	}

	var mu sync.Mutex
	candidates := make(map[int64]api.LadderMatch)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentRequests)

	for _, p := range players {
		battleTag := p.BattleTag
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(gctx, constants.ExternalAPITimeout)
			defer cancel()

			resp, err := s.client.SearchMatches(reqCtx, battleTag, 0, s.cfg.BatchSize)
			if err != nil {
				// one player's history failing must not sink the batch
				s.logger.Warn().Err(err).Str("battle_tag", battleTag).Msg("match search failed")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, m := range resp.Matches {
				if m.StartTime.Before(horizon) {
					continue
				}
				candidates[m.ID] = m
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]api.LadderMatch, 0, len(candidates))
	for _, m := range candidates {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	s.logger.Info().Int("players", len(players)).Int("candidates", len(out)).Msg("discovery completed")
	return out, nil
}

// Validate resolves each candidate's participants against the roster and
// keeps the candidate when at least one participant is community-known.
// Unresolvable candidates are dropped silently; the caller counts them by
// comparing lengths.
func (s *Service) Validate(ctx context.Context, raw []api.LadderMatch) ([]domain.ValidatedMatch, error) {
	validated := make([]domain.ValidatedMatch, 0, len(raw))

	for _, m := range raw {
		vm, ok, err := s.validateOne(ctx, m)
		if err != nil {
			return nil, err
		}
		if ok {
			validated = append(validated, vm)
		}
	}

	return validated, nil
}

func (s *Service) validateOne(ctx context.Context, m api.LadderMatch) (domain.ValidatedMatch, bool, error) {
	var winner, loser *domain.Participant
	var all []domain.Participant
	known := 0
	oneVsOne := len(m.Teams) == 2 && len(m.Teams[0].Players) == 1 && len(m.Teams[1].Players) == 1
	decided := false

	for _, team := range m.Teams {
		for _, lp := range team.Players {
			p, err := s.resolveParticipant(ctx, lp)
			if err != nil {
				return domain.ValidatedMatch{}, false, err
			}
			if p.IsCommunityPlayer {
				known++
			}
			all = append(all, p)

			if oneVsOne {
				participant := p
				if team.Won {
					winner = &participant
					decided = true
				} else {
					loser = &participant
				}
			} else if team.Won {
				decided = true
			}
		}
	}

	if known == 0 || len(all) == 0 {
		return domain.ValidatedMatch{}, false, nil
	}

	var result domain.MatchResult
	switch {
	case oneVsOne && winner != nil && loser != nil:
		result = domain.WinLossResult(*winner, *loser)
	case decided:
		// a decided team game still lacks a single winner/loser pair
		result = domain.UnknownResult(all)
	default:
		result = domain.TieResult(all)
	}

	if err := result.Validate(); err != nil {
		s.logger.Warn().Err(err).Int64("match_id", m.ID).Msg("dropping candidate with inconsistent result")
		return domain.ValidatedMatch{}, false, nil
	}

	return domain.ValidatedMatch{
		MatchID:         m.ID,
		PlayedAt:        m.StartTime,
		MapName:         m.MapName,
		DurationSeconds: m.DurationInSeconds,
		Participants:    all,
		Result:          result,
	}, true, nil
}

// resolveParticipant enriches a wire player with roster identity. An
// unknown battle tag still yields a participant, just not a community one.
func (s *Service) resolveParticipant(ctx context.Context, lp api.LadderPlayer) (domain.Participant, error) {
	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	entry, err := s.roster.ResolveBattleTag(dbCtx, lp.BattleTag)
	if err != nil {
		return domain.Participant{}, err
	}

	p := domain.Participant{
		CharacterID: lp.CharacterID,
		BattleTag:   lp.BattleTag,
		Name:        lp.Name,
		Race:        domain.Race(lp.Race),
		Rating:      lp.OldMMR,
	}
	if entry == nil {
		return p, nil
	}

	p.IsCommunityPlayer = true
	p.LastActiveAt = entry.LastActiveAt
	if entry.CharacterID > 0 {
		p.CharacterID = entry.CharacterID
	}
	if p.Rating == nil {
		p.Rating = entry.Rating
	}
	if p.Race == "" {
		p.Race = entry.Race
	}
	return p, nil
}
