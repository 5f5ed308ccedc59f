package scoring

import (
	"strings"
	"time"

	"ladderwatch/internal/domain"
)

// Rules is the immutable point table and factor thresholds the scorer is
// constructed with.
type Rules struct {
	ValidIDsPoints           int
	BothCommunityPoints      int
	BothActivePoints         int
	ReasonableDurationPoints int
	SimilarSkillPoints       int
	KnownMapPoints           int

	MediumThreshold int
	HighThreshold   int

	MinDurationSeconds int64
	MaxDurationSeconds int64
	MaxRatingGap       float64
	ActivityWindow     time.Duration
	KnownMaps          []string
}

func DefaultRules() Rules {
	return Rules{
		ValidIDsPoints:           2,
		BothCommunityPoints:      3,
		BothActivePoints:         1,
		ReasonableDurationPoints: 1,
		SimilarSkillPoints:       1,
		KnownMapPoints:           1,
		MediumThreshold:          6,
		HighThreshold:            8,
		MinDurationSeconds:       120,
		MaxDurationSeconds:       7200,
		MaxRatingGap:             150,
		ActivityWindow:           30 * 24 * time.Hour,
		KnownMaps: []string{
			"Echo Isles",
			"Last Refuge",
			"Concealed Hill",
			"Twisted Meadows",
			"Amazonia",
			"Terenas Stand",
			"Autumn Leaves",
			"Northern Isles",
			"Hammerfall",
			"Springtime",
		},
	}
}

// Scorer assigns confidence tiers to validated matches. Pure: no I/O and no
// state beyond the rule table.
type Scorer struct {
	rules     Rules
	knownMaps map[string]struct{}
}

func NewScorer(rules Rules) *Scorer {
	known := make(map[string]struct{}, len(rules.KnownMaps))
	for _, m := range rules.KnownMaps {
		known[normalizeMap(m)] = struct{}{}
	}
	return &Scorer{rules: rules, knownMaps: known}
}

// Rules returns a copy of the rule table for the stats surface.
func (s *Scorer) Rules() Rules {
	return s.rules
}

// Evaluate derives the six confidence factors from a single match. Missing
// optional inputs make the corresponding factor false, never an error.
func (s *Scorer) Evaluate(m domain.ValidatedMatch) domain.ConfidenceFactors {
	return domain.ConfidenceFactors{
		ValidIDs:           s.validIDs(m),
		BothCommunity:      s.bothCommunity(m.Participants),
		BothActive:         s.bothActive(m.PlayedAt, m.Participants),
		ReasonableDuration: s.reasonableDuration(m.DurationSeconds),
		SimilarSkill:       s.similarSkill(m.Participants),
		KnownMap:           s.knownMap(m.MapName),
	}
}

// Points sums the rule table over the true factors.
func (s *Scorer) Points(f domain.ConfidenceFactors) int {
	points := 0
	if f.ValidIDs {
		points += s.rules.ValidIDsPoints
	}
	if f.BothCommunity {
		points += s.rules.BothCommunityPoints
	}
	if f.BothActive {
		points += s.rules.BothActivePoints
	}
	if f.ReasonableDuration {
		points += s.rules.ReasonableDurationPoints
	}
	if f.SimilarSkill {
		points += s.rules.SimilarSkillPoints
	}
	if f.KnownMap {
		points += s.rules.KnownMapPoints
	}
	return points
}

// TierFor maps a point total onto the ordered tiers; thresholds are
// inclusive, so a total equal to MediumThreshold is medium.
func (s *Scorer) TierFor(points int) domain.Confidence {
	switch {
	case points >= s.rules.HighThreshold:
		return domain.ConfidenceHigh
	case points >= s.rules.MediumThreshold:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func (s *Scorer) Score(m domain.ValidatedMatch) (domain.Confidence, domain.ConfidenceFactors) {
	factors := s.Evaluate(m)
	return s.TierFor(s.Points(factors)), factors
}

type Scored struct {
	Match      domain.ValidatedMatch
	Confidence domain.Confidence
	Factors    domain.ConfidenceFactors
}

// ScoreAll scores each match independently; order has no effect on the
// per-match outcome.
func (s *Scorer) ScoreAll(matches []domain.ValidatedMatch) []Scored {
	scored := make([]Scored, len(matches))
	for i, m := range matches {
		confidence, factors := s.Score(m)
		scored[i] = Scored{Match: m, Confidence: confidence, Factors: factors}
	}
	return scored
}

func (s *Scorer) validIDs(m domain.ValidatedMatch) bool {
	if m.MatchID <= 0 || len(m.Participants) == 0 {
		return false
	}
	for _, p := range m.Participants {
		if p.CharacterID <= 0 {
			return false
		}
	}
	return true
}

func (s *Scorer) bothCommunity(ps []domain.Participant) bool {
	if len(ps) < 2 {
		return false
	}
	for _, p := range ps {
		if !p.IsCommunityPlayer {
			return false
		}
	}
	return true
}

func (s *Scorer) bothActive(playedAt time.Time, ps []domain.Participant) bool {
	if len(ps) < 2 {
		return false
	}
	for _, p := range ps {
		if p.LastActiveAt == nil {
			return false
		}
		if playedAt.Sub(*p.LastActiveAt) > s.rules.ActivityWindow {
			return false
		}
	}
	return true
}

func (s *Scorer) reasonableDuration(seconds *int64) bool {
	if seconds == nil {
		return false
	}
	return *seconds >= s.rules.MinDurationSeconds && *seconds <= s.rules.MaxDurationSeconds
}

func (s *Scorer) similarSkill(ps []domain.Participant) bool {
	if len(ps) < 2 {
		return false
	}
	min, max := 0.0, 0.0
	for i, p := range ps {
		if p.Rating == nil {
			return false
		}
		r := *p.Rating
		if i == 0 || r < min {
			min = r
		}
		if i == 0 || r > max {
			max = r
		}
	}
	return max-min <= s.rules.MaxRatingGap
}

func (s *Scorer) knownMap(name string) bool {
	_, ok := s.knownMaps[normalizeMap(name)]
	return ok
}

func normalizeMap(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
