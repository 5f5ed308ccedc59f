package domain

import (
	"strconv"
	"time"
)

// DateKeyFormat is the calendar-day partition key layout (UTC).
const DateKeyFormat = "2006-01-02"

// MatchSchemaVersion is stamped on every processed match payload.
const MatchSchemaVersion = "1.0"

type Race string

const (
	RaceHuman    Race = "human"
	RaceOrc      Race = "orc"
	RaceUndead   Race = "undead"
	RaceNightElf Race = "nightelf"
	RaceRandom   Race = "random"
)

// Participant is a match participant as resolved by validation.
// Immutable once attached to a match.
type Participant struct {
	CharacterID       int64      `json:"characterId"`
	BattleTag         string     `json:"battleTag"`
	Name              string     `json:"name"`
	Rating            *float64   `json:"rating,omitempty"`
	Race              Race       `json:"race,omitempty"`
	IsCommunityPlayer bool       `json:"isCommunityPlayer"`
	LastActiveAt      *time.Time `json:"lastActiveAt,omitempty"`
}

// ConfidenceFactors are the six independent signals the scorer derives
// from a single match. No history involved.
type ConfidenceFactors struct {
	ValidIDs           bool `json:"validIds"`
	BothCommunity      bool `json:"bothCommunity"`
	BothActive         bool `json:"bothActive"`
	ReasonableDuration bool `json:"reasonableDuration"`
	SimilarSkill       bool `json:"similarSkill"`
	KnownMap           bool `json:"knownMap"`
}

// ValidatedMatch is a discovered match whose participants resolved against
// the community roster, not yet scored.
type ValidatedMatch struct {
	MatchID         int64         `json:"matchId"`
	PlayedAt        time.Time     `json:"playedAt"`
	MapName         string        `json:"mapName"`
	DurationSeconds *int64        `json:"durationSeconds,omitempty"`
	Participants    []Participant `json:"participants"`
	Result          MatchResult   `json:"matchResult"`
}

// DateKey derives the calendar-day partition key from the match timestamp.
func (m ValidatedMatch) DateKey() string {
	return m.PlayedAt.UTC().Format(DateKeyFormat)
}

// ProcessedMatch is a validated, scored, storage-ready match. Identified by
// (MatchID, DateKey): the same numeric id on two dates is two matches.
type ProcessedMatch struct {
	MatchID         int64             `json:"matchId"`
	PlayedAt        time.Time         `json:"playedAt"`
	DateKey         string            `json:"dateKey"`
	MapName         string            `json:"mapName"`
	DurationSeconds *int64            `json:"durationSeconds,omitempty"`
	Participants    []Participant     `json:"participants"`
	Result          MatchResult       `json:"matchResult"`
	Confidence      Confidence        `json:"confidence"`
	Factors         ConfidenceFactors `json:"confidenceFactors"`
	ProcessedAt     time.Time         `json:"processedAt"`
	SchemaVersion   string            `json:"schemaVersion"`
}

// IDKey is the match id in the string form used by the dedup index.
func (m ProcessedMatch) IDKey() string {
	return strconv.FormatInt(m.MatchID, 10)
}

// NewProcessedMatch stamps a validated match with its score and metadata.
func NewProcessedMatch(vm ValidatedMatch, confidence Confidence, factors ConfidenceFactors, processedAt time.Time) ProcessedMatch {
	return ProcessedMatch{
		MatchID:         vm.MatchID,
		PlayedAt:        vm.PlayedAt,
		DateKey:         vm.DateKey(),
		MapName:         vm.MapName,
		DurationSeconds: vm.DurationSeconds,
		Participants:    vm.Participants,
		Result:          vm.Result,
		Confidence:      confidence,
		Factors:         factors,
		ProcessedAt:     processedAt,
		SchemaVersion:   MatchSchemaVersion,
	}
}

// ParseDateKey parses a YYYY-MM-DD partition key.
func ParseDateKey(s string) (time.Time, error) {
	return time.Parse(DateKeyFormat, s)
}
