package domain

import "fmt"

type Outcome string

const (
	OutcomeWinLoss Outcome = "WIN_LOSS"
	OutcomeTie     Outcome = "TIE"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// MatchResult is discriminated by Outcome: WIN_LOSS carries winner/loser,
// TIE and UNKNOWN carry a participants list. Never both.
type MatchResult struct {
	Outcome      Outcome       `json:"outcome"`
	Winner       *Participant  `json:"winner,omitempty"`
	Loser        *Participant  `json:"loser,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

func WinLossResult(winner, loser Participant) MatchResult {
	return MatchResult{Outcome: OutcomeWinLoss, Winner: &winner, Loser: &loser}
}

func TieResult(participants []Participant) MatchResult {
	return MatchResult{Outcome: OutcomeTie, Participants: participants}
}

func UnknownResult(participants []Participant) MatchResult {
	return MatchResult{Outcome: OutcomeUnknown, Participants: participants}
}

// Validate checks that exactly one of winner+loser or participants is
// populated, as determined by the outcome.
func (r MatchResult) Validate() error {
	switch r.Outcome {
	case OutcomeWinLoss:
		if r.Winner == nil || r.Loser == nil {
			return fmt.Errorf("win_loss result requires winner and loser")
		}
		if len(r.Participants) > 0 {
			return fmt.Errorf("win_loss result must not carry a participants list")
		}
	case OutcomeTie, OutcomeUnknown:
		if len(r.Participants) == 0 {
			return fmt.Errorf("%s result requires a participants list", r.Outcome)
		}
		if r.Winner != nil || r.Loser != nil {
			return fmt.Errorf("%s result must not carry winner or loser", r.Outcome)
		}
	default:
		return fmt.Errorf("unknown outcome %q", r.Outcome)
	}
	return nil
}

// All returns every participant regardless of outcome shape.
func (r MatchResult) All() []Participant {
	if r.Outcome == OutcomeWinLoss {
		ps := make([]Participant, 0, 2)
		if r.Winner != nil {
			ps = append(ps, *r.Winner)
		}
		if r.Loser != nil {
			ps = append(ps, *r.Loser)
		}
		return ps
	}
	return r.Participants
}
