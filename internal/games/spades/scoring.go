// internal/games/spades/scoring.go
package spades

import "github.com/agraham02/family-games/internal/games"

// finishRound scores the completed deal, applies bag penalties, and decides
// whether the game is over.
func (s *session) finishRound(res *games.StepResult) {
	s.roundDeltas = make([]int, len(s.teams))

	for ti, team := range s.teams {
		var teamBid, teamTricks, bagTricks int
		delta := 0

		for _, pid := range team {
			b := s.bids[pid]
			if b == nil {
				b = &bid{}
			}
			taken := s.tricksWon[pid]
			if b.Nil {
				bonus := nilBonus
				if b.Blind {
					bonus = blindNilBonus
				}
				if taken == 0 {
					delta += bonus
				} else {
					// A failed nil costs the bonus; its tricks count as
					// bags for the team but not toward the partner's bid.
					delta -= bonus
					bagTricks += taken
				}
				continue
			}
			teamBid += b.Value
			teamTricks += taken
		}

		roundBags := 0
		if teamTricks >= teamBid {
			roundBags = teamTricks - teamBid
			delta += 10*teamBid + roundBags
		} else {
			delta -= 10 * teamBid
		}
		roundBags += bagTricks
		delta += bagTricks

		prevBags := s.bags[ti]
		s.bags[ti] = prevBags + roundBags
		if penalties := s.bags[ti]/bagThreshold - prevBags/bagThreshold; penalties > 0 {
			delta -= penalties * s.st.BagsPenalty
		}

		s.roundDeltas[ti] = delta
		s.scores[ti] += delta
	}

	res.RoundOver = true
	over := s.round >= s.st.RoundLimit
	for _, score := range s.scores {
		if score >= s.st.WinTarget {
			over = true
		}
	}

	summary := map[string]interface{}{
		"round":       s.round,
		"roundScores": s.roundDeltas,
		"scores":      s.scores,
		"bags":        s.bags,
	}

	if !over {
		s.phase = PhaseRoundSummary
		res.Events = append(res.Events, games.Event{Type: EventRoundSummary, Payload: summary})
		return
	}

	s.phase = PhaseGameOver
	res.GameOver = true
	s.decideWinners()
	summary["winnerTeams"] = s.winnerTeams
	summary["tie"] = s.tie
	res.Events = append(res.Events, games.Event{Type: EventRoundSummary, Payload: summary})
	res.Events = append(res.Events, games.Event{Type: EventGameOver, Payload: map[string]interface{}{
		"winnerTeams": s.winnerTeams,
		"tie":         s.tie,
		"scores":      s.scores,
	}})
}

// decideWinners picks the highest cumulative score. Teams sharing the top
// score end the game as a reported tie.
func (s *session) decideWinners() {
	best := s.scores[0]
	for _, sc := range s.scores[1:] {
		if sc > best {
			best = sc
		}
	}
	s.winnerTeams = nil
	for ti, sc := range s.scores {
		if sc == best {
			s.winnerTeams = append(s.winnerTeams, ti)
		}
	}
	s.tie = len(s.winnerTeams) > 1
}
