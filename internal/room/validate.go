// internal/room/validate.go
package room

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/games"
)

var (
	playerNameRe = regexp.MustCompile(`^[\pL\pN '-]+$`)
	roomCodeRe   = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// ValidatePlayerName trims and checks a display name: 2-50 characters,
// letters, digits, spaces, hyphens, and apostrophes only.
func ValidatePlayerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 || len(trimmed) > 50 {
		return "", apperr.BadRequest("player name must be 2-50 characters")
	}
	if !playerNameRe.MatchString(trimmed) {
		return "", apperr.BadRequest("player name contains invalid characters")
	}
	return trimmed, nil
}

// ValidateCode checks an already-normalized room code.
func ValidateCode(code string) error {
	if !roomCodeRe.MatchString(code) {
		return apperr.BadRequest("room code must be 6 characters, A-Z or 0-9")
	}
	return nil
}

// ValidateTeamsUnsafe enforces the team validation contract against the
// room's current membership: non-empty list of lists, no duplicate user,
// every assigned id a current member, and, when the game declares a team
// requirement, exactly the declared number of teams. With requireComplete
// (game start), every slot must be filled and every active member assigned.
// Assumes the room lock is held. Validation always runs to completion before
// any team mutation is committed.
func (r *Room) ValidateTeamsUnsafe(teams [][]uuid.UUID, req *games.TeamRequirement, requireComplete bool) error {
	if len(teams) == 0 {
		return apperr.BadRequest("teams must be a non-empty list")
	}

	seen := make(map[uuid.UUID]bool)
	for _, team := range teams {
		for _, pid := range team {
			if pid == uuid.Nil {
				continue // empty slot
			}
			if seen[pid] {
				return apperr.Conflict("user %s assigned to more than one team slot", pid)
			}
			seen[pid] = true
			if r.MemberUnsafe(pid) == nil {
				return apperr.BadRequest("user %s is not a member of this room", pid)
			}
			if r.Spectators[pid] {
				return apperr.BadRequest("spectator %s cannot be assigned to a team", pid)
			}
		}
	}

	if req != nil {
		if len(teams) != req.NumTeams {
			return apperr.BadRequest("game requires exactly %d teams, got %d", req.NumTeams, len(teams))
		}
		for ti, team := range teams {
			if len(team) != req.PlayersPerTeam {
				return apperr.BadRequest("team %d must have %d slots, got %d", ti, req.PlayersPerTeam, len(team))
			}
		}
	}

	if requireComplete {
		for ti, team := range teams {
			for _, pid := range team {
				if pid == uuid.Nil {
					return apperr.BadRequest("team %d has an unfilled slot", ti)
				}
			}
		}
		for _, pid := range r.ActivePlayersUnsafe() {
			if !seen[pid] {
				return apperr.BadRequest("member %s is not assigned to any team", pid)
			}
		}
	}
	return nil
}
