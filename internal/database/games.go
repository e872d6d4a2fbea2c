// internal/database/games.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/games"
)

// FlagSource reads game-type availability flags from the game_types table.
// It satisfies games.MetadataSource; a nil pool or query failure surfaces as
// an error so the registry degrades to its built-in flags.
type FlagSource struct{}

func (FlagSource) FetchGameFlags(ctx context.Context) (map[string]games.Flags, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not connected")
	}
	rows, err := DB.Query(ctx, `SELECT game_type, enabled, coming_soon FROM game_types`)
	if err != nil {
		return nil, fmt.Errorf("querying game_types: %w", err)
	}
	defer rows.Close()

	out := make(map[string]games.Flags)
	for rows.Next() {
		var gameType string
		var f games.Flags
		if err := rows.Scan(&gameType, &f.Enabled, &f.ComingSoon); err != nil {
			return nil, fmt.Errorf("scanning game_types row: %w", err)
		}
		out[gameType] = f
	}
	return out, rows.Err()
}

// GameResult is a finished game's outcome, persisted fire-and-forget.
type GameResult struct {
	RoomID     uuid.UUID
	GameType   string
	WinnerIDs  []uuid.UUID
	Scores     map[string]int
	Tie        bool
	FinishedAt time.Time
}

// SaveGameResult upserts the result row for a finished game. A no-op while
// the pool is not connected.
func SaveGameResult(ctx context.Context, res GameResult) error {
	if DB == nil {
		return nil
	}
	winners := make([]string, 0, len(res.WinnerIDs))
	for _, id := range res.WinnerIDs {
		winners = append(winners, id.String())
	}
	q := `
		INSERT INTO game_results (room_id, game_type, winner_ids, scores, tie, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, finished_at) DO NOTHING
	`
	if _, err := DB.Exec(ctx, q, res.RoomID, res.GameType, winners, res.Scores, res.Tie, res.FinishedAt); err != nil {
		return fmt.Errorf("inserting game result: %w", err)
	}
	return nil
}
