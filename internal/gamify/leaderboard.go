package gamify

import (
	"context"
	"fmt"
	"sort"

	"bookshare/internal/models"
)

// DefaultLeaderboardLimit is used when a caller passes a non-positive limit.
const DefaultLeaderboardLimit = 10

// GetLeaderboard orders the community's readers by total points descending
// (ties broken by reader id ascending) and attaches ranks 1..N.
func (s *Service) GetLeaderboard(ctx context.Context, community string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	rows, err := s.db.GetLeaderboardRows(ctx, community)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard rows: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Stats.TotalPoints != rows[j].Stats.TotalPoints {
			return rows[i].Stats.TotalPoints > rows[j].Stats.TotalPoints
		}
		return rows[i].Reader.ID < rows[j].Reader.ID
	})

	if limit < len(rows) {
		rows = rows[:limit]
	}

	entries := make([]models.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:   i + 1,
			Reader: row.Reader,
			Stats:  row.Stats,
		}
	}
	return entries, nil
}
