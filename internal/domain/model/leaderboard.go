package model

import (
	"sort"
	"time"
)

type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	TeamID      string    `json:"_id"`
	TeamName    string    `json:"team_name"`
	Score       int       `json:"score"`
	SolvedCount int       `json:"solved"`
	Year        int       `json:"year"`
	ReachedAt   time.Time `json:"reached_at"`
}

// RankEntries sorts by score descending, then by who reached that score
// first, then by team id, and assigns 1-based positional ranks.
func RankEntries(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.ReachedAt.Equal(b.ReachedAt) {
			return a.ReachedAt.Before(b.ReachedAt)
		}
		return a.TeamID < b.TeamID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
