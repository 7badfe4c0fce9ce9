package model

import "time"

// TeamScoreState is the authoritative score aggregate of one team. Version
// is bumped on every committed write and guards against lost updates.
type TeamScoreState struct {
	TeamID            string          `json:"team_id"`
	Year              int             `json:"year"`
	CumulativeScore   int             `json:"cumulative_score"`
	SolvedQuestionIDs map[string]bool `json:"solved_question_ids"`
	BestEarned        map[string]int  `json:"best_earned"`
	BestPassed        map[string]int  `json:"best_passed"`
	ScoreReachedAt    time.Time       `json:"score_reached_at"`
	Version           int64           `json:"version"`
}

func NewTeamScoreState(teamID string, year int) *TeamScoreState {
	return &TeamScoreState{
		TeamID:            teamID,
		Year:              year,
		SolvedQuestionIDs: make(map[string]bool),
		BestEarned:        make(map[string]int),
		BestPassed:        make(map[string]int),
	}
}

func (s *TeamScoreState) IsSolved(questionID string) bool {
	return s.SolvedQuestionIDs[questionID]
}

func (s *TeamScoreState) SolvedCount() int {
	return len(s.SolvedQuestionIDs)
}

func (s *TeamScoreState) Clone() *TeamScoreState {
	out := *s
	out.SolvedQuestionIDs = make(map[string]bool, len(s.SolvedQuestionIDs))
	for k, v := range s.SolvedQuestionIDs {
		out.SolvedQuestionIDs[k] = v
	}
	out.BestEarned = make(map[string]int, len(s.BestEarned))
	for k, v := range s.BestEarned {
		out.BestEarned[k] = v
	}
	out.BestPassed = make(map[string]int, len(s.BestPassed))
	for k, v := range s.BestPassed {
		out.BestPassed[k] = v
	}
	return &out
}
