package model

import "time"

const (
	RoleParticipant = "participant"
	RoleAdmin       = "admin"
)

type Team struct {
	ID        string    `json:"_id"`
	Name      string    `json:"team_name"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"`
}
