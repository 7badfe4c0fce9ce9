package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
)

// TeamRepository is read-only to the judging core; teams are managed by the
// admin console.
type TeamRepository interface {
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListTeamsByCohort(ctx context.Context, year int) ([]model.Team, error)
	ListCohorts(ctx context.Context) ([]int, error)
}

type pgTeamRepository struct {
	db *sql.DB
}

func NewPgTeamRepository(db *sql.DB) TeamRepository {
	return &pgTeamRepository{db: db}
}

func (r *pgTeamRepository) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	query := `SELECT id, team_name, year, created_at FROM teams WHERE id = $1`
	team := &model.Team{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name, &team.Year, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTeamRepository.GetTeam: %w", err)
	}
	return team, nil
}

func (r *pgTeamRepository) ListTeamsByCohort(ctx context.Context, year int) ([]model.Team, error) {
	query := `SELECT id, team_name, year, created_at FROM teams WHERE year = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListTeamsByCohort: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Year, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgTeamRepository.ListTeamsByCohort scan: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListTeamsByCohort rows: %w", err)
	}
	return teams, nil
}

func (r *pgTeamRepository) ListCohorts(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM teams ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListCohorts: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("pgTeamRepository.ListCohorts scan: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
