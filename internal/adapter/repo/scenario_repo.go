package repo

import (
	"context"
	"fmt"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// ScenarioRepositoryPG implements domain.ScenarioRepository.
type ScenarioRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewScenarioRepository(sql infra.SQLExecutor) *ScenarioRepositoryPG {
	return &ScenarioRepositoryPG{sql: sql}
}

func (r *ScenarioRepositoryPG) ListActive(ctx context.Context) ([]domain.Scenario, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QScenarioListActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []domain.Scenario
	for rows.Next() {
		var s domain.Scenario
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.IncludesHands,
			&s.IsInterior,
			&s.AllowedProductTypes,
			&s.CompositionID,
			&s.Description,
			&s.Moods,
			&s.TimeSlots,
			&s.Active,
		); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (r *ScenarioRepositoryPG) Upsert(ctx context.Context, s *domain.Scenario) error {
	_, err := r.sql.Exec(ctx, sqlinline.QScenarioUpsert,
		s.ID,
		s.Name,
		s.IncludesHands,
		s.IsInterior,
		orEmpty(s.AllowedProductTypes),
		s.CompositionID,
		s.Description,
		orEmpty(s.Moods),
		orEmpty(s.TimeSlots),
		s.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert scenario %s: %w", s.ID, err)
	}
	return nil
}

var _ domain.ScenarioRepository = (*ScenarioRepositoryPG)(nil)
