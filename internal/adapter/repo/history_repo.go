package repo

import (
	"context"
	"fmt"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// HistoryRepositoryPG implements domain.HistoryRepository. Entries are only
// ever inserted.
type HistoryRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewHistoryRepository(sql infra.SQLExecutor) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{sql: sql}
}

func (r *HistoryRepositoryPG) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QHistoryRecent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.SlotID,
			&e.CreatedAt,
			&e.ScenarioID,
			&e.CompositionID,
			&e.TableID,
			&e.HandStyleID,
			&e.ProductID,
			&e.PlateID,
			&e.CupID,
			&e.SpecialElementIncluded,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *HistoryRepositoryPG) Append(ctx context.Context, e *domain.HistoryEntry) error {
	_, err := r.sql.Exec(ctx, sqlinline.QHistoryInsert,
		e.ID,
		e.SlotID,
		e.CreatedAt,
		e.ScenarioID,
		e.CompositionID,
		e.TableID,
		e.HandStyleID,
		e.ProductID,
		e.PlateID,
		e.CupID,
		e.SpecialElementIncluded,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
