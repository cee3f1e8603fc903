package repo

import (
	"context"
	"fmt"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// RuleRepositoryPG implements domain.RuleRepository.
type RuleRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewRuleRepository(sql infra.SQLExecutor) *RuleRepositoryPG {
	return &RuleRepositoryPG{sql: sql}
}

func (r *RuleRepositoryPG) ListActive(ctx context.Context) ([]domain.TimeWindowRule, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QRuleListActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.TimeWindowRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepositoryPG) GetByID(ctx context.Context, id string) (*domain.TimeWindowRule, error) {
	rule, err := scanRule(r.sql.QueryRow(ctx, sqlinline.QRuleSelectByID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rule, nil
}

func (r *RuleRepositoryPG) Upsert(ctx context.Context, rule *domain.TimeWindowRule) error {
	days := make([]int32, 0, len(rule.Days))
	for _, d := range rule.Days {
		days = append(days, int32(d))
	}
	_, err := r.sql.Exec(ctx, sqlinline.QRuleUpsert,
		rule.ID,
		rule.Name,
		rule.StartHour,
		rule.BufferHours,
		days,
		rule.TimeSlot,
		rule.Mood,
		orEmpty(rule.Tags),
		rule.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

func scanRule(row rowScanner) (*domain.TimeWindowRule, error) {
	var (
		rule domain.TimeWindowRule
		days []int32
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.StartHour,
		&rule.BufferHours,
		&days,
		&rule.TimeSlot,
		&rule.Mood,
		&rule.Tags,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, d := range days {
		if d >= 0 && d <= 6 {
			rule.Days = append(rule.Days, time.Weekday(d))
		}
	}
	return &rule, nil
}

var _ domain.RuleRepository = (*RuleRepositoryPG)(nil)
