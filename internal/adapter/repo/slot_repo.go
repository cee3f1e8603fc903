package repo

import (
	"context"
	"fmt"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// SlotRepositoryPG implements domain.SlotRepository.
type SlotRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewSlotRepository creates a slot repository backed by PostgreSQL.
func NewSlotRepository(sql infra.SQLExecutor) *SlotRepositoryPG {
	return &SlotRepositoryPG{sql: sql}
}

func (r *SlotRepositoryPG) CreateIfAbsent(ctx context.Context, slot *domain.Slot) (bool, error) {
	created := slot.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var id string
	err := r.sql.QueryRow(ctx, sqlinline.QSlotCreateIfAbsent,
		slot.ID,
		slot.RuleID,
		slot.TargetDate,
		slot.TargetTime,
		string(slot.Trigger),
		slot.IdempotencyKey,
		created,
	).Scan(&id)
	if infra.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create slot: %w", err)
	}
	slot.Status = domain.SlotStatusPending
	slot.Stage = domain.StageAssetSelection
	slot.CreatedAt = created
	slot.UpdatedAt = created
	return true, nil
}

func (r *SlotRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Slot, error) {
	slot, err := scanSlot(r.sql.QueryRow(ctx, sqlinline.QSlotSelectByID, id))
	if err != nil {
		return nil, notFound(err)
	}
	return slot, nil
}

func (r *SlotRepositoryPG) LatestForRuleDate(ctx context.Context, ruleID, date string) (*domain.Slot, error) {
	slot, err := scanSlot(r.sql.QueryRow(ctx, sqlinline.QSlotLatestForRuleDate, ruleID, date))
	if err != nil {
		return nil, notFound(err)
	}
	return slot, nil
}

func (r *SlotRepositoryPG) List(ctx context.Context, filter domain.SlotFilter) ([]domain.Slot, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSlotList, string(filter.Status), filter.RuleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

func (r *SlotRepositoryPG) Begin(ctx context.Context, id, runID string, at time.Time) (*domain.Slot, error) {
	slot, err := scanSlot(r.sql.QueryRow(ctx, sqlinline.QSlotBegin, id, runID, at))
	if err == nil {
		return slot, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("begin slot: %w", err)
	}
	if _, statusErr := r.Status(ctx, id); statusErr != nil {
		return nil, statusErr
	}
	return nil, domain.ErrAlreadyRunning
}

func (r *SlotRepositoryPG) Status(ctx context.Context, id string) (domain.SlotStatus, error) {
	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSlotStatus, id).Scan(&status); err != nil {
		return "", notFound(err)
	}
	return domain.SlotStatus(status), nil
}

func (r *SlotRepositoryPG) UpdateProgress(ctx context.Context, id string, progress domain.SlotProgress) error {
	raw, err := encodeResult(progress.Result)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSlotUpdateProgress, id, string(progress.Stage), raw, progress.TotalCost)
	if err != nil {
		return fmt.Errorf("update slot progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *SlotRepositoryPG) Complete(ctx context.Context, id string, completion domain.SlotCompletion) error {
	raw, err := encodeResult(completion.Result)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSlotComplete, id, raw, completion.TotalCost, completion.ApprovalRef)
	if err != nil {
		return fmt.Errorf("complete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *SlotRepositoryPG) Fail(ctx context.Context, id string, failure domain.SlotFailure) error {
	raw, err := encodeResult(failure.Result)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSlotFail, id, string(failure.Stage), failure.Error, raw, failure.TotalCost)
	if err != nil {
		return fmt.Errorf("fail slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *SlotRepositoryPG) SaveResult(ctx context.Context, id string, result *domain.PipelineResult, totalCost float64) error {
	raw, err := encodeResult(result)
	if err != nil {
		return err
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QSlotSaveResult, id, raw, totalCost); err != nil {
		return fmt.Errorf("save slot result: %w", err)
	}
	return nil
}

func (r *SlotRepositoryPG) SetStatus(ctx context.Context, id string, from, to domain.SlotStatus, errMsg string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSlotSetStatus, id, string(from), string(to), errMsg)
	if err != nil {
		return fmt.Errorf("set slot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *SlotRepositoryPG) FailStuck(ctx context.Context, cutoff time.Time, errMsg string) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSlotFailStuck, cutoff, errMsg)
	if err != nil {
		return nil, fmt.Errorf("fail stuck slots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSlot(row rowScanner) (*domain.Slot, error) {
	var (
		slot    domain.Slot
		trigger string
		status  string
		stage   string
		result  []byte
	)
	if err := row.Scan(
		&slot.ID,
		&slot.RuleID,
		&slot.TargetDate,
		&slot.TargetTime,
		&trigger,
		&slot.IdempotencyKey,
		&status,
		&stage,
		&slot.RunID,
		&result,
		&slot.Error,
		&slot.TotalCost,
		&slot.ApprovalRef,
		&slot.CreatedAt,
		&slot.UpdatedAt,
		&slot.StartedAt,
		&slot.FinishedAt,
	); err != nil {
		return nil, err
	}
	slot.Trigger = domain.TriggerKind(trigger)
	slot.Status = domain.SlotStatus(status)
	slot.Stage = domain.Stage(stage)
	decoded, err := decodeResult(result)
	if err != nil {
		return nil, err
	}
	slot.Result = decoded
	return &slot, nil
}

var _ domain.SlotRepository = (*SlotRepositoryPG)(nil)
