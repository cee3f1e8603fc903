package repo

import (
	"context"
	"fmt"
	"time"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// AuditRepositoryPG appends selection audit events.
type AuditRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAuditRepository(sql infra.SQLExecutor) *AuditRepositoryPG {
	return &AuditRepositoryPG{sql: sql}
}

// Append writes all events in a single insert.
func (r *AuditRepositoryPG) Append(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	var (
		runIDs   = make([]string, len(events))
		seqs     = make([]int32, len(events))
		phases   = make([]string, len(events))
		roles    = make([]string, len(events))
		payloads = make([]string, len(events))
		times    = make([]time.Time, len(events))
	)
	for i, e := range events {
		runIDs[i] = e.RunID
		seqs[i] = int32(e.Seq)
		phases[i] = string(e.Phase)
		roles[i] = string(e.Role)
		payloads[i] = string(e.Payload)
		if len(e.Payload) == 0 {
			payloads[i] = "{}"
		}
		times[i] = e.CreatedAt
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QAuditInsertBatch, runIDs, seqs, phases, roles, payloads, times); err != nil {
		return fmt.Errorf("append audit events: %w", err)
	}
	return nil
}

func (r *AuditRepositoryPG) ListByRun(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QAuditListByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			e     domain.AuditEvent
			phase string
			role  string
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &phase, &role, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Phase = domain.AuditPhase(phase)
		e.Role = domain.Role(role)
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ domain.AuditRepository = (*AuditRepositoryPG)(nil)
