package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"contentgen/internal/domain"
	"contentgen/internal/infra/pgxtest"
	"contentgen/internal/sqlinline"
)

func slotRecord(id string, status domain.SlotStatus, result []byte) []any {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	return []any{
		id, "lunch", "2026-10-14", now, "scheduled", "lunch:2026-10-14",
		string(status), "asset_selection", "", result, "", 0.0, "",
		now, now, nil, nil,
	}
}

func TestSlotCreateIfAbsentReportsDuplicate(t *testing.T) {
	exec := &pgxtest.Executor{
		QueryRowFunc: func(query string, args []any) pgx.Row { return pgxtest.Row{} },
	}
	repo := NewSlotRepository(exec)

	created, err := repo.CreateIfAbsent(context.Background(), &domain.Slot{ID: "s1", RuleID: "lunch", IdempotencyKey: "lunch:2026-10-14"})
	if err != nil {
		t.Fatalf("CreateIfAbsent error: %v", err)
	}
	if created {
		t.Fatalf("created = true, want false on conflict")
	}
	calls := exec.Calls()
	if len(calls) != 1 || calls[0].Query != sqlinline.QSlotCreateIfAbsent {
		t.Fatalf("calls = %#v", calls)
	}
	if key, _ := calls[0].Args[5].(string); key != "lunch:2026-10-14" {
		t.Fatalf("idempotency key arg = %v", calls[0].Args[5])
	}
}

func TestSlotBeginAlreadyRunning(t *testing.T) {
	exec := &pgxtest.Executor{
		QueryRowFunc: func(query string, args []any) pgx.Row {
			if query == sqlinline.QSlotStatus {
				return pgxtest.Row{Values: []any{"generating"}}
			}
			return pgxtest.Row{}
		},
	}
	repo := NewSlotRepository(exec)

	_, err := repo.Begin(context.Background(), "s1", "run-1", time.Now())
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("Begin error = %v, want ErrAlreadyRunning", err)
	}
}

func TestSlotBeginMissingSlot(t *testing.T) {
	repo := NewSlotRepository(&pgxtest.Executor{})

	_, err := repo.Begin(context.Background(), "missing", "run-1", time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Begin error = %v, want ErrNotFound", err)
	}
}

func TestSlotGetByIDDecodesResult(t *testing.T) {
	result, _ := json.Marshal(domain.PipelineResult{RunID: "run-1", TotalCost: 0.42, Stage: domain.StageQualityControl})
	exec := &pgxtest.Executor{
		QueryRowFunc: func(query string, args []any) pgx.Row {
			return pgxtest.Row{Values: slotRecord("s1", domain.SlotStatusGenerating, result)}
		},
	}
	repo := NewSlotRepository(exec)

	slot, err := repo.GetByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if slot.Status != domain.SlotStatusGenerating {
		t.Fatalf("Status = %q, want generating", slot.Status)
	}
	if slot.Result == nil || slot.Result.RunID != "run-1" || slot.Result.TotalCost != 0.42 {
		t.Fatalf("Result = %#v", slot.Result)
	}
}

func TestSlotUpdateProgressConflict(t *testing.T) {
	exec := &pgxtest.Executor{
		ExecFunc: func(query string, args []any) (pgconn.CommandTag, error) { return pgxtest.Tag(0), nil },
	}
	repo := NewSlotRepository(exec)

	err := repo.UpdateProgress(context.Background(), "s1", domain.SlotProgress{Stage: domain.StageImageGeneration, Result: &domain.PipelineResult{}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("UpdateProgress error = %v, want ErrConflict", err)
	}
}

func TestSlotFailStuckReturnsIDs(t *testing.T) {
	exec := &pgxtest.Executor{
		QueryFunc: func(query string, args []any) (pgx.Rows, error) {
			return &pgxtest.Rows{Records: [][]any{{"s1"}, {"s2"}}}, nil
		},
	}
	repo := NewSlotRepository(exec)

	ids, err := repo.FailStuck(context.Background(), time.Now(), "stuck")
	if err != nil {
		t.Fatalf("FailStuck error: %v", err)
	}
	if strings.Join(ids, ",") != "s1,s2" {
		t.Fatalf("ids = %v, want [s1 s2]", ids)
	}
}

func TestAssetIncrementUsageIsSingleStatement(t *testing.T) {
	exec := &pgxtest.Executor{}
	repo := NewAssetRepository(exec)

	if err := repo.IncrementUsage(context.Background(), "plate-1", time.Now()); err != nil {
		t.Fatalf("IncrementUsage error: %v", err)
	}
	calls := exec.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Query, "usage_count = usage_count + 1") {
		t.Fatalf("query does not increment in place: %s", calls[0].Query)
	}
}

func TestAssetIncrementUsageUnknownAsset(t *testing.T) {
	exec := &pgxtest.Executor{
		ExecFunc: func(query string, args []any) (pgconn.CommandTag, error) { return pgxtest.Tag(0), nil },
	}
	repo := NewAssetRepository(exec)

	if err := repo.IncrementUsage(context.Background(), "ghost", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("IncrementUsage error = %v, want ErrNotFound", err)
	}
}

func TestAssetListActive(t *testing.T) {
	now := time.Now()
	noPlate := false
	exec := &pgxtest.Executor{
		QueryFunc: func(query string, args []any) (pgx.Rows, error) {
			return &pgxtest.Rows{Records: [][]any{
				{"p1", "bakery", "croissant", "Croissant", []string{"butter"}, []string{"warm"}, []string{"morning"},
					"https://cdn/p1.jpg", "p1.jpg", 3, &now, true, "hand", &noPlate, now, now},
			}}, nil
		},
	}
	repo := NewAssetRepository(exec)

	assets, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(assets))
	}
	a := assets[0]
	if a.EatingMethod != domain.EatingMethodHand || !a.ForbidsPlate() || a.UsageCount != 3 {
		t.Fatalf("asset = %#v", a)
	}
}

func TestRuleScanConvertsWeekdays(t *testing.T) {
	now := time.Now()
	exec := &pgxtest.Executor{
		QueryRowFunc: func(query string, args []any) pgx.Row {
			return pgxtest.Row{Values: []any{"lunch", "Lunch", 12, 3, []int32{1, 3, 9}, "lunch", "bright", []string{"fresh"}, true, now, now}}
		},
	}
	repo := NewRuleRepository(exec)

	rule, err := repo.GetByID(context.Background(), "lunch")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if len(rule.Days) != 2 || rule.Days[0] != time.Monday || rule.Days[1] != time.Wednesday {
		t.Fatalf("Days = %v, want [Monday Wednesday]", rule.Days)
	}
}

func TestConfigGetNotFound(t *testing.T) {
	repo := NewConfigRepository(&pgxtest.Executor{})

	if _, err := repo.Get(context.Background(), domain.ConfigKeySelection); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestAuditAppendBatchesEvents(t *testing.T) {
	exec := &pgxtest.Executor{}
	repo := NewAuditRepository(exec)

	events := []domain.AuditEvent{
		{RunID: "r1", Seq: 1, Phase: domain.AuditPrefilter, Role: domain.RolePlate, Payload: json.RawMessage(`{"in":3}`)},
		{RunID: "r1", Seq: 2, Phase: domain.AuditFinal},
	}
	if err := repo.Append(context.Background(), events); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	calls := exec.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	payloads, ok := calls[0].Args[4].([]string)
	if !ok || len(payloads) != 2 || payloads[1] != "{}" {
		t.Fatalf("payload arg = %#v", calls[0].Args[4])
	}
}
