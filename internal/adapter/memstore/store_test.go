package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentgen/internal/domain"
)

func TestIncrementUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	store := New()
	assets := store.Assets()
	if err := assets.Upsert(ctx, &domain.Asset{ID: "cup-1", Category: "cup", Active: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = assets.IncrementUsage(ctx, "cup-1", time.Now())
		}()
	}
	wg.Wait()

	got, _ := assets.GetByID(ctx, "cup-1")
	if got.UsageCount != 10 {
		t.Fatalf("UsageCount = %d, want 10", got.UsageCount)
	}
	if err := assets.IncrementUsage(ctx, "ghost", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("IncrementUsage(ghost) = %v, want ErrNotFound", err)
	}
}

func TestListActiveKeepsInsertionOrderWithinCategory(t *testing.T) {
	ctx := context.Background()
	assets := New().Assets()
	for _, a := range []domain.Asset{
		{ID: "z-plate", Category: "plate", Active: true},
		{ID: "a-plate", Category: "plate", Active: true},
		{ID: "cup", Category: "cup", Active: true},
		{ID: "off", Category: "plate", Active: false},
	} {
		a := a
		_ = assets.Upsert(ctx, &a)
	}
	list, _ := assets.ListActive(ctx)
	var ids []string
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	want := []string{"cup", "z-plate", "a-plate"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestHistoryRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	history := New().History()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	// append out of order; Recent still sorts by creation time
	for _, e := range []domain.HistoryEntry{
		{ID: "b", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "a", CreatedAt: base.Add(time.Hour)},
		{ID: "c", CreatedAt: base.Add(3 * time.Hour)},
	} {
		e := e
		_ = history.Append(ctx, &e)
	}
	got, _ := history.Recent(ctx, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("Recent = %+v, want c, b", got)
	}
	if none, _ := history.Recent(ctx, 0); len(none) != 0 {
		t.Fatalf("Recent(0) = %d entries, want 0", len(none))
	}
}

func TestSlotGuards(t *testing.T) {
	ctx := context.Background()
	slots := New().Slots()
	slot := &domain.Slot{ID: "s1", RuleID: "r", TargetDate: "2026-10-14", IdempotencyKey: "r:2026-10-14"}
	if created, _ := slots.CreateIfAbsent(ctx, slot); !created {
		t.Fatalf("first CreateIfAbsent did not create")
	}
	if created, _ := slots.CreateIfAbsent(ctx, &domain.Slot{ID: "s2", IdempotencyKey: "r:2026-10-14"}); created {
		t.Fatalf("duplicate key created a slot")
	}

	if _, err := slots.Begin(ctx, "s1", "run", time.Now()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := slots.Begin(ctx, "s1", "run2", time.Now()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("second Begin = %v, want ErrAlreadyRunning", err)
	}
	if err := slots.SetStatus(ctx, "s1", domain.SlotStatusGenerating, domain.SlotStatusCancelled, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := slots.UpdateProgress(ctx, "s1", domain.SlotProgress{Stage: domain.StageImageGeneration}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("UpdateProgress after cancel = %v, want ErrConflict", err)
	}
	if err := slots.Complete(ctx, "s1", domain.SlotCompletion{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Complete after cancel = %v, want ErrConflict", err)
	}
	if err := slots.SaveResult(ctx, "s1", &domain.PipelineResult{TotalCost: 1.5}, 1.5); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	got, _ := slots.GetByID(ctx, "s1")
	if got.Status != domain.SlotStatusCancelled || got.TotalCost != 1.5 || got.FinishedAt == nil {
		t.Fatalf("slot = %+v", got)
	}
}

func TestFailStuck(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	store := New().WithClock(func() time.Time { return now })
	slots := store.Slots()
	for _, id := range []string{"old", "fresh"} {
		_, _ = slots.CreateIfAbsent(ctx, &domain.Slot{ID: id, IdempotencyKey: id})
		_, _ = slots.Begin(ctx, id, "run-"+id, now)
	}
	slots.Touch("old", now.Add(-time.Hour))

	ids, err := slots.FailStuck(ctx, now.Add(-30*time.Minute), "stuck")
	if err != nil {
		t.Fatalf("FailStuck: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old" {
		t.Fatalf("ids = %v, want [old]", ids)
	}
	fresh, _ := slots.GetByID(ctx, "fresh")
	if fresh.Status != domain.SlotStatusGenerating {
		t.Fatalf("fresh status = %s, want generating", fresh.Status)
	}
}

func TestAuditRejectsDuplicateSeq(t *testing.T) {
	ctx := context.Background()
	audit := New().Audit()
	if err := audit.Append(ctx, []domain.AuditEvent{{RunID: "r", Seq: 2}, {RunID: "r", Seq: 1}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := audit.Append(ctx, []domain.AuditEvent{{RunID: "r", Seq: 1}}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate Append = %v, want ErrConflict", err)
	}
	events, _ := audit.ListByRun(ctx, "r")
	if len(events) != 2 || events[0].Seq != 1 {
		t.Fatalf("events = %+v", events)
	}
}
