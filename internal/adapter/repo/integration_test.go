//go:build integration
// +build integration

package repo_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/dbmigrate"
	"contentgen/internal/domain"
	"contentgen/internal/infra"
)

func setupTestDB(t *testing.T) *infra.SQLRunner {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "contentgen_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/contentgen_test?sslmode=disable", host, port.Port())

	var db interface{ Close() error }
	for i := 0; i < 30; i++ {
		sqlDB, openErr := dbmigrate.Open(dsn)
		if openErr == nil {
			if _, err = dbmigrate.Run(sqlDB, filepath.Join("..", "..", "..", "migrations"), dbmigrate.CommandUp, 0); err != nil {
				t.Fatalf("migrate up: %v", err)
			}
			db = sqlDB
			break
		}
		err = openErr
		time.Sleep(time.Second)
	}
	if db == nil {
		t.Fatalf("connect database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return infra.NewSQLRunner(pool, zerolog.Nop())
}

func TestIncrementUsageIsAtomicUnderConcurrency(t *testing.T) {
	sql := setupTestDB(t)
	ctx := context.Background()
	assets := repo.NewAssetRepository(sql)

	if err := assets.Upsert(ctx, &domain.Asset{ID: "plate-white", Category: "plate", Name: "White plate", Active: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- assets.IncrementUsage(ctx, "plate-white", time.Now())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	got, err := assets.GetByID(ctx, "plate-white")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UsageCount != 10 {
		t.Fatalf("UsageCount = %d, want 10", got.UsageCount)
	}
	if got.LastUsedAt == nil {
		t.Fatalf("LastUsedAt not recorded")
	}
}

func TestSlotLifecycleGuards(t *testing.T) {
	sql := setupTestDB(t)
	ctx := context.Background()
	slots := repo.NewSlotRepository(sql)

	slot := &domain.Slot{
		ID:             uuid.NewString(),
		RuleID:         "lunch",
		TargetDate:     "2026-10-14",
		TargetTime:     time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
		Trigger:        domain.TriggerScheduled,
		IdempotencyKey: "lunch:2026-10-14",
	}
	created, err := slots.CreateIfAbsent(ctx, slot)
	if err != nil || !created {
		t.Fatalf("CreateIfAbsent = %v, %v; want true, nil", created, err)
	}
	dup := *slot
	dup.ID = uuid.NewString()
	created, err = slots.CreateIfAbsent(ctx, &dup)
	if err != nil || created {
		t.Fatalf("duplicate CreateIfAbsent = %v, %v; want false, nil", created, err)
	}

	latest, err := slots.LatestForRuleDate(ctx, "lunch", "2026-10-14")
	if err != nil {
		t.Fatalf("LatestForRuleDate: %v", err)
	}
	if latest.ID != slot.ID || latest.TargetDate != "2026-10-14" {
		t.Fatalf("latest = %s/%s, want %s/2026-10-14", latest.ID, latest.TargetDate, slot.ID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		running int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := slots.Begin(ctx, slot.ID, uuid.NewString(), time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, domain.ErrAlreadyRunning):
				running++
			default:
				t.Errorf("Begin: %v", err)
			}
		}()
	}
	wg.Wait()
	if started != 1 || running != 4 {
		t.Fatalf("Begin started=%d running=%d, want 1 and 4", started, running)
	}

	result := &domain.PipelineResult{RunID: "r1", Stage: domain.StageScenarioSelection}
	if err := slots.UpdateProgress(ctx, slot.ID, domain.SlotProgress{Stage: domain.StageScenarioSelection, Result: result}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := slots.SetStatus(ctx, slot.ID, domain.SlotStatusGenerating, domain.SlotStatusCancelled, "cancelled by operator"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	err = slots.UpdateProgress(ctx, slot.ID, domain.SlotProgress{Stage: domain.StagePromptOptimization, Result: result})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("UpdateProgress after cancel = %v, want ErrConflict", err)
	}
	err = slots.Complete(ctx, slot.ID, domain.SlotCompletion{Result: result})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Complete after cancel = %v, want ErrConflict", err)
	}

	got, err := slots.GetByID(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.SlotStatusCancelled || got.Stage != domain.StageScenarioSelection {
		t.Fatalf("slot = %s/%s, want cancelled/scenario_selection", got.Status, got.Stage)
	}
}

func TestHistoryRecentIsNewestFirst(t *testing.T) {
	sql := setupTestDB(t)
	ctx := context.Background()
	history := repo.NewHistoryRepository(sql)

	base := time.Date(2026, 10, 10, 9, 0, 0, 0, time.UTC)
	for i, scenario := range []string{"s-a", "s-b", "s-c"} {
		entry := &domain.HistoryEntry{
			ID:         uuid.NewString(),
			SlotID:     uuid.NewString(),
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			ScenarioID: scenario,
		}
		if err := history.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := history.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || entries[0].ScenarioID != "s-c" || entries[1].ScenarioID != "s-b" {
		t.Fatalf("Recent = %+v, want s-c then s-b", entries)
	}
}
