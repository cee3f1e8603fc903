package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/scheduler"
)

func offlineConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		AppEnv:      "test",
		StoreDriver: "memory",
		Pipeline: infra.PipelineConfig{
			MaxAttempts:     3,
			MinQualityScore: 7,
			RunTimeout:      time.Minute,
			AspectRatio:     "4:5",
		},
		Scheduler: infra.SchedulerConfig{
			Timezone:     "UTC",
			StallTimeout: 30 * time.Minute,
			Concurrency:  1,
			QueueSize:    4,
		},
		Diversity: infra.DiversityConfig{GapScenario: 3, GapProduct: 5, SpecialElementFrequency: 5},
		Cache:     infra.CacheConfig{Driver: "memory", TTL: time.Minute},
		Providers: infra.ProviderConfig{Reasoning: "openai", Quality: "gemini"},
		Storage:   infra.StorageConfig{Driver: "filesystem", Dir: t.TempDir(), BaseURL: "http://localhost:8080/static"},
	}
}

func TestBuildOfflineRunsPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)
	c, err := Build(ctx, cfg, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, a := range []domain.Asset{
		{ID: "croissant", Category: "bread", Subtype: "bread", Name: "butter croissant", Active: true},
		{ID: "white-plate", Category: "plate", Subtype: "plate", Active: true},
		{ID: "mug", Category: "cup", Subtype: "cup", Active: true},
		{ID: "oak", Category: "table", Subtype: "table", Active: true},
	} {
		if err := c.Repos.Assets.Upsert(ctx, &a); err != nil {
			t.Fatalf("Upsert asset: %v", err)
		}
	}
	if err := c.Repos.Rules.Upsert(ctx, &domain.TimeWindowRule{ID: "morning", StartHour: 8, BufferHours: 2, TimeSlot: "morning", Active: true}); err != nil {
		t.Fatalf("Upsert rule: %v", err)
	}

	res, err := c.Scheduler.TriggerNow(ctx, "morning", scheduler.TriggerOptions{Wait: true})
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("run error = %q", res.Error)
	}
	slot := res.Slot
	if slot.Status != domain.SlotStatusAwaitingApproval {
		t.Fatalf("Status = %s (%s), want awaiting_approval", slot.Status, slot.Error)
	}
	if slot.Result == nil || slot.Result.Image == nil {
		t.Fatalf("Result = %+v, want an image", slot.Result)
	}
	if !strings.HasPrefix(slot.Result.Image.URL, "http://localhost:8080/static/slots/"+slot.ID+"/") {
		t.Fatalf("image URL = %q, want it under the slot prefix", slot.Result.Image.URL)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.Dir, filepath.FromSlash(slot.Result.Image.StorageKey))); err != nil {
		t.Fatalf("published file: %v", err)
	}
	if slot.TotalCost != 0 {
		t.Fatalf("TotalCost = %v, want 0 for offline providers", slot.TotalCost)
	}
}

func TestHandlerServesHealth(t *testing.T) {
	c, err := Build(context.Background(), offlineConfig(t), zerolog.Nop())
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBuildRejectsUnknownDrivers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*infra.Config)
	}{
		{name: "cache", mutate: func(c *infra.Config) { c.Cache.Driver = "memcached" }},
		{name: "reasoning", mutate: func(c *infra.Config) { c.Providers.Reasoning = "oracle" }},
		{name: "storage", mutate: func(c *infra.Config) { c.Storage.Driver = "ftp" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := offlineConfig(t)
			tc.mutate(cfg)
			c, err := Build(context.Background(), cfg, zerolog.Nop())
			_ = c.Close(context.Background())
			if err == nil {
				t.Fatalf("Build accepted unknown %s driver", tc.name)
			}
		})
	}
}
