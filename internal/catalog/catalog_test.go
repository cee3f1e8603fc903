package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/memstore"
	"contentgen/internal/domain"
)

func TestDefaultCatalogParses(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	snap := NewSnapshot(f, nil, time.Now())
	var interior bool
	for _, sc := range snap.Scenarios() {
		if sc.IsInterior {
			interior = true
		}
	}
	if !interior {
		t.Fatalf("default catalog has no interior scenario")
	}
	if snap.SpecialElement().Name == "" {
		t.Fatalf("default catalog has no special element")
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	_, err := Parse([]byte("routes:\n  bread: spaceship\n"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Parse error = %v, want ErrInvalidInput", err)
	}
}

func TestParseRejectsDanglingComposition(t *testing.T) {
	doc := `
routes: {bread: product}
scenarios:
  - id: a
    composition_id: missing
    active: true
`
	if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "unknown composition") {
		t.Fatalf("Parse error = %v, want unknown composition", err)
	}
}

func TestRouteIsCaseInsensitiveAndExplicitOnMiss(t *testing.T) {
	snap := NewSnapshot(&File{Routes: map[string]domain.Role{"Bread": domain.RoleProduct}}, nil, time.Now())
	if role, ok := snap.Route(" bread "); !ok || role != domain.RoleProduct {
		t.Fatalf("Route(bread) = %q, %v", role, ok)
	}
	if role, ok := snap.Route("sofa"); ok || role != "" {
		t.Fatalf("Route(sofa) = %q, %v; want \"\", false", role, ok)
	}
}

func TestPartitionWarnsOnUnknownCategory(t *testing.T) {
	snap := NewSnapshot(&File{Routes: map[string]domain.Role{"bread": domain.RoleProduct, "plate": domain.RolePlate}}, nil, time.Now())
	pools, warnings := snap.Partition([]domain.Asset{
		{ID: "b1", Category: "bread"},
		{ID: "x1", Category: "sofa"},
		{ID: "p1", Category: "plate"},
		{ID: "b2", Category: "bread"},
	})
	if len(pools[domain.RoleProduct]) != 2 || pools[domain.RoleProduct][1].ID != "b2" {
		t.Fatalf("product pool = %+v", pools[domain.RoleProduct])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "x1") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestLoaderStoreScenariosOverrideFile(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_ = store.Scenarios().Upsert(ctx, &domain.Scenario{ID: "sc-flatlay", Name: "store version", Active: true})
	_ = store.Scenarios().Upsert(ctx, &domain.Scenario{ID: "sc-new", Name: "new", Active: true})

	f, _ := Default()
	snap := NewLoader(f, store.Scenarios(), zerolog.Nop()).Snapshot(ctx)

	sc, ok := snap.Scenario("sc-flatlay")
	if !ok || sc.Name != "store version" {
		t.Fatalf("sc-flatlay = %+v, %v", sc, ok)
	}
	if _, ok := snap.Scenario("sc-new"); !ok {
		t.Fatalf("store-only scenario missing from snapshot")
	}
}

type failingScenarios struct{}

func (failingScenarios) ListActive(context.Context) ([]domain.Scenario, error) {
	return nil, errors.New("connection refused")
}
func (failingScenarios) Upsert(context.Context, *domain.Scenario) error { return nil }

func TestLoaderFallsBackToFileOnStoreError(t *testing.T) {
	f, _ := Default()
	snap := NewLoader(f, failingScenarios{}, zerolog.Nop()).Snapshot(context.Background())
	if len(snap.Scenarios()) != len(f.Scenarios) {
		t.Fatalf("scenarios = %d, want %d", len(snap.Scenarios()), len(f.Scenarios))
	}
	if len(snap.Warnings()) != 1 {
		t.Fatalf("warnings = %v, want one", snap.Warnings())
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	f, _ := Default()
	snap := NewSnapshot(f, nil, time.Now())
	list := snap.Scenarios()
	list[0].Name = "mutated"
	list[0].AllowedProductTypes = append(list[0].AllowedProductTypes, "x")
	again, _ := snap.Scenario(list[0].ID)
	if again.Name == "mutated" {
		t.Fatalf("snapshot scenario mutated through accessor")
	}
}
