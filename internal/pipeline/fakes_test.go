package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/memstore"
	"contentgen/internal/approval"
	"contentgen/internal/catalog"
	"contentgen/internal/diversity"
	"contentgen/internal/domain"
	"contentgen/internal/providers/image"
	"contentgen/internal/providers/quality"
	"contentgen/internal/providers/reasoning"
	"contentgen/internal/selection"
	"contentgen/internal/storage"
)

const (
	reasoningCost = 0.01
	imageCost     = 0.04
	qualityCost   = 0.002
)

type fakeReasoning struct {
	mu         sync.Mutex
	picks      map[string]string
	selectErr  error
	composeErr error
	onCompose  func()
	selects    []reasoning.SelectRequest
	composes   []reasoning.ComposeRequest
}

func (f *fakeReasoning) Name() string { return "fake-reasoning" }

func (f *fakeReasoning) Select(ctx context.Context, req reasoning.SelectRequest) (reasoning.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects = append(f.selects, req)
	d := reasoning.Decision{Provider: f.Name(), Tokens: 100, Cost: reasoningCost}
	if f.selectErr != nil {
		return d, f.selectErr
	}
	d.Choices = map[string]string{}
	for _, g := range req.Groups {
		if id, ok := f.picks[g.Key]; ok {
			d.Choices[g.Key] = id
		} else if len(g.Options) > 0 {
			d.Choices[g.Key] = g.Options[0].ID
		}
	}
	d.Reasoning = "fake"
	return d, nil
}

func (f *fakeReasoning) Compose(ctx context.Context, req reasoning.ComposeRequest) (reasoning.Composition, error) {
	f.mu.Lock()
	f.composes = append(f.composes, req)
	hook := f.onCompose
	err := f.composeErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	c := reasoning.Composition{Provider: f.Name(), Tokens: 200, Cost: reasoningCost}
	if err != nil {
		return c, err
	}
	c.Prompt = "photo for " + req.Scenario.ID
	return c, nil
}

type fakeImages struct {
	mu    sync.Mutex
	errs  []error
	calls []image.GenerateRequest
}

func (f *fakeImages) Generate(ctx context.Context, req image.GenerateRequest) (image.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	res := image.Result{Provider: "fake-image", Cost: imageCost}
	if len(f.errs) > 0 {
		if err := f.errs[min(n, len(f.errs)-1)]; err != nil {
			return res, err
		}
	}
	res.Data = []byte("fake png bytes")
	res.Format = "image/png"
	res.Width, res.Height = 1024, 1280
	return res, nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeQuality returns verdicts in order and repeats the last one.
type fakeQuality struct {
	mu       sync.Mutex
	verdicts []quality.Verdict
	calls    int
}

func (f *fakeQuality) Evaluate(ctx context.Context, req quality.EvaluateRequest) (quality.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	v := quality.Verdict{Passed: true, Score: 9}
	if len(f.verdicts) > 0 {
		v = f.verdicts[min(f.calls, len(f.verdicts))-1]
	}
	v.Provider = "fake-quality"
	v.Cost = qualityCost
	return v, nil
}

type fakeApproval struct {
	mu       sync.Mutex
	err      error
	requests []approval.Request
}

func (f *fakeApproval) Request(ctx context.Context, req approval.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, req)
	return "msg-" + req.SlotID, nil
}

// failingHistory rejects every append.
type failingHistory struct {
	domain.HistoryRepository
	err error
}

func (f failingHistory) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	return f.err
}

// flakyAssets fails usage increments for the listed assets.
type flakyAssets struct {
	domain.AssetRepository
	fail map[string]bool
}

func (f flakyAssets) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	if f.fail[id] {
		return errors.New("connection reset")
	}
	return f.AssetRepository.IncrementUsage(ctx, id, at)
}

// recordingSlots remembers every persisted stage per slot.
type recordingSlots struct {
	*memstore.SlotRepository
	mu     sync.Mutex
	stages map[string][]domain.Stage
}

func (r *recordingSlots) UpdateProgress(ctx context.Context, id string, progress domain.SlotProgress) error {
	err := r.SlotRepository.UpdateProgress(ctx, id, progress)
	if err == nil {
		r.mu.Lock()
		r.stages[id] = append(r.stages[id], progress.Stage)
		r.mu.Unlock()
	}
	return err
}

func (r *recordingSlots) sequence(id string) []domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Stage(nil), r.stages[id]...)
}

type harness struct {
	store     *memstore.Store
	slots     *recordingSlots
	reasoning *fakeReasoning
	images    *fakeImages
	quality   *fakeQuality
	approval  *fakeApproval
	orch      *Orchestrator
}

var fixedNow = time.Date(2026, 10, 14, 6, 30, 0, 0, time.UTC)

func testCatalog() *catalog.File {
	return &catalog.File{
		Routes: map[string]domain.Role{
			"bread":    domain.RoleProduct,
			"plate":    domain.RolePlate,
			"cup":      domain.RoleCup,
			"table":    domain.RoleTable,
			"interior": domain.RoleInterior,
		},
		HandStyles: []domain.HandStyle{
			{ID: "hand-1", Description: "fingertips pinching"},
			{ID: "hand-2", Description: "open palm"},
		},
		Compositions: []domain.Composition{{ID: "comp-a", Description: "centered"}},
		Scenarios: []domain.Scenario{
			{ID: "sc-table", Name: "table", Description: "on the table", CompositionID: "comp-a", Moods: []string{"calm"}, Active: true},
			{ID: "sc-hands", Name: "hands", Description: "held up", IncludesHands: true, AllowedProductTypes: []string{"bread"}, Active: true},
		},
		SpecialElement: domain.SpecialElement{Name: "mascot", Description: "the bear sticker"},
	}
}

func newHarness(t *testing.T, file *catalog.File, variation domain.VariationConfig, configure ...func(*Options)) *harness {
	t.Helper()
	ctx := context.Background()
	store := memstore.New().WithClock(func() time.Time { return fixedNow })
	h := &harness{
		store:     store,
		slots:     &recordingSlots{SlotRepository: store.Slots(), stages: map[string][]domain.Stage{}},
		reasoning: &fakeReasoning{},
		images:    &fakeImages{},
		quality:   &fakeQuality{},
		approval:  &fakeApproval{},
	}

	for _, a := range []domain.Asset{
		{ID: "croissant", Category: "bread", Subtype: "bread", Name: "butter croissant", ImageURL: "https://assets.test/croissant.jpg", Active: true},
		{ID: "white-plate", Category: "plate", Subtype: "plate", ImageURL: "https://assets.test/plate.jpg", Active: true},
		{ID: "mug", Category: "cup", Subtype: "cup", ImageURL: "https://assets.test/mug.jpg", Active: true},
		{ID: "oak", Category: "table", Subtype: "table", ImageURL: "https://assets.test/oak.jpg", Active: true},
	} {
		if err := store.Assets().Upsert(ctx, &a); err != nil {
			t.Fatalf("Upsert asset: %v", err)
		}
	}
	if err := store.Rules().Upsert(ctx, &domain.TimeWindowRule{ID: "rule-morning", StartHour: 8, BufferHours: 2, TimeSlot: "morning", Mood: "calm", Active: true}); err != nil {
		t.Fatalf("Upsert rule: %v", err)
	}

	logger := zerolog.Nop()
	engine, err := selection.NewEngine(selection.NewConfigSource(store.Configs(), nil, logger), store.Audit(), logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	publisher, err := storage.NewFileStore(t.TempDir(), "https://cdn.test")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	opts := Options{
		Slots:           h.slots,
		Assets:          store.Assets(),
		History:         store.History(),
		Rules:           store.Rules(),
		Catalog:         catalog.NewLoader(file, nil, logger),
		Diversity:       diversity.NewResolver(store.History(), store.Configs(), nil, variation, logger),
		Engine:          engine,
		Reasoning:       h.reasoning,
		Images:          h.images,
		Quality:         h.quality,
		Approval:        h.approval,
		Publisher:       publisher,
		MaxAttempts:     3,
		MinQualityScore: 7,
		Logger:          logger,
		Now:             func() time.Time { return fixedNow },
	}
	for _, fn := range configure {
		fn(&opts)
	}
	h.orch, err = New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) addSlot(t *testing.T, id string) {
	t.Helper()
	created, err := h.store.Slots().CreateIfAbsent(context.Background(), &domain.Slot{
		ID:             id,
		RuleID:         "rule-morning",
		TargetDate:     "2026-10-14",
		TargetTime:     time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
		Trigger:        domain.TriggerManual,
		IdempotencyKey: "rule-morning:2026-10-14:manual:" + id,
	})
	if err != nil || !created {
		t.Fatalf("CreateIfAbsent(%s) = %v, %v", id, created, err)
	}
}

func (h *harness) slot(t *testing.T, id string) *domain.Slot {
	t.Helper()
	s, err := h.store.Slots().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return s
}

func (h *harness) history(t *testing.T) []domain.HistoryEntry {
	t.Helper()
	entries, err := h.store.History().Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	return entries
}

func (h *harness) usage(t *testing.T, id string) int {
	t.Helper()
	a, err := h.store.Assets().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return a.UsageCount
}
