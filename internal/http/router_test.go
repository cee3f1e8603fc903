package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/adapter/memstore"
	"contentgen/internal/domain"
	"contentgen/internal/http/handlers"
	"contentgen/internal/scheduler"
	"contentgen/internal/workerpool"
)

type fakeScheduler struct {
	result  *scheduler.TriggerResult
	err     error
	opts    scheduler.TriggerOptions
	ruleID  string
	checked int
}

func (f *fakeScheduler) CheckAndTrigger(ctx context.Context) scheduler.Report {
	f.checked++
	return scheduler.Report{Triggered: 1, SlotIDs: []string{"slot-1"}}
}

func (f *fakeScheduler) TriggerNow(ctx context.Context, ruleID string, opts scheduler.TriggerOptions) (*scheduler.TriggerResult, error) {
	f.ruleID, f.opts = ruleID, opts
	return f.result, f.err
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) { c.n++ }

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	store   *memstore.Store
	sched   *fakeScheduler
	cache   *countingCache
	handler stdhttp.Handler
}

func newFixture(t *testing.T, token string, checks map[string]handlers.Pinger) *fixture {
	t.Helper()
	store := memstore.New().WithClock(func() time.Time { return time.Date(2026, 10, 14, 6, 30, 0, 0, time.UTC) })
	f := &fixture{store: store, sched: &fakeScheduler{}, cache: &countingCache{}}
	app := &handlers.App{
		Scheduler: f.sched,
		Slots:     store.Slots(),
		Caches:    []handlers.Invalidator{f.cache},
		Checks:    checks,
		Logger:    zerolog.Nop(),
	}
	f.handler = NewRouter(app, RouterOptions{Logger: zerolog.Nop(), AdminToken: token})
	return f
}

func (f *fixture) addSlot(t *testing.T, id string, status domain.SlotStatus) {
	t.Helper()
	ctx := context.Background()
	created, err := f.store.Slots().CreateIfAbsent(ctx, &domain.Slot{ID: id, RuleID: "morning", TargetDate: "2026-10-14", IdempotencyKey: "k-" + id})
	if err != nil || !created {
		t.Fatalf("CreateIfAbsent(%s) = %v, %v", id, created, err)
	}
	switch status {
	case domain.SlotStatusPending:
	case domain.SlotStatusAwaitingApproval:
		if _, err := f.store.Slots().Begin(ctx, id, "run-"+id, time.Now()); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := f.store.Slots().Complete(ctx, id, domain.SlotCompletion{Result: &domain.PipelineResult{}}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	default:
		if err := f.store.Slots().SetStatus(ctx, id, domain.SlotStatusPending, status, "set by test"); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
	}
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *stdhttp.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthReportsFailingCheck(t *testing.T) {
	f := newFixture(t, "", map[string]handlers.Pinger{
		"store": pingerFunc(func(context.Context) error { return nil }),
		"cache": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	rec := f.do(t, stdhttp.MethodGet, "/healthz", "")
	if rec.Code != stdhttp.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rec)
	if body.Status != "degraded" || body.Checks["store"] != "ok" || body.Checks["cache"] != "connection refused" {
		t.Fatalf("body = %+v, want degraded with cache failure", body)
	}
}

func TestTriggerPassesOptionsAndMapsStatus(t *testing.T) {
	f := newFixture(t, "", nil)
	f.sched.result = &scheduler.TriggerResult{Slot: &domain.Slot{ID: "slot-1", Status: domain.SlotStatusGenerating}, Started: true}

	rec := f.do(t, stdhttp.MethodPost, "/v1/rules/morning/trigger?force=true", "")
	if rec.Code != stdhttp.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if f.sched.ruleID != "morning" || !f.sched.opts.Force || f.sched.opts.Wait {
		t.Fatalf("TriggerNow called with %s %+v, want morning force", f.sched.ruleID, f.sched.opts)
	}

	f.sched.result.Finished = true
	rec = f.do(t, stdhttp.MethodPost, "/v1/rules/morning/trigger?wait=true", "")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	res := decode[struct {
		Slot struct {
			ID string `json:"id"`
		} `json:"slot"`
		Finished bool `json:"finished"`
	}](t, rec)
	if res.Slot.ID != "slot-1" || !res.Finished {
		t.Fatalf("response = %+v, want finished slot-1", res)
	}
}

func TestTriggerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown rule", err: fmt.Errorf("load rule x: %w", domain.ErrNotFound), want: stdhttp.StatusNotFound},
		{name: "queue full", err: fmt.Errorf("launch slot: %w", workerpool.ErrQueueFull), want: stdhttp.StatusServiceUnavailable},
		{name: "store down", err: errors.New("connection reset"), want: stdhttp.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "", nil)
			f.sched.err = tc.err
			if rec := f.do(t, stdhttp.MethodPost, "/v1/rules/x/trigger", ""); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCancelSlot(t *testing.T) {
	f := newFixture(t, "", nil)
	f.addSlot(t, "s1", domain.SlotStatusPending)

	rec := f.do(t, stdhttp.MethodPost, "/v1/slots/s1/cancel", `{"reason":"wrong product"}`)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	slot := decode[domain.Slot](t, rec)
	if slot.Status != domain.SlotStatusCancelled || slot.Error != "wrong product" {
		t.Fatalf("slot = %s %q, want cancelled with reason", slot.Status, slot.Error)
	}

	if rec := f.do(t, stdhttp.MethodPost, "/v1/slots/s1/cancel", ""); rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("second cancel status = %d, want 422", rec.Code)
	}
	if rec := f.do(t, stdhttp.MethodPost, "/v1/slots/missing/cancel", ""); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing slot status = %d, want 404", rec.Code)
	}
}

func TestOverrideStatus(t *testing.T) {
	f := newFixture(t, "", nil)
	f.addSlot(t, "review", domain.SlotStatusAwaitingApproval)
	f.addSlot(t, "broken", domain.SlotStatusFailed)
	f.addSlot(t, "queued", domain.SlotStatusPending)

	tests := []struct {
		name string
		slot string
		body string
		want int
	}{
		{name: "publish after approval", slot: "review", body: `{"status":"published"}`, want: stdhttp.StatusOK},
		{name: "retry failed slot", slot: "broken", body: `{"status":"PENDING"}`, want: stdhttp.StatusOK},
		{name: "publish without approval", slot: "queued", body: `{"status":"published"}`, want: stdhttp.StatusUnprocessableEntity},
		{name: "unknown status", slot: "queued", body: `{"status":"shipped"}`, want: stdhttp.StatusBadRequest},
		{name: "bad json", slot: "queued", body: `{`, want: stdhttp.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(t, stdhttp.MethodPost, "/v1/slots/"+tc.slot+"/status", tc.body); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	retried, err := f.store.Slots().GetByID(context.Background(), "broken")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if retried.Status != domain.SlotStatusPending || retried.Error != "" {
		t.Fatalf("retried slot = %s %q, want pending with no error", retried.Status, retried.Error)
	}
}

func TestListAndGetSlots(t *testing.T) {
	f := newFixture(t, "", nil)
	f.addSlot(t, "a", domain.SlotStatusPending)
	f.addSlot(t, "b", domain.SlotStatusFailed)

	rec := f.do(t, stdhttp.MethodGet, "/v1/slots?status=failed", "")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	list := decode[struct {
		Slots []domain.Slot `json:"slots"`
	}](t, rec)
	if len(list.Slots) != 1 || list.Slots[0].ID != "b" {
		t.Fatalf("slots = %+v, want only b", list.Slots)
	}

	for _, q := range []string{"?limit=0", "?limit=abc", "?limit=500", "?status=bogus"} {
		if rec := f.do(t, stdhttp.MethodGet, "/v1/slots"+q, ""); rec.Code != stdhttp.StatusBadRequest {
			t.Fatalf("GET /v1/slots%s status = %d, want 400", q, rec.Code)
		}
	}

	rec = f.do(t, stdhttp.MethodGet, "/v1/slots/a", "")
	if got := decode[domain.Slot](t, rec); rec.Code != stdhttp.StatusOK || got.ID != "a" {
		t.Fatalf("GET slot = %d %+v, want a", rec.Code, got)
	}
	if rec := f.do(t, stdhttp.MethodGet, "/v1/slots/zzz", ""); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("GET missing status = %d, want 404", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t, "s3cret", nil)

	if rec := f.do(t, stdhttp.MethodPost, "/v1/scheduler/check", ""); rec.Code != stdhttp.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}
	rec := f.do(t, stdhttp.MethodPost, "/v1/scheduler/check", "", "Authorization", "Bearer s3cret")
	if rec.Code != stdhttp.StatusOK || f.sched.checked != 1 {
		t.Fatalf("status = %d checked = %d, want 200 and one tick", rec.Code, f.sched.checked)
	}
	if report := decode[scheduler.Report](t, rec); report.Triggered != 1 {
		t.Fatalf("report = %+v, want 1 triggered", report)
	}

	rec = f.do(t, stdhttp.MethodPost, "/v1/admin/cache/invalidate", "", "Authorization", "Bearer s3cret")
	if rec.Code != stdhttp.StatusOK || f.cache.n != 1 {
		t.Fatalf("invalidate = %d (%d calls), want 200 and one call", rec.Code, f.cache.n)
	}

	if rec := f.do(t, stdhttp.MethodGet, "/v1/slots", ""); rec.Code != stdhttp.StatusOK {
		t.Fatalf("read route status = %d, want 200 without token", rec.Code)
	}
}
