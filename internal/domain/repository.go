package domain

import (
	"context"
	"time"
)

// AssetRepository reads reference assets and records their usage.
type AssetRepository interface {
	ListActive(ctx context.Context) ([]Asset, error)
	GetByID(ctx context.Context, id string) (*Asset, error)
	// IncrementUsage adds one to the usage counter in a single atomic update.
	IncrementUsage(ctx context.Context, id string, usedAt time.Time) error
	Upsert(ctx context.Context, asset *Asset) error
}

// ScenarioRepository reads the scenario library.
type ScenarioRepository interface {
	ListActive(ctx context.Context) ([]Scenario, error)
	Upsert(ctx context.Context, scenario *Scenario) error
}

// HistoryRepository is the append-only production history.
type HistoryRepository interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
	Append(ctx context.Context, entry *HistoryEntry) error
}

// SlotRepository persists slots. Every write issued by a pipeline run is
// guarded so it never overwrites a slot that was cancelled externally.
type SlotRepository interface {
	// CreateIfAbsent inserts the slot unless its idempotency key exists; the
	// boolean reports whether a row was created.
	CreateIfAbsent(ctx context.Context, slot *Slot) (bool, error)
	GetByID(ctx context.Context, id string) (*Slot, error)
	// LatestForRuleDate returns the newest slot for rule on date, or ErrNotFound.
	LatestForRuleDate(ctx context.Context, ruleID, date string) (*Slot, error)
	List(ctx context.Context, filter SlotFilter) ([]Slot, error)
	// Begin moves a pending slot to generating; ErrAlreadyRunning when it is not pending.
	Begin(ctx context.Context, id, runID string, at time.Time) (*Slot, error)
	Status(ctx context.Context, id string) (SlotStatus, error)
	UpdateProgress(ctx context.Context, id string, progress SlotProgress) error
	Complete(ctx context.Context, id string, completion SlotCompletion) error
	Fail(ctx context.Context, id string, failure SlotFailure) error
	// SaveResult stores the partial result without touching status.
	SaveResult(ctx context.Context, id string, result *PipelineResult, totalCost float64) error
	SetStatus(ctx context.Context, id string, from, to SlotStatus, errMsg string) error
	// FailStuck marks active slots not updated since cutoff as failed and returns their ids.
	FailStuck(ctx context.Context, cutoff time.Time, errMsg string) ([]string, error)
}

// RuleRepository reads time-window rules.
type RuleRepository interface {
	ListActive(ctx context.Context) ([]TimeWindowRule, error)
	GetByID(ctx context.Context, id string) (*TimeWindowRule, error)
	Upsert(ctx context.Context, rule *TimeWindowRule) error
}

// ConfigRepository stores JSON configuration documents by key.
type ConfigRepository interface {
	// Get returns the raw document or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// AuditRepository is the append-only selection audit trail.
type AuditRepository interface {
	Append(ctx context.Context, events []AuditEvent) error
	ListByRun(ctx context.Context, runID string) ([]AuditEvent, error)
}

const (
	ConfigKeyVariation = "variation"
	ConfigKeySelection = "selection"
)
