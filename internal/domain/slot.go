package domain

import "time"

// SlotStatus enumerates slot lifecycle states.
type SlotStatus string

const (
	SlotStatusPending          SlotStatus = "pending"
	SlotStatusGenerating       SlotStatus = "generating"
	SlotStatusAwaitingApproval SlotStatus = "awaiting_approval"
	SlotStatusPublished        SlotStatus = "published"
	SlotStatusRejected         SlotStatus = "rejected"
	SlotStatusFailed           SlotStatus = "failed"
	SlotStatusCancelled        SlotStatus = "cancelled"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusPending, SlotStatusGenerating, SlotStatusAwaitingApproval,
		SlotStatusPublished, SlotStatusRejected, SlotStatusFailed, SlotStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a pipeline may still be driving the slot.
func (s SlotStatus) IsActive() bool {
	return s == SlotStatusPending || s == SlotStatusGenerating
}

// IsTerminal reports whether the slot has left the automated part of its lifecycle.
func (s SlotStatus) IsTerminal() bool {
	switch s {
	case SlotStatusPublished, SlotStatusRejected, SlotStatusFailed, SlotStatusCancelled:
		return true
	}
	return false
}

// CanOverride reports whether an operator may move a slot from s to next.
func (s SlotStatus) CanOverride(next SlotStatus) bool {
	if !next.Valid() || next == s {
		return false
	}
	switch next {
	case SlotStatusGenerating, SlotStatusAwaitingApproval:
		return false
	case SlotStatusPending:
		return s == SlotStatusFailed || s == SlotStatusCancelled
	case SlotStatusPublished, SlotStatusRejected:
		return s == SlotStatusAwaitingApproval
	case SlotStatusCancelled:
		return s.IsActive() || s == SlotStatusAwaitingApproval
	case SlotStatusFailed:
		return !s.IsTerminal()
	}
	return false
}

// Stage enumerates pipeline states in execution order.
type Stage string

const (
	StageAssetSelection     Stage = "asset_selection"
	StageScenarioSelection  Stage = "scenario_selection"
	StagePromptOptimization Stage = "prompt_optimization"
	StageImageGeneration    Stage = "image_generation"
	StageQualityControl     Stage = "quality_control"
	StageApprovalDispatch   Stage = "approval_dispatch"
	StageTerminal           Stage = "terminal"
)

// TriggerKind records how a slot was created.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// Slot is the unit of work: one content-generation attempt for a time window.
type Slot struct {
	ID             string          `json:"id"`
	RuleID         string          `json:"rule_id"`
	TargetDate     string          `json:"target_date"`
	TargetTime     time.Time       `json:"target_time"`
	Trigger        TriggerKind     `json:"trigger"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         SlotStatus      `json:"status"`
	Stage          Stage           `json:"stage"`
	RunID          string          `json:"run_id,omitempty"`
	Result         *PipelineResult `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	TotalCost      float64         `json:"total_cost"`
	ApprovalRef    string          `json:"approval_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// SlotProgress is the partial update written at each stage boundary.
type SlotProgress struct {
	Stage     Stage
	Result    *PipelineResult
	TotalCost float64
}

// SlotCompletion is written when a run reaches awaiting_approval.
type SlotCompletion struct {
	Result      *PipelineResult
	TotalCost   float64
	ApprovalRef string
}

// SlotFailure is written when a run fails.
type SlotFailure struct {
	Stage     Stage
	Error     string
	Result    *PipelineResult
	TotalCost float64
}

// SlotFilter narrows slot listings.
type SlotFilter struct {
	Status SlotStatus
	RuleID string
	Limit  int
}
