package domain

import (
	"encoding/json"
	"time"
)

// AuditPhase names a step of the selection engine recorded in the audit trail.
type AuditPhase string

const (
	AuditPrefilter  AuditPhase = "prefilter"
	AuditScoring    AuditPhase = "scoring"
	AuditQualify    AuditPhase = "qualify"
	AuditFallback   AuditPhase = "fallback"
	AuditValidation AuditPhase = "validation"
	AuditFinal      AuditPhase = "final"
)

// AuditEvent is one append-only entry of a run's selection audit trail.
type AuditEvent struct {
	RunID     string          `json:"run_id"`
	Seq       int             `json:"seq"`
	Phase     AuditPhase      `json:"phase"`
	Role      Role            `json:"role,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
