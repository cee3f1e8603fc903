package selection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// trail buffers audit events for one run. Sequence numbers keep increasing
// across flushes so Prepare and Validate share one ordered trail.
type trail struct {
	runID  string
	now    func() time.Time
	seq    int
	events []domain.AuditEvent
}

func (t *trail) add(phase domain.AuditPhase, role domain.Role, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(`{"error":"payload not encodable"}`)
	}
	t.seq++
	t.events = append(t.events, domain.AuditEvent{
		RunID:     t.runID,
		Seq:       t.seq,
		Phase:     phase,
		Role:      role,
		Payload:   raw,
		CreatedAt: t.now(),
	})
}

// flush writes buffered events. Failures are logged; the audit trail never
// blocks a selection.
func (t *trail) flush(ctx context.Context, repo domain.AuditRepository, logger zerolog.Logger) {
	if repo == nil || len(t.events) == 0 {
		t.events = nil
		return
	}
	if err := repo.Append(ctx, t.events); err != nil {
		logger.Warn().Err(err).Str("run_id", t.runID).Int("events", len(t.events)).Msg("audit append failed")
	}
	t.events = nil
}

type prefilterPayload struct {
	Input     int            `json:"input"`
	Remaining int            `json:"remaining"`
	Dropped   map[string]int `json:"dropped,omitempty"`
	Relaxed   bool           `json:"relaxed,omitempty"`
	Anchor    string         `json:"anchor,omitempty"`
}

type scoringPayload struct {
	Scored []ScoredAsset `json:"scored"`
}

type qualifyPayload struct {
	Threshold float64  `json:"threshold"`
	Qualified []string `json:"qualified"`
}

type fallbackPayload struct {
	Policy string `json:"policy"`
	Asset  string `json:"asset"`
	Reason string `json:"reason"`
}

type finalPayload struct {
	Decision   map[domain.Role]string `json:"decision"`
	Selected   map[domain.Role]string `json:"selected"`
	Violations int                    `json:"violations"`
}
