package domain

import "time"

// PipelineResult accumulates everything a run decided and produced.
type PipelineResult struct {
	RunID          string                `json:"run_id"`
	Stage          Stage                 `json:"stage"`
	Assets         map[Role]AssetRef     `json:"assets,omitempty"`
	Scenario       *Scenario             `json:"scenario,omitempty"`
	HandStyle      *HandStyle            `json:"hand_style,omitempty"`
	SpecialElement bool                  `json:"special_element"`
	Prompt         string                `json:"prompt,omitempty"`
	Image          *ImageRef             `json:"image,omitempty"`
	Quality        *QualityResult        `json:"quality,omitempty"`
	Attempts       []AttemptRecord       `json:"attempts,omitempty"`
	ApprovalRef    string                `json:"approval_ref,omitempty"`
	TotalCost      float64               `json:"total_cost"`
	Costs          []CostEntry           `json:"costs,omitempty"`
	StageTimings   map[Stage]StageTiming `json:"stage_timings,omitempty"`
	SkippedStages  []Stage               `json:"skipped_stages,omitempty"`
	Reasoning      map[Stage]string      `json:"reasoning,omitempty"`
	Rules          map[string][]string   `json:"blocked,omitempty"`
	Violations     []Violation           `json:"violations,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`

	// OrphanedApproval marks a failed run whose approval request was already sent.
	OrphanedApproval bool `json:"orphaned_approval,omitempty"`
}

// ImageRef points at the image offered for approval.
type ImageRef struct {
	URL        string `json:"url"`
	StorageKey string `json:"storage_key,omitempty"`
	Format     string `json:"format,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	// SourceAssetID is set when the image is an existing photo rather than a generated one.
	SourceAssetID string `json:"source_asset_id,omitempty"`
}

// QualityResult is the accepted (or last) quality verdict.
type QualityResult struct {
	Passed    bool    `json:"passed"`
	Score     int     `json:"score"`
	Feedback  string  `json:"feedback,omitempty"`
	Synthetic bool    `json:"synthetic,omitempty"`
	Cost      float64 `json:"cost"`
}

// AttemptRecord summarises one generation attempt.
type AttemptRecord struct {
	Number        int     `json:"number"`
	Prompt        string  `json:"prompt"`
	Hint          string  `json:"hint,omitempty"`
	Outcome       string  `json:"outcome"`
	Score         int     `json:"score,omitempty"`
	Error         string  `json:"error,omitempty"`
	SafetyBlocked bool    `json:"safety_blocked,omitempty"`
	Cost          float64 `json:"cost"`
}

const (
	AttemptPassed          = "passed"
	AttemptRejected        = "rejected"
	AttemptGenerationError = "generation_error"
	AttemptEvaluationError = "evaluation_error"
	AttemptSafetyBlocked   = "safety_blocked"
)

// CostEntry is one billable external call.
type CostEntry struct {
	Stage    Stage   `json:"stage"`
	Provider string  `json:"provider"`
	Attempt  int     `json:"attempt,omitempty"`
	Cost     float64 `json:"cost"`
	Tokens   int     `json:"tokens,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// StageTiming records when a stage started and how long it ran.
type StageTiming struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Violation is a hard-constraint breach found when validating a selection.
type Violation struct {
	Role      Role   `json:"role"`
	AssetID   string `json:"asset_id,omitempty"`
	Rule      string `json:"rule"`
	Detail    string `json:"detail,omitempty"`
	Corrected bool   `json:"corrected"`
	// Replacement is the asset substituted when the violation was corrected.
	Replacement string `json:"replacement,omitempty"`
}

// AddCost appends a billable call and keeps the running total in step.
func (r *PipelineResult) AddCost(entry CostEntry) {
	r.Costs = append(r.Costs, entry)
	r.TotalCost += entry.Cost
}

// Warn records a non-fatal condition.
func (r *PipelineResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Clone returns a copy safe to hand to a store while the run keeps mutating r.
func (r *PipelineResult) Clone() *PipelineResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Assets != nil {
		c.Assets = make(map[Role]AssetRef, len(r.Assets))
		for k, v := range r.Assets {
			c.Assets[k] = v
		}
	}
	if r.StageTimings != nil {
		c.StageTimings = make(map[Stage]StageTiming, len(r.StageTimings))
		for k, v := range r.StageTimings {
			c.StageTimings[k] = v
		}
	}
	if r.Reasoning != nil {
		c.Reasoning = make(map[Stage]string, len(r.Reasoning))
		for k, v := range r.Reasoning {
			c.Reasoning[k] = v
		}
	}
	c.Attempts = append([]AttemptRecord(nil), r.Attempts...)
	c.Costs = append([]CostEntry(nil), r.Costs...)
	c.SkippedStages = append([]Stage(nil), r.SkippedStages...)
	c.Violations = append([]Violation(nil), r.Violations...)
	c.Warnings = append([]string(nil), r.Warnings...)
	return &c
}
