// Package scheduler turns time-window rules into slots and hands them to the
// worker pool. It never waits for a pipeline unless a manual caller asks it to.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/workerpool"
)

const (
	dateLayout          = "2006-01-02"
	defaultStallTimeout = 30 * time.Minute
)

// Runner drives one slot through the pipeline.
type Runner interface {
	Run(ctx context.Context, slotID string) (*domain.PipelineResult, error)
}

type Options struct {
	Rules        domain.RuleRepository
	Slots        domain.SlotRepository
	Runner       Runner
	Pool         *workerpool.Pool
	Location     *time.Location
	StallTimeout time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time
	NewID        func() string
}

type Scheduler struct {
	rules  domain.RuleRepository
	slots  domain.SlotRepository
	runner Runner
	pool   *workerpool.Pool
	loc    *time.Location
	stall  time.Duration
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func New(opts Options) (*Scheduler, error) {
	if opts.Rules == nil || opts.Slots == nil || opts.Runner == nil || opts.Pool == nil {
		return nil, errors.New("scheduler: rules, slots, runner and pool are required")
	}
	s := &Scheduler{
		rules:  opts.Rules,
		slots:  opts.Slots,
		runner: opts.Runner,
		pool:   opts.Pool,
		loc:    opts.Location,
		stall:  opts.StallTimeout,
		logger: opts.Logger.With().Str("component", "scheduler").Logger(),
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.stall <= 0 {
		s.stall = defaultStallTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Report summarises one periodic tick.
type Report struct {
	Triggered  int      `json:"triggered"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
	SlotIDs    []string `json:"slot_ids,omitempty"`
	Reconciled []string `json:"reconciled,omitempty"`
}

// CheckAndTrigger creates and launches a slot for every active rule whose
// window contains now and that has no slot for today yet, then fails slots
// that stalled. Per-rule errors are collected; the tick itself does not fail.
func (s *Scheduler) CheckAndTrigger(ctx context.Context) Report {
	var report Report
	now := s.now().In(s.loc)

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list rules failed")
		report.Errors = append(report.Errors, fmt.Sprintf("list rules: %v", err))
	}
	for _, rule := range rules {
		if !rule.InWindow(now) {
			continue
		}
		log := s.logger.With().Str("rule_id", rule.ID).Logger()
		date := now.Format(dateLayout)

		if _, err := s.slots.LatestForRuleDate(ctx, rule.ID, date); err == nil {
			report.Skipped++
			log.Debug().Str("date", date).Msg("slot already exists for today")
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: check existing slot: %v", rule.ID, err))
			continue
		}

		slot := s.newSlot(rule, now, domain.TriggerScheduled, fmt.Sprintf("%s:%s", rule.ID, date))
		created, err := s.slots.CreateIfAbsent(ctx, slot)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: create slot: %v", rule.ID, err))
			continue
		}
		if !created {
			report.Skipped++
			continue
		}
		if _, err := s.launch(slot.ID); err != nil {
			// the slot stays pending; reconciliation fails it after the stall timeout
			report.Errors = append(report.Errors, fmt.Sprintf("%s: launch slot %s: %v", rule.ID, slot.ID, err))
			continue
		}
		report.Triggered++
		report.SlotIDs = append(report.SlotIDs, slot.ID)
		log.Info().Str("slot_id", slot.ID).Time("target", slot.TargetTime).Msg("slot triggered")
	}

	reconciled, err := s.ReconcileStuck(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("reconcile: %v", err))
	}
	report.Reconciled = reconciled
	return report
}

// ReconcileStuck fails every pending or generating slot that has not been
// updated within the stall timeout.
func (s *Scheduler) ReconcileStuck(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.stall)
	msg := fmt.Sprintf("%v: no progress for %s", domain.ErrStuck, s.stall)
	ids, err := s.slots.FailStuck(ctx, cutoff, msg)
	if err != nil {
		return nil, fmt.Errorf("fail stuck slots: %w", err)
	}
	for _, id := range ids {
		s.logger.Warn().Str("slot_id", id).Dur("stall_timeout", s.stall).Msg("stuck slot marked failed")
	}
	return ids, nil
}

func (s *Scheduler) newSlot(rule domain.TimeWindowRule, now time.Time, trigger domain.TriggerKind, key string) *domain.Slot {
	return &domain.Slot{
		ID:             s.newID(),
		RuleID:         rule.ID,
		TargetDate:     now.Format(dateLayout),
		TargetTime:     rule.Target(now),
		Trigger:        trigger,
		IdempotencyKey: key,
		CreatedAt:      s.now(),
	}
}

// launch submits the slot to the pool. The returned handle is only awaited by
// manual callers that asked to wait.
func (s *Scheduler) launch(slotID string) (*workerpool.Handle, error) {
	return s.pool.Submit("slot:"+slotID, func(ctx context.Context) error {
		_, err := s.runner.Run(ctx, slotID)
		return err
	})
}
