package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"contentgen/internal/domain"
)

const maxListLimit = 200

type listSlotsResponse struct {
	Slots []domain.Slot `json:"slots"`
}

type statusRequest struct {
	Status domain.SlotStatus `json:"status"`
	Reason string            `json:"reason"`
}

func (a *App) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := a.Slots.GetByID(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		a.fail(w, r, err, "slot not found")
		return
	}
	a.json(w, http.StatusOK, slot)
}

func (a *App) ListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.SlotFilter{
		Status: domain.SlotStatus(strings.ToLower(q.Get("status"))),
		RuleID: q.Get("rule_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown status")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		filter.Limit = n
	}
	slots, err := a.Slots.List(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err, "failed to list slots")
		return
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	a.json(w, http.StatusOK, listSlotsResponse{Slots: slots})
}

// CancelSlot marks the slot cancelled. A running pipeline notices at its next
// stage boundary and stops without recording a failure.
func (a *App) CancelSlot(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by operator"
	}
	a.transition(w, r, domain.SlotStatusCancelled, reason)
}

// OverrideStatus lets an operator record the outcome of the approval step,
// fail a slot by hand or put a failed slot back to pending for a retry.
func (a *App) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Status = domain.SlotStatus(strings.ToLower(string(req.Status)))
	if !req.Status.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown status")
		return
	}
	a.transition(w, r, req.Status, req.Reason)
}

func (a *App) transition(w http.ResponseWriter, r *http.Request, to domain.SlotStatus, reason string) {
	ctx := r.Context()
	id := chi.URLParam(r, "slotID")
	slot, err := a.Slots.GetByID(ctx, id)
	if err != nil {
		a.fail(w, r, err, "slot not found")
		return
	}
	if !slot.Status.CanOverride(to) {
		a.fail(w, r, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, slot.Status, to), "invalid transition")
		return
	}
	if err := a.Slots.SetStatus(ctx, id, slot.Status, to, reason); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			a.error(w, http.StatusConflict, "conflict", "slot changed concurrently, reload and retry")
			return
		}
		a.fail(w, r, err, "failed to update slot")
		return
	}
	a.Logger.Info().Str("slot_id", id).Str("from", string(slot.Status)).Str("to", string(to)).Msg("slot status overridden")

	updated, err := a.Slots.GetByID(ctx, id)
	if err != nil {
		a.fail(w, r, err, "failed to reload slot")
		return
	}
	a.json(w, http.StatusOK, updated)
}
