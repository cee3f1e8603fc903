package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/scheduler"
)

// Scheduler is the part of the scheduler the API drives.
type Scheduler interface {
	CheckAndTrigger(ctx context.Context) scheduler.Report
	TriggerNow(ctx context.Context, ruleID string, opts scheduler.TriggerOptions) (*scheduler.TriggerResult, error)
}

// Invalidator drops a cached configuration so the next run reloads it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Scheduler Scheduler
	Slots     domain.SlotRepository
	Caches    []Invalidator
	// Checks are run by the health endpoint, keyed by name.
	Checks map[string]Pinger
	Logger zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": errCode, "message": msg})
}

// fail maps a domain error onto a status code. Unknown errors are logged and
// reported as internal without leaking their text.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyRunning):
		a.error(w, http.StatusConflict, "conflict", msg)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		a.error(w, http.StatusInternalServerError, "internal", msg)
	}
}
