package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contentgen/internal/scheduler"
	"contentgen/internal/workerpool"
)

func (a *App) TriggerRule(w http.ResponseWriter, r *http.Request) {
	opts := scheduler.TriggerOptions{
		Wait:  queryBool(r, "wait"),
		Force: queryBool(r, "force"),
	}
	res, err := a.Scheduler.TriggerNow(r.Context(), chi.URLParam(r, "ruleID"), opts)
	if err != nil {
		if errors.Is(err, workerpool.ErrQueueFull) || errors.Is(err, workerpool.ErrClosed) {
			a.error(w, http.StatusServiceUnavailable, "busy", "worker queue is full, retry later")
			return
		}
		a.fail(w, r, err, "failed to trigger rule")
		return
	}
	// 202 while the run is still going on the pool
	code := http.StatusOK
	if res.Started && !res.Finished {
		code = http.StatusAccepted
	}
	a.json(w, code, res)
}

func (a *App) SchedulerCheck(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Scheduler.CheckAndTrigger(r.Context()))
}

func (a *App) InvalidateCaches(w http.ResponseWriter, r *http.Request) {
	for _, c := range a.Caches {
		c.Invalidate(r.Context())
	}
	a.Logger.Info().Int("caches", len(a.Caches)).Msg("configuration caches invalidated")
	a.json(w, http.StatusOK, map[string]int{"invalidated": len(a.Caches)})
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
