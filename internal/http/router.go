package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"contentgen/internal/http/handlers"
	"contentgen/internal/middleware"
)

type RouterOptions struct {
	Logger          zerolog.Logger
	RateLimitPerMin int
	CORSOrigins     []string
	AdminToken      string
	// StaticDir, when set, is served under /static for filesystem storage.
	StaticDir string
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/healthz", app.Health)
	if opts.StaticDir != "" {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Get("/slots", app.ListSlots)
		r.Get("/slots/{slotID}", app.GetSlot)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminToken(opts.AdminToken))
			r.Post("/rules/{ruleID}/trigger", app.TriggerRule)
			r.Post("/slots/{slotID}/cancel", app.CancelSlot)
			r.Post("/slots/{slotID}/status", app.OverrideStatus)
			r.Post("/scheduler/check", app.SchedulerCheck)
			r.Post("/admin/cache/invalidate", app.InvalidateCaches)
		})
	})

	return r
}
