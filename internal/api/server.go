package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/notifykit/pkg/channels/email"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

// Deps are the collaborators of the API. Processor and Repository are
// required; a nil channel disables its routes with 501.
type Deps struct {
	Processor  *processor.Processor
	Repository notifications.Repository

	Realtime *realtime.Channel
	Push     *push.Channel
	Email    *email.Channel

	// Metrics instruments every route when set.
	Metrics *metrics.HTTPMetrics
	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer

	// Checks are added to the processor health in GET /readyz.
	Checks       []httpserver.Check
	CheckTimeout time.Duration

	// Heartbeat is the keepalive interval of realtime streams.
	Heartbeat time.Duration

	Logger *slog.Logger
}

// API serves the notification engine over HTTP.
type API struct {
	Deps
	onErr ErrorHandler
}

// New validates d and fills defaults.
func New(d Deps) (*API, error) {
	if d.Processor == nil {
		return nil, ErrNilProcessor
	}
	if d.Repository == nil {
		return nil, ErrNilRepository
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.CheckTimeout <= 0 {
		d.CheckTimeout = 2 * time.Second
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}
	return &API{Deps: d, onErr: NewErrorHandler(d.Logger)}, nil
}

// Router builds the route tree.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logContext, middleware.Recoverer)
	if a.Metrics != nil {
		r.Use(a.Metrics.Middleware)
	}

	checks := append([]httpserver.Check{{Name: "processor", Fn: a.Processor.Health}}, a.Checks...)
	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.Logger, a.CheckTimeout, checks...))
	if a.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(a.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", Wrap(a.stats, a.onErr))

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", Wrap(a.submit, a.onErr, BindJSON))
			r.Post("/bulk", Wrap(a.submitBulk, a.onErr, BindJSON))
			r.Post("/immediate", Wrap(a.sendImmediate, a.onErr, BindJSON))
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/notifications", Wrap(a.list, a.onErr, BindUser, BindPage, bindListFilter))
			r.Post("/notifications/read", Wrap(a.markRead, a.onErr, BindJSON, BindUser))
			r.Get("/unread", Wrap(a.unread, a.onErr, BindUser))

			r.Get("/preferences", Wrap(a.getPreferences, a.onErr, BindUser))
			r.Put("/preferences", Wrap(a.savePreferences, a.onErr, BindJSON, BindUser))

			r.Get("/devices", Wrap(a.listDevices, a.onErr, BindUser))
			r.Post("/devices", Wrap(a.registerDevice, a.onErr, BindJSON, BindUser))
			r.Delete("/devices", Wrap(a.unregisterDevice, a.onErr, BindJSON, BindUser))

			r.Get("/email", Wrap(a.getEmail, a.onErr, BindUser))
			r.Put("/email", Wrap(a.setEmail, a.onErr, BindJSON, BindUser))
			r.Delete("/email", Wrap(a.removeEmail, a.onErr, BindUser))

			r.Get("/stream", Wrap(a.stream, a.onErr, BindUser, bindStream))
		})

		r.Post("/sessions/{sessionID}/ping", Wrap(a.ping, a.onErr))
	})
	return r
}

// logContext attaches the request id to the context so every log record of
// the request carries it, including those written by the processor.
func logContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.ContextWithAttrs(r.Context(), logger.RequestID(id)))
		}
		next.ServeHTTP(w, r)
	})
}
