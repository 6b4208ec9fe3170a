package bootstrap

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/najoast/socialshard/config"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
)

// newMonitorRouter serves the operational endpoints:
//
//   - GET <metrics_path>: Prometheus exposition
//   - GET <health_path>: per-service health, 503 when any is unhealthy
//   - GET <health_path>/actors: runtime stats of every running actor
func newMonitorRouter(app *DefaultApplication, cfg config.MonitorConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Method(http.MethodGet, cfg.MetricsPath, metrics.Handler(app.registry))
	r.Route(cfg.HealthPath, func(r chi.Router) {
		r.Get("/", healthHandler(app))
		r.Get("/actors", actorsHandler(app))
	})
	return r
}

func healthHandler(app *DefaultApplication) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, _ := app.lifecycleManager.Health(r.Context())

		code := http.StatusOK
		for _, st := range statuses {
			if st.State == HealthUnhealthy {
				code = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, statuses)
	}
}

type actorStats struct {
	Identity          core.Identity `json:"identity"`
	State             string        `json:"state"`
	MessagesProcessed uint64        `json:"messages_processed"`
	Mailbox           int           `json:"mailbox"`
	LastMessageAt     *time.Time    `json:"last_message_at,omitempty"`
}

func actorsHandler(app *DefaultApplication) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sys := app.ActorSystem()
		if sys == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNotRunning.Error()})
			return
		}

		stats := sys.Stats()
		out := make([]actorStats, len(stats))
		for i, st := range stats {
			out[i] = actorStats{
				Identity:          st.Identity,
				State:             st.State.String(),
				MessagesProcessed: st.MessagesProcessed,
				Mailbox:           st.MailboxSize,
			}
			if !st.LastMessageAt.IsZero() {
				last := st.LastMessageAt
				out[i].LastMessageAt = &last
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("monitor request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000)
	})
}
