package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/warmup", func(r chi.Router) {
			r.Post("/start", h.StartWarmup)
			r.Get("/stages", h.GetStages)

			r.Route("/{instance}", func(r chi.Router) {
				r.Get("/status", h.GetWarmupStatus)
				r.Get("/metrics", h.GetMetrics)
				r.Post("/send", h.SendWarmupMessages)
				r.Post("/advance", h.AdvanceStage)

				r.Post("/schedule", h.ScheduleMessages)
				r.Post("/schedule/daily", h.ScheduleDaily)
				r.Get("/scheduled", h.GetScheduledMessages)
				r.Post("/scheduled/cleanup", h.CleanupScheduled)
				r.Delete("/scheduled/{id}", h.CancelScheduledMessage)

				r.Get("/scheduler/stats", h.GetSchedulerStats)
				r.Post("/scheduler/start", h.StartScheduler)
				r.Post("/scheduler/stop", h.StopScheduler)
			})
		})

		r.Route("/analytics/{instance}", func(r chi.Router) {
			r.Get("/", h.GetAnalytics)
			r.Get("/health", h.GetHealthScore)
			r.Get("/dashboard", h.GetDashboard)
			r.Get("/compare", h.CompareInstances)
			r.Get("/export", h.ExportMetrics)
		})

		r.Route("/webhook", func(r chi.Router) {
			r.Post("/messages", h.HandleIncomingMessage)
			r.Post("/connection", h.HandleConnectionUpdate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"route not found"}`))
	})

	return r
}
