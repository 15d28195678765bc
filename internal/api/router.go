package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sentient.health/symptom-ai/internal/config"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(corsMiddleware(config.AppConfig.CORSOrigin))

	r.Handle("/metrics", promhttp.Handler())

	limiter := newUserRateLimiter(config.AppConfig.RateLimitPerMinute)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/languages", apiHandler.LanguagesHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/me", apiHandler.MeHandler)
			r.Get("/preferences", apiHandler.GetPreferencesHandler)
			r.Put("/preferences", apiHandler.UpdatePreferencesHandler)

			// Active analysis
			r.Get("/analysis", apiHandler.GetAnalysisHandler)
			r.With(limiter.Middleware).Post("/analysis", apiHandler.AnalyzeHandler)
			r.Delete("/analysis", apiHandler.ClearAnalysisHandler)
			r.Post("/analysis/save", apiHandler.SaveAnalysisHandler)

			// Saved history
			r.Get("/history", apiHandler.ListHistoryHandler)
			r.Post("/history/{analysisID}/load", apiHandler.LoadHistoryHandler)
			r.Delete("/history/{analysisID}", apiHandler.DeleteHistoryHandler)

			// Follow-up chat
			r.Get("/chat", apiHandler.GetChatHandler)
			r.With(limiter.Middleware).Post("/chat", apiHandler.PostMessageHandler)
		})
	})

	return r
}
