package app

import (
	"database/sql"
	"net/http"
	"time"

	"quizdesk/internal/app/observability"
	"quizdesk/internal/auth"
	"quizdesk/internal/quiz"
	"quizdesk/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})

	authSvc := auth.NewService(db, auth.ServiceConfig{
		Tokens:     tokens,
		BcryptCost: cfg.BcryptCost,
	})
	authHandler := auth.NewHandler(authSvc, cfg.CookieSecure)

	quizSvc := quiz.NewService(db)
	quizHandler := quiz.NewHandler(quizSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(RateLimitMiddleware(authLimiter))
			pub.Post("/auth/register", authHandler.Register)
			pub.Post("/auth/login", authHandler.Login)
			pub.Post("/auth/refresh", authHandler.Refresh)
			pub.Post("/auth/logout", authHandler.Logout)
		})

		api.Get("/quiz/published", quizHandler.ListPublished)
		api.Get("/quiz/{quizID}/instructions", quizHandler.Instructions)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/quiz/{quizID}/questions", quizHandler.Questions)
			secure.Post("/quiz/{quizID}/submit", quizHandler.Submit)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
				admin.Post("/admin/quiz", quizHandler.CreateQuiz)
				admin.Get("/admin/quiz", quizHandler.ListQuizzes)
				admin.Patch("/admin/quiz/{quizID}/toggle-publish", quizHandler.TogglePublish)
				admin.Delete("/admin/quiz/{quizID}", quizHandler.DeleteQuiz)
				admin.Post("/admin/quiz/{quizID}/questions", quizHandler.AddQuestion)
				admin.Get("/admin/quiz/{quizID}/questions", quizHandler.AdminQuestions)
				admin.Get("/admin/questions/{questionID}", quizHandler.GetQuestion)
				admin.Put("/admin/questions/{questionID}", quizHandler.UpdateQuestion)
				admin.Delete("/admin/questions/{questionID}", quizHandler.DeleteQuestion)

				admin.Get("/admin/results", reportHandler.Results)
				admin.Get("/admin/results/export", reportHandler.ExportResults)
			})
		})
	})

	return r
}
