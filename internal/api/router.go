package api

import (
	"net/http"
	"time"

	"codenvibe/internal/api/handler"
	"codenvibe/internal/api/middleware"
	"codenvibe/internal/app/service"
	"codenvibe/internal/platform/config"
	"codenvibe/internal/realtime"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(
	questionService *service.QuestionService,
	submissionService *service.SubmissionService,
	leaderboardService *service.LeaderboardService,
	hub *realtime.Hub,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AppConfig.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Token from the Authorization header or the auth cookie; claims land in
	// the context for Authenticator and Identify.
	r.Use(middleware.Verifier(config.AppConfig.AuthCookieName))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Websockets are long-lived and stay outside the request timeout.
	wsHandler := handler.NewWebSocketHandler(hub, config.AppConfig.CORSAllowedOrigins)
	wsHandler.RegisterRoutes(r)

	r.Group(func(timed chi.Router) {
		timed.Use(chiMiddleware.Timeout(60 * time.Second))

		timed.Route("/api/v1", func(v1 chi.Router) {
			submissionHandler := handler.NewSubmissionHandler(submissionService)
			v1.Route("/submission", submissionHandler.RegisterRoutes)
			v1.Route("/submissions", submissionHandler.RegisterRoutes)

			questionHandler := handler.NewQuestionHandler(questionService, submissionService)
			v1.Route("/questions", questionHandler.RegisterRoutes)
			v1.Route("/question", questionHandler.RegisterCheckRoutes)

			leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
			v1.Route("/leaderboard", leaderboardHandler.RegisterRoutes)

			v1.Route("/admin", func(admin chi.Router) {
				admin.Use(middleware.Authenticator)
				admin.Use(middleware.AdminOnly)
				questionHandler.RegisterAdminRoutes(admin)
			})
		})
	})

	return r
}
