package api

import (
	"net/http"
	"time"

	"colosseum/internal/api/handler"
	"colosseum/internal/app/service"
	"colosseum/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	contestService *service.ContestService,
	participationService *service.ParticipationService,
	rankingService *service.RankingService,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies the Authorization bearer token and puts claims in context.
	// Endpoints decide whether a missing token is fatal.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		// Auth routes (public)
		authHandler := handler.NewAuthHandler(authService)
		v1.Group(func(publicAuth chi.Router) {
			authHandler.RegisterRoutes(publicAuth)
		})

		contestHandler := handler.NewContestHandler(contestService, participationService, rankingService, authService)
		v1.Route("/contests", contestHandler.RegisterRoutes)
		v1.Route("/participations", contestHandler.RegisterParticipationRoutes)
	})

	return r
}
