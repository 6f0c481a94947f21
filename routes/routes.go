package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openbracket/tournament-engine/handlers"
	"github.com/openbracket/tournament-engine/middleware"
	"github.com/openbracket/tournament-engine/models"
)

// SetupRoutes mounts the full HTTP surface. Reads are public; admission
// operations need a logged-in player; lifecycle operations need the
// organizer role on top.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	registrationHandler *handlers.RegistrationHandler,
	roundHandler *handlers.RoundHandler,
	standingsHandler *handlers.StandingsHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticator(jwtSecret)
	organizerOnly := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)

	router.Post("/auth/signup", authHandler.Register)
	router.Post("/auth/signin", authHandler.Login)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}", tournamentHandler.GetByID)
		r.Get("/{tournamentID}/phases", tournamentHandler.ListPhases)
		r.Get("/{tournamentID}/registrations", registrationHandler.ListByTournament)
		r.Get("/{tournamentID}/registrations/window", registrationHandler.Window)

		// Player self-service admission.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{tournamentID}/registrations", registrationHandler.Register)
			r.Post("/{tournamentID}/check-in", registrationHandler.CheckIn)
			r.Delete("/{tournamentID}/check-in", registrationHandler.UndoCheckIn)
		})

		// Organizer-side management.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)
			r.Post("/", tournamentHandler.Create)
			r.Put("/{tournamentID}", tournamentHandler.Update)
			r.Patch("/{tournamentID}/status", tournamentHandler.UpdateStatus)
			r.Post("/{tournamentID}/logo", tournamentHandler.UploadLogo)
			r.Post("/{tournamentID}/phases", tournamentHandler.AddPhase)
		})
	})

	router.Route("/phases", func(r chi.Router) {
		r.Get("/{phaseID}/state", roundHandler.State)
		r.Get("/{phaseID}/standings", standingsHandler.ListByPhase)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)
			r.Post("/{phaseID}/rounds", roundHandler.Prepare)
		})
	})

	router.Route("/rounds", func(r chi.Router) {
		r.Get("/{roundID}/matches", roundHandler.ListMatches)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)
			r.Post("/{roundID}/confirm", roundHandler.Confirm)
			r.Delete("/{roundID}", roundHandler.Cancel)
			r.Post("/{roundID}/complete", roundHandler.Complete)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(organizerOnly)
			r.Post("/{matchID}/start", roundHandler.StartMatch)
			r.Post("/{matchID}/result", roundHandler.ReportResult)
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)
}
