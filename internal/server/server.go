package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/frostbox/internal/config"
	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/handler"
	"github.com/dukerupert/frostbox/internal/invitation"
	"github.com/dukerupert/frostbox/internal/middleware"
	"github.com/dukerupert/frostbox/internal/store"
	ws "github.com/dukerupert/frostbox/internal/websocket"
)

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	hub         *ws.Hub
	users       *store.UserStore
	households  *store.HouseholdStore
	itemH       *handler.ItemHandler
	drawerH     *handler.DrawerHandler
	householdH  *handler.HouseholdHandler
	invitationH *handler.InvitationHandler
	activityH   *handler.ActivityHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires stores, handlers and the websocket hub. sender delivers
// invitation e-mails.
func New(db *sql.DB, cfg *config.Config, sender invitation.Sender, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	households := store.NewHouseholdStore(db)
	invitations := store.NewInvitationStore(db)

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		users:       store.NewUserStore(db),
		households:  households,
		itemH:       handler.NewItemHandler(store.NewItemStore(db), hub, logger.With("component", "item")),
		drawerH:     handler.NewDrawerHandler(store.NewDrawerStore(db), hub, logger.With("component", "drawer")),
		householdH:  handler.NewHouseholdHandler(households, hub, logger.With("component", "household")),
		invitationH: handler.NewInvitationHandler(invitations, sender, cfg.Invites.ResendCooldown.Duration, hub, logger.With("component", "invitation")),
		activityH:   handler.NewActivityHandler(store.NewActivityStore(db), logger.With("component", "activity")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter is exposed so the caller can run its cleanup loop.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))

	r.Get("/health", s.healthHandler)

	identify := middleware.Identify(s.users, s.households, s.cfg.Auth.EmailHeader, s.cfg.Auth.HouseholdHeader, s.logger.With("component", "identity"))
	inviteLimit := middleware.RateLimit(s.rateLimiter, middleware.ByUser, s.cfg.Invites.RateLimit, s.cfg.Invites.RateWindow.Duration)

	r.Group(func(r chi.Router) {
		r.Use(identify)

		r.Get("/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

		r.Route("/api", func(api chi.Router) {
			api.Use(middleware.RequireUser)

			api.Get("/items", s.itemH.List)
			api.Post("/items", s.itemH.Create)
			api.Get("/items/expiring", s.itemH.Expiring)
			api.Get("/items/positions/{position}", s.itemH.PositionAvailable)
			api.Patch("/items/{id}", s.itemH.Update)
			api.Delete("/items/{id}", s.itemH.Delete)

			api.Get("/drawers", s.drawerH.List)
			api.Post("/drawers", s.drawerH.Create)
			api.Put("/drawers/order", s.drawerH.Reorder)
			api.Patch("/drawers/{id}", s.drawerH.Update)
			api.Delete("/drawers/{id}", s.drawerH.Delete)

			api.Get("/households", s.householdH.List)
			api.Post("/households", s.householdH.Create)
			api.Patch("/households/{id}", s.householdH.Rename)
			api.Delete("/households/{id}", s.householdH.Delete)
			api.Post("/households/{id}/leave", s.householdH.Leave)
			api.Get("/households/{id}/members", s.householdH.Members)
			api.Patch("/households/{id}/members/{memberID}", s.householdH.SetMemberRole)
			api.Delete("/households/{id}/members/{memberID}", s.householdH.RemoveMember)
			api.Get("/households/{id}/invitations", s.invitationH.Outgoing)
			api.With(inviteLimit).Post("/households/{id}/invitations", s.invitationH.Create)

			api.Get("/invitations", s.invitationH.Inbox)
			api.With(inviteLimit).Post("/invitations/{id}/resend", s.invitationH.Resend)
			api.Post("/invitations/{id}/cancel", s.invitationH.Cancel)
			api.Post("/invitations/{id}/accept", s.invitationH.Accept)
			api.Post("/invitations/{id}/decline", s.invitationH.Decline)

			api.Get("/activity", s.activityH.List)
		})
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else if v, err := database.Version(s.db); err == nil {
		status["schema_version"] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
