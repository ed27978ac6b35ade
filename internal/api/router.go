package api

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/erazemk/corrente/internal/allocation"
	"github.com/erazemk/corrente/internal/auth"
	"github.com/erazemk/corrente/internal/metrics"
	"github.com/erazemk/corrente/internal/realtime"
	"github.com/erazemk/corrente/internal/store"
)

// Config holds the dependencies of the API.
type Config struct {
	DB        *sql.DB
	JWTSecret string
	// Policy defaults to auth.NewPolicy().
	Policy *auth.Policy
	// Allocator defaults to one backed by store.Repository.
	Allocator *allocation.Allocator
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Policy == nil {
		p, err := auth.NewPolicy()
		if err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		cfg.Policy = p
	}
	if cfg.Allocator == nil {
		cfg.Allocator = allocation.New(store.Repository{DB: cfg.DB}, cfg.Metrics, nil)
	}

	mux := http.NewServeMux()
	db, p := cfg.DB, cfg.Policy

	authHandler := &AuthHandler{DB: db, JWTSecret: cfg.JWTSecret, Policy: p}
	usersHandler := &UsersHandler{DB: db, Policy: p}
	itemsHandler := &ItemsHandler{DB: db, Policy: p, Hub: cfg.Hub, Metrics: cfg.Metrics}
	requestsHandler := &RequestsHandler{DB: db, Policy: p, Hub: cfg.Hub}
	allocationsHandler := &AllocationsHandler{DB: db, Allocator: cfg.Allocator, Hub: cfg.Hub}
	missionsHandler := &MissionsHandler{DB: db, Policy: p, Hub: cfg.Hub}
	infoHandler := &InfoHandler{DB: db, Hub: cfg.Hub}

	authMW := AuthMiddleware(cfg.JWTSecret, db)
	can := func(obj, act string, h http.HandlerFunc) http.Handler {
		return authMW(Require(p, obj, act)(h))
	}

	// Public: login and catalog.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/catalog", infoHandler.Catalog)

	// Own account.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(usersHandler.Me)))
	mux.Handle("PUT /api/me", authMW(http.HandlerFunc(usersHandler.UpdateMe)))

	// Users (admin only), locations (privacy filtered).
	mux.Handle("GET /api/users", can(auth.ResUsers, auth.ActManage, usersHandler.List))
	mux.Handle("POST /api/users", can(auth.ResUsers, auth.ActManage, usersHandler.Create))
	mux.Handle("GET /api/users/{id}", can(auth.ResUsers, auth.ActManage, usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", can(auth.ResUsers, auth.ActManage, usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", can(auth.ResUsers, auth.ActManage, usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", can(auth.ResUsers, auth.ActManage, usersHandler.Delete))
	mux.Handle("GET /api/users/{id}/location", can(auth.ResLocations, auth.ActRead, usersHandler.Location))

	// Items.
	mux.Handle("GET /api/items", can(auth.ResItems, auth.ActRead, itemsHandler.List))
	mux.Handle("POST /api/items", can(auth.ResItems, auth.ActCreate, itemsHandler.Create))
	mux.Handle("GET /api/items/{id}", can(auth.ResItems, auth.ActRead, itemsHandler.Get))
	mux.Handle("DELETE /api/items/{id}", can(auth.ResItems, auth.ActDelete, itemsHandler.Delete))
	mux.Handle("POST /api/items/{id}/transition", can(auth.ResItems, auth.ActTransition, itemsHandler.Transition))
	mux.Handle("GET /api/items/{id}/history", can(auth.ResItems, auth.ActRead, itemsHandler.History))
	mux.Handle("PUT /api/items/{id}/photo", can(auth.ResItems, auth.ActRead, itemsHandler.UploadPhoto))
	mux.Handle("GET /api/items/{id}/photo", can(auth.ResItems, auth.ActRead, itemsHandler.GetPhoto))

	// Requests.
	mux.Handle("GET /api/requests", can(auth.ResRequests, auth.ActRead, requestsHandler.List))
	mux.Handle("POST /api/requests", can(auth.ResRequests, auth.ActCreate, requestsHandler.Create))
	mux.Handle("GET /api/requests/ranking", can(auth.ResRequests, auth.ActRank, requestsHandler.Ranking))
	mux.Handle("GET /api/requests/{id}", can(auth.ResRequests, auth.ActRead, requestsHandler.Get))
	mux.Handle("POST /api/requests/{id}/cancel", can(auth.ResRequests, auth.ActCancel, requestsHandler.Cancel))

	// Allocation.
	mux.Handle("POST /api/allocations", can(auth.ResAllocations, auth.ActRun, allocationsHandler.Run))
	mux.Handle("GET /api/allocations/plan", can(auth.ResAllocations, auth.ActRun, allocationsHandler.Plan))
	mux.Handle("GET /api/matches", can(auth.ResMatches, auth.ActRead, allocationsHandler.Matches))

	// Missions.
	mux.Handle("GET /api/missions", can(auth.ResMissions, auth.ActRead, missionsHandler.List))
	mux.Handle("POST /api/missions/{id}/accept", can(auth.ResMissions, auth.ActAccept, missionsHandler.Accept))
	mux.Handle("POST /api/missions/{id}/start", can(auth.ResMissions, auth.ActAdvance, missionsHandler.Start))
	mux.Handle("POST /api/missions/{id}/complete", can(auth.ResMissions, auth.ActAdvance, missionsHandler.Complete))
	mux.Handle("POST /api/missions/{id}/cancel", can(auth.ResMissions, auth.ActAdvance, missionsHandler.Cancel))

	// Dashboard and live feed.
	mux.Handle("GET /api/stats", can(auth.ResStats, auth.ActRead, infoHandler.Stats))
	mux.Handle("GET /api/feed", can(auth.ResFeed, auth.ActRead, infoHandler.Feed))
	mux.Handle("GET /metrics", cfg.Metrics.Handler())

	return mux, nil
}
