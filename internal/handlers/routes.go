package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teetime/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.Health}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	connections := ConnectionHandler{Connections: deps.Connections, Users: deps.Users}

	var authn middleware.Authenticator
	if deps.Sessions != nil {
		authn = deps.Sessions
	}
	authed := middleware.RequireUser(authn)
	limitAuth := middleware.Limit(deps.AuthLimiter, "auth")
	limitSend := middleware.Limit(deps.SendLimiter, "send")

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/auth/login", limitAuth(http.HandlerFunc(auth.Login)))
	mux.Handle("POST /api/v1/auth/signup", limitAuth(http.HandlerFunc(auth.SignUp)))
	mux.Handle("POST /api/v1/auth/refresh", limitAuth(http.HandlerFunc(auth.Refresh)))
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)

	mux.Handle("GET /api/v1/connections", authed(http.HandlerFunc(connections.Friends)))
	mux.Handle("GET /api/v1/connections/requests", authed(http.HandlerFunc(connections.Requests)))
	mux.Handle("POST /api/v1/connections/requests", authed(limitSend(http.HandlerFunc(connections.Send))))
	mux.Handle("POST /api/v1/connections/requests/{id}/accept", authed(http.HandlerFunc(connections.Accept)))
	mux.Handle("POST /api/v1/connections/requests/{id}/reject", authed(http.HandlerFunc(connections.Reject)))
	mux.Handle("GET /api/v1/connections/{targetId}/status", authed(http.HandlerFunc(connections.Status)))
	mux.Handle("DELETE /api/v1/connections/{targetId}", authed(http.HandlerFunc(connections.Remove)))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Sessions    SessionManager
	Connections ConnectionService
	Health      HealthChecker

	// Nil limiters disable rate limiting for their scope.
	AuthLimiter middleware.RateLimiter
	SendLimiter middleware.RateLimiter
}
