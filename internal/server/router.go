package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/analytics"
	"github.com/RollSatrs/speechcenter-admin/internal/auth"
	"github.com/RollSatrs/speechcenter-admin/internal/bot"
	"github.com/RollSatrs/speechcenter-admin/internal/history"
	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

// Router provides embeddable HTTP handlers for the admin dashboard API.
// Endpoints (all under {basePath}/api):
//   POST /auth/login      email+password JSON, sets session cookie
//   POST /auth/logout     clears session
//   GET  /auth/me         current admin
//   POST /auth/register   always 403, registration is closed
//   POST /bot/connect     queue connect command, ensure process online
//   POST /bot/reconnect   queue reconnect command, restart process
//   POST /bot/stop        stop process, force stopped state
//   GET  /bot/status      resolved bot status, uncacheable
//   GET/POST /tests, GET/PUT /tests/:id
//   GET  /sessions/users
//   GET  /user/all, /user/list, /user/timeline
//   GET  /analytics/overview
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	store     *store.Store
	auth      *auth.Service
	bot       *bot.Service
	analytics *analytics.Service
	audit     *history.Recorder
	logger    *slog.Logger
	basePath  string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/admin" results in /admin/api/auth/login etc.
func NewRouter(st *store.Store, au *auth.Service, bt *bot.Service, an *analytics.Service, audit *history.Recorder, logger *slog.Logger, basePath string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:     st,
		auth:      au,
		bot:       bt,
		analytics: an,
		audit:     audit,
		logger:    logger,
		basePath:  sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	api := g.Group(r.basePath + "/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/login", r.handleLogin)
	authGroup.GET("/login", r.handleLoginProbe)
	authGroup.POST("/logout", r.handleLogout)
	authGroup.GET("/me", r.handleMe)
	authGroup.POST("/register", r.handleRegister)

	protected := api.Group("", r.auth.RequireAdmin())
	protected.POST("/bot/connect", r.handleBotConnect)
	protected.POST("/bot/reconnect", r.handleBotReconnect)
	protected.POST("/bot/stop", r.handleBotStop)
	protected.GET("/bot/status", r.handleBotStatus)

	protected.GET("/tests", r.handleTestsList)
	protected.POST("/tests", r.handleTestCreate)
	protected.GET("/tests/:id", r.handleTestGet)
	protected.PUT("/tests/:id", r.handleTestUpdate)

	protected.GET("/sessions/users", r.handleSessionsUsers)
	protected.GET("/user/all", r.handleUserAll)
	protected.GET("/user/list", r.handleUserList)
	protected.GET("/user/timeline", r.handleUserTimeline)

	protected.GET("/analytics/overview", r.handleAnalyticsOverview)

	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}
