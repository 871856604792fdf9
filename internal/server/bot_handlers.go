package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/bot"
	"github.com/RollSatrs/speechcenter-admin/internal/history"
)

type controlResp struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
}

func (r *Router) handleBotConnect(c *gin.Context) {
	r.handleBotCommand(c, "connect", r.bot.Connect)
}

func (r *Router) handleBotReconnect(c *gin.Context) {
	r.handleBotCommand(c, "reconnect", r.bot.Reconnect)
}

func (r *Router) handleBotCommand(c *gin.Context, action string, run func(ctx context.Context) (string, error)) {
	token, err := run(c.Request.Context())
	if err != nil {
		var unavailable *bot.UnavailableError
		if errors.As(err, &unavailable) {
			writeJSON(c, http.StatusServiceUnavailable, messageResp{Message: unavailable.Error()})
			return
		}
		r.logger.Error("bot command failed", "action", action, "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	r.auditBotAction(c, action, token)
	writeJSON(c, http.StatusOK, controlResp{OK: true, Token: token})
}

func (r *Router) handleBotStop(c *gin.Context) {
	if err := r.bot.Stop(c.Request.Context()); err != nil {
		var unavailable *bot.UnavailableError
		if errors.As(err, &unavailable) {
			writeJSON(c, http.StatusServiceUnavailable, messageResp{Message: unavailable.Error()})
			return
		}
		r.logger.Error("bot command failed", "action", "stop", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	r.auditBotAction(c, "stop", "")
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleBotStatus(c *gin.Context) {
	report := r.bot.Status(c.Request.Context())
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	writeJSON(c, http.StatusOK, report)
}

func (r *Router) auditBotAction(c *gin.Context, action, token string) {
	actor := ""
	if admin := currentAdmin(c); admin != nil {
		actor = admin.Email
	}
	r.audit.Record(c.Request.Context(), history.Event{
		Action: history.ActionBotControl,
		Actor:  actor,
		Target: action,
		Detail: token,
	})
}
