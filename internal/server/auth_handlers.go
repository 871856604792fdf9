package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/auth"
	"github.com/RollSatrs/speechcenter-admin/internal/history"
	"github.com/RollSatrs/speechcenter-admin/internal/metrics"
	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *Router) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: "Email и пароль обязательны"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: "Email и пароль обязательны"})
		return
	}

	session, err := r.auth.Login(c.Request.Context(), email, req.Password, c.ClientIP())
	if err != nil {
		var limited *auth.RateLimitedError
		switch {
		case errors.As(err, &limited):
			metrics.IncLoginAttempt("rate_limited")
			c.Header("Retry-After", strconv.Itoa(limited.RetryAfter))
			writeJSON(c, http.StatusTooManyRequests, messageResp{Message: "Слишком много попыток. Повторите позже."})
		case errors.Is(err, auth.ErrInvalidCredentials):
			metrics.IncLoginAttempt("failure")
			r.logger.Warn("login rejected", "email", email, "ip", c.ClientIP())
			writeJSON(c, http.StatusUnauthorized, messageResp{Message: "Неверный email или пароль"})
		default:
			r.logger.Error("login failed", "error", err)
			writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Ошибка входа"})
		}
		return
	}

	metrics.IncLoginAttempt("success")
	r.audit.Record(c.Request.Context(), history.Event{
		Action: history.ActionLogin,
		Actor:  email,
	})
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(r.auth.CookieName(), session.Token, maxAge, "/", "", r.auth.SecureCookies(), true)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleLoginProbe answers clients checking whether the auth backend is up.
func (r *Router) handleLoginProbe(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogout(c *gin.Context) {
	token, _ := c.Cookie(r.auth.CookieName())
	admin, _ := r.auth.Resolve(c.Request.Context(), token)
	if err := r.auth.Logout(c.Request.Context(), token); err != nil {
		r.logger.Error("logout failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Ошибка выхода"})
		return
	}
	if admin != nil {
		r.audit.Record(c.Request.Context(), history.Event{
			Action: history.ActionLogout,
			Actor:  admin.Email,
		})
	}
	c.SetCookie(r.auth.CookieName(), "", -1, "/", "", r.auth.SecureCookies(), true)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMe(c *gin.Context) {
	token, _ := c.Cookie(r.auth.CookieName())
	admin, err := r.auth.Resolve(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeJSON(c, http.StatusUnauthorized, messageResp{Message: "Unauthorized"})
			return
		}
		r.logger.Error("session check failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Ошибка проверки сессии"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ok":    true,
		"admin": gin.H{"id": admin.ID, "email": admin.Email},
	})
}

// Public registration stays closed; admins are created from the CLI.
func (r *Router) handleRegister(c *gin.Context) {
	writeJSON(c, http.StatusForbidden, messageResp{
		Message: "Публичная регистрация отключена. Обратитесь к администратору.",
	})
}

func currentAdmin(c *gin.Context) *store.Admin {
	v, ok := c.Get(auth.AdminKey)
	if !ok {
		return nil
	}
	admin, _ := v.(*store.Admin)
	return admin
}
