package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/analytics"
)

func (r *Router) handleAnalyticsOverview(c *gin.Context) {
	now := time.Now()
	year := analytics.ParseYear(c.Query("year"), now.Year())
	month := analytics.ParseMonth(c.Query("month"), now.Format("2006-01"))

	overview, err := r.analytics.Overview(c.Request.Context(), year, month)
	if err != nil {
		r.logger.Error("analytics overview failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	writeJSON(c, http.StatusOK, overview)
}
