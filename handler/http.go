package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Tautulli/Tautulli-sub004/repository"
	"github.com/Tautulli/Tautulli-sub004/service"
	"github.com/gin-gonic/gin"
)

// Activity returns the currently tracked sessions.
func Activity(repo repository.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := repo.GetAllSessions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":    len(sessions),
			"sessions": sessions,
		})
	}
}

// History returns recent completed sessions, newest first.
func History(repo repository.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 1000 {
			limit = 50
		}
		entries, err := repo.ListHistory(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":   len(entries),
			"history": entries,
		})
	}
}

// Export uploads the history table to object storage. The optional since
// query parameter is RFC 3339; it defaults to everything.
func Export(svc *service.ExportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var since time.Time
		if raw := c.Query("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
				return
			}
			since = parsed
		}

		object, rows, err := svc.ExportHistory(c.Request.Context(), since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"object": object,
			"rows":   rows,
		})
	}
}
