package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultRecordLimit = 20
	maxRecordLimit     = 500
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth())

	api := router.Group("/api")
	api.GET("/sessions", handleSessions(opts.Sessions))
	api.GET("/stats", handleStats(opts.Stats))
	api.GET("/records", handleRecords(opts.Records))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleSessions(sessions SessionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := sessions.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"count":    len(list),
			"sessions": list,
		})
	}
}

func handleStats(stats StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Today())
	}
}

func handleRecords(records RecordLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if records == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "records are only available with the sql backend"})
			return
		}
		limit := defaultRecordLimit
		if raw := c.Query("n"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
				return
			}
			limit = min(n, maxRecordLimit)
		}
		rows, err := records.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": rows})
	}
}
