// Package http exposes the read-only operational endpoints of the relay.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	relayApp "github.com/orris-inc/ticketwatch/internal/application/relay"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

// StatusProvider yields the relay's current tracking snapshot.
type StatusProvider interface {
	Status(ctx context.Context) (relayApp.StatusSnapshot, error)
}

// NewRouter builds the ops router: a liveness probe and a tracking-state
// snapshot. There is no mutating surface.
func NewRouter(provider StatusProvider, log logger.Interface) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		snapshot, err := provider.Status(c.Request.Context())
		if err != nil {
			log.Errorw("failed to assemble status snapshot", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read relay state"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})

	return router
}
