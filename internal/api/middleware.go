// Package api mounts the RPC surface (spec §6.1) on a Gin router:
// ExecuteTransaction, PropagateUpdate, SyncUpdates, and GetNodeStatus.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is a Gin middleware that logs every request through a structured
// logrus entry instead of the standard library logger, tagging each
// request with a correlation ID so a propagation chain across several
// nodes can be followed in their combined logs.
func Logger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)

		c.Next()

		log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
		}).Info("request handled")
	}
}

// Recovery turns a panicking handler into a structured log line and a
// 500 instead of crashing the node's RPC loop.
func Recovery(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("panic recovered in handler")
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
