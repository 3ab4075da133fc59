package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alers-api/internal/service"
)

// unobserved routes are health checks and scrapes that would drown real traffic.
var unobserved = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics records request count and latency per route template. Streamed
// turns are observed when the stream closes, so their latency covers the
// full reply.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if _, skip := unobserved[path]; skip {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
