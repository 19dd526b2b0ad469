package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/program-enrollment-api/internal/service"
)

// Metrics records request duration and count, labelled by route template.
// Unmatched routes are grouped under "unmatched" to keep label cardinality bounded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
