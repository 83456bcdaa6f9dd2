package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"qr-cipher-bot/internal/metrics"
)

// Metrics records Prometheus HTTP metrics, labelled by route pattern so
// unknown paths do not create new series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		metrics.IncInFlight()
		defer metrics.DecInFlight()

		start := time.Now()
		c.Next()

		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
