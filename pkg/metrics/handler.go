package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Instrumented wraps a gin handler to record request count, latency and
// error status codes under the given endpoint label.
func Instrumented(endpoint string, handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		APIEndpointRequests.WithLabelValues(endpoint).Inc()
		handler(c)
		APIEndpointDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if status := c.Writer.Status(); status >= 400 {
			APIEndpointErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		}
	}
}
