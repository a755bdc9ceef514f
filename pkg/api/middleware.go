package api

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/system"
)

const (
	HeaderRequestID     = "X-Request-ID"
	ContextKeyRequestID = "requestId"
)

// incoming request IDs are accepted only if they look like one
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-_.]{8,64}$`)

// requestID tags every request with an ID, echoes it in the response and
// stores a request-scoped logger carrying it under system.ReqLoggerKey.
func requestID(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if !requestIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Set(system.ReqLoggerKey, log.With(
			"requestId", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		))
		c.Next()
	}
}

// limitBody caps request bodies; reads past the limit fail
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
