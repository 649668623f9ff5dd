// Package httpmw holds HTTP middleware shared by the service surfaces.
package httpmw

import (
	"context"
	"strings"

	"arbiter/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader     = "X-Trace-Id"
	traceIDContextKey = "trace_id"
)

// TraceContext ensures every request carries a trace id in the request
// context and the response headers, minting one when the caller sent none.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(traceIDHeader, traceID)

		c.Next()
	}
}
