package requestid

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const (
	ginKey           = "request_id"
	maxInboundLength = 128
)

type ctxKey struct{}

// Middleware tags each request with an id, reusing a sane inbound X-Request-ID.
// The id is available from the gin context and from the request's context.Context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(Header))
		if reqID == "" || len(reqID) > maxInboundLength || strings.ContainsAny(reqID, "\r\n") {
			reqID = uuid.NewString()
		}

		c.Set(ginKey, reqID)
		c.Request = c.Request.WithContext(WithValue(c.Request.Context(), reqID))
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request id stored in the gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(ginKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithValue returns a copy of ctx carrying id.
func WithValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id carried by ctx, if any.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
