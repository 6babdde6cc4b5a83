package middleware

import "github.com/gin-gonic/gin"

// IdentityKey is the gin context key holding the rate-limit subject.
const IdentityKey = "client_identity"

// IdentityHeader lets trusted frontends pin a stable client identity; the
// client IP is the fallback for anonymous traffic.
const IdentityHeader = "X-Client-ID"

// ClientIdentity resolves the admission-control identity for the request.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetHeader(IdentityHeader)
		if identity == "" {
			identity = c.ClientIP()
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// Identity reads the resolved identity from the gin context.
func Identity(c *gin.Context) string {
	if v, ok := c.Get(IdentityKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}
