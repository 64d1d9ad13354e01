package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

type policy struct {
	allowAll bool
	origins  map[string]struct{}
}

// New builds a CORS middleware from an origin allow-list. An empty list
// allows every origin, which only the development config uses.
func New(allowedOrigins []string) gin.HandlerFunc {
	p := policy{
		allowAll: len(allowedOrigins) == 0,
		origins:  make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		p.origins[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case origin != "" && p.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
		case origin == "" && p.allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (p policy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[strings.TrimRight(origin, "/")]
	return ok
}
