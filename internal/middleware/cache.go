package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheControl lets shared caches keep safe reads, such as the public
// catalog, for maxAgeSeconds. Other methods get no-store.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	value := fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAgeSeconds, maxAgeSeconds)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			c.Header("Cache-Control", value)
			c.Header("Vary", "Accept-Encoding")
		default:
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}

// NoStore marks responses that carry per-user attempt state as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
