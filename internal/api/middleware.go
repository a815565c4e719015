package api

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haasonsaas/corpus/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// quietPaths are probe and scrape endpoints kept out of the request log.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-User-ID", requestIDHeader},
		ExposeHeaders:   []string{"Content-Length", requestIDHeader},
		MaxAge:          12 * time.Hour,
	})
}

// requestIDMiddleware accepts a caller-supplied X-Request-ID or mints one,
// echoes it on the response and threads it through the request context so
// every log line of the request carries it.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Header(requestIDHeader, rid)
		ctx := observability.AddRequestID(c.Request.Context(), rid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())
		}
		if quietPaths[c.Request.URL.Path] {
			return
		}
		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", c.Writer.Size(),
		)
	}
}
