package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// LoggingMiddleware logs every request/response pair with its headers,
// status and processing time. Errors attached by handlers are included.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Info()
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}
		if sub, ok := GetSubject(c); ok {
			event = event.Str("subject", sub)
		}

		event.
			Str("method", c.Request.Method).
			Str("url", c.Request.URL.String()).
			Dict("headers", headerDict(c.Request.Header)).
			Int("status_code", status).
			Dict("response_headers", headerDict(c.Writer.Header())).
			Dur("process_time", elapsed).
			Str("request_id", GetRequestID(c)).
			Msg("http_request")
	}
}

func headerDict(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for name, values := range h {
		if redactedHeaders[name] {
			d = d.Str(name, "[redacted]")
			continue
		}
		d = d.Str(name, strings.Join(values, ", "))
	}
	return d
}

// Recovery turns a panic into a logged 500 response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error().
			Interface("panic", recovered).
			Str("method", c.Request.Method).
			Str("url", c.Request.URL.String()).
			Str("request_id", GetRequestID(c)).
			Msg("unhandled panic")
		RespondWithError(c, http.StatusInternalServerError, "Internal Server Error")
		c.Abort()
	})
}
