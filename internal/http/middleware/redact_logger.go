// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access logger used in production. Deposit intake
// carries player emails and phone numbers and webhook deliveries carry
// provider signatures, so nothing is logged verbatim:
//
//   - request and response bodies are never logged
//   - emails, phone numbers and UUIDs are replaced in query strings and headers
//   - credential and signature headers are masked entirely
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SignatureHeaders are the webhook authentication headers of every
// supported provider.
var SignatureHeaders = []string{
	"Stripe-Signature",
	"Webhook-Signature",
	"Wert-Signature",
	"X-Paidly-Signature",
	"Vert-Signature",
}

// RedactOptions adds header names (case-insensitive) to mask on top of
// Authorization, Cookie, Set-Cookie and SignatureHeaders.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so hex runs inside UUIDs never match
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact scrubs UUIDs, then emails, then phone numbers from s. UUIDs go
// first so the phone pattern cannot eat their digit groups.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger logs one line per request with scrubbed query and headers
// and attaches a request-scoped logger (see LoggerFrom). Level follows the
// status: error for 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range append(append([]string{}, SignatureHeaders...), opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = Redact(strings.Join(vv, ", "))
		}

		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.Writer.Header().Get(requestIDHeader)
		}
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		attachLogger(c, log.With().Str("request_id", reqID).Str("path", path).Logger())

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", Redact(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
