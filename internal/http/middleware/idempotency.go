// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe methods and marks
// requests that replay a previously completed operation. The middleware only
// annotates the request context; handlers decide how a replay is served, and
// the rate limiter reads the bypass flag so replays never consume tokens.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey names the request header clients send to deduplicate
// retries of unsafe operations. The value must be stable across retries of
// the same semantic operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys for idempotency state. Unexported; read them through the
// accessor helpers below.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // true to skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
// Handlers should use this rather than reading the header again.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request duplicates an already completed
// operation for the same (user, test, key) tuple.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation. TTL enforcement lives in
// the lookup implementation, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to an RFC 7230-like
	// token pattern: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a still-valid completed result exists for
// (userID, testID, key) at the given time. Lookup errors must not block the
// request; return an error only for diagnostics.
type IdempotencyLookup func(ctx context.Context, userID, testID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes it in the context, and consults lookup for a prior completed
// request. On a hit it sets the replay and rate-bypass flags; it never writes
// a cached payload itself.
//
// Requests without the header pass through untouched. A malformed header is
// rejected with 400 before any handler runs.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			uid := userIDFromCtx(c)
			testID := testIDFromRequest(c)
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), uid, testID, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// RequestIdentity returns the (userID, testID) tuple scoping idempotency
// keys for this request. Handlers record served keys under this tuple so it
// always matches what IdempotencyValidator looks up.
func RequestIdentity(c *gin.Context) (userID, testID string) {
	return userIDFromCtx(c), testIDFromRequest(c)
}

// testIDFromRequest resolves the test id that scopes an idempotency key:
// the :test_id path parameter when the route carries one, otherwise the
// X-Test-ID header (the session endpoints carry the test id in the JSON
// body, which is not consulted here).
func testIDFromRequest(c *gin.Context) string {
	if id := c.Param("test_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Test-ID")
}

// userIDFromCtx extracts the user identity set by upstream auth middleware,
// falling back to "demo-user" when the service runs without auth.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "demo-user"
}
