package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-klinik/internal/common"
)

// Rule is a budget of Max calls per Window.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) enabled() bool { return r.Max > 0 && r.Window > 0 }

// Decision is the outcome of counting one call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts one call for key against rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Handler guards a route with a Limiter. Limiter failures let the request
// through and are passed to OnError.
type Handler struct {
	Limiter Limiter
	Rule    Rule
	Key     func(*http.Request) string
	OnError func(error)
}

// KeyByOperator keys requests by billing operator, falling back to the client address.
func KeyByOperator(r *http.Request) string {
	if op, ok := common.Operator(r.Context()); ok {
		return "op:" + op
	}
	return "ip:" + common.ClientIP(r)
}

// Middleware wraps next.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || !h.Rule.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Key
		if keyFn == nil {
			keyFn = KeyByOperator
		}
		d, err := h.Limiter.Allow(r.Context(), keyFn(r), h.Rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.Rule.Max))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
		hdr.Set("Retry-After", strconv.Itoa(max(wait, 1)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", map[string]any{
			"limit":     h.Rule.Max,
			"windowSec": int(h.Rule.Window.Seconds()),
		})
	})
}
