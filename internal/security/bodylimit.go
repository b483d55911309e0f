package security

import (
	"net/http"

	"github.com/noah-isme/backend-klinik/internal/common"
)

// BodyLimit caps request bodies at Max bytes. A declared Content-Length over
// the cap is refused up front; chunked bodies are cut off while streaming and
// common.DecodeJSON turns the overflow into the same 413.
type BodyLimit struct {
	Max int64
}

// Middleware wraps next.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]any{"maxBytes": b.Max})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
