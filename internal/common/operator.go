package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const operatorKey ctxKey = "desk/operator"

// OperatorHeader names the billing clerk at the desk. It is informational only.
const OperatorHeader = "X-Operator"

// WithOperator stores the desk operator on the provided context.
func WithOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operatorKey, name)
}

// Operator extracts the desk operator from the context if present.
func Operator(ctx context.Context) (string, bool) {
	v := ctx.Value(operatorKey)
	if v == nil {
		return "", false
	}
	name, ok := v.(string)
	return name, ok && name != ""
}

// OperatorMiddleware copies the X-Operator header onto the request context.
func OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := strings.TrimSpace(r.Header.Get(OperatorHeader)); name != "" {
			r = r.WithContext(WithOperator(r.Context(), name))
		}
		next.ServeHTTP(w, r)
	})
}
