package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPObs instruments the router with an otelhttp server span and request metrics.
// Either part may be switched off.
type HTTPObs struct {
	Metrics *HTTPMetrics
	Tracing bool
}

// Middleware must be installed with Router.Use so the chi route pattern is known once
// the request has been served.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		if o.Metrics != nil {
			o.Metrics.InFlight.Inc()
			defer o.Metrics.InFlight.Dec()
		}

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		if o.Metrics != nil {
			status := strconv.Itoa(statusOf(ww))
			o.Metrics.Requests.WithLabelValues(r.Method, route, status).Inc()
			o.Metrics.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
	if !o.Tracing {
		return inner
	}
	return otelhttp.NewHandler(inner, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path }),
	)
}

// routePattern returns the matched chi pattern, or "unmatched" for 404s so paths with
// ids never become label values.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
