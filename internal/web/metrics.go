package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - счетчики сервиса в формате Prometheus.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	postsCreated    prometheus.Counter
	commentsCreated prometheus.Counter
	followsCreated  prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yatube",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yatube",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		postsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "yatube",
			Name:      "posts_created_total",
			Help:      "Posts created through the site.",
		}),
		commentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "yatube",
			Name:      "comments_created_total",
			Help:      "Comments created through the site.",
		}),
		followsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "yatube",
			Name:      "follows_created_total",
			Help:      "New follow relations.",
		}),
	}
}

// Middleware считает запросы. Маршрут берется из chi после обработки,
// чтобы в метку попадал шаблон (/posts/{postID}, без завершающего слеша),
// а не сам адрес.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
