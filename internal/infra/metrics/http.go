package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, rateLimitTriggeredTotal, imageSearchTotal) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_http_requests_total",
			Help: "HTTP requests served by the API by route and status code.",
		},
		[]string{"route", "code"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_create_rate_limited_total",
			Help: "Total number of job submissions rejected by the rate limiter.",
		},
	)

	imageSearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_search_requests_total",
			Help: "Image provider searches by provider and result.",
		},
		[]string{"provider", "result"}, // result: ok|empty|error
	)
)

func IncHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncRateLimitTriggered() { rateLimitTriggeredTotal.Inc() }

func IncImageSearch(provider, result string) {
	imageSearchTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}
