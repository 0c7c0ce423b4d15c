// Package metrics collects and exposes Prometheus metrics for the
// HTTP surface, the cache layer and the auth flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and updates all application metrics. Counters
// are safe for concurrent use; the collector is shared across requests.
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	logins         prometheus.Counter
	loginFailures  prometheus.Counter
	registrations  prometheus.Counter
	tokenRefreshes prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "account_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_cache_hits_total",
			Help: "Cache lookups answered from Redis.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_cache_misses_total",
			Help: "Cache lookups that fell through to the database.",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_auth_logins_total",
			Help: "Successful logins.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_auth_login_failures_total",
			Help: "Rejected login attempts.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_auth_registrations_total",
			Help: "New user registrations.",
		}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_auth_token_refreshes_total",
			Help: "Access tokens minted from refresh tokens.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.cacheHits,
		c.cacheMisses,
		c.logins,
		c.loginFailures,
		c.registrations,
		c.tokenRefreshes,
	)
	return c
}

// RecordRequest records one handled HTTP request.
func (c *Collector) RecordRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCacheHit records a cache lookup served from the cache.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records a cache lookup that missed.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// RecordLogin records a successful login.
func (c *Collector) RecordLogin() { c.logins.Inc() }

// RecordLoginFailure records a rejected login attempt.
func (c *Collector) RecordLoginFailure() { c.loginFailures.Inc() }

// RecordRegistration records a completed registration.
func (c *Collector) RecordRegistration() { c.registrations.Inc() }

// RecordTokenRefresh records an access token issued via refresh.
func (c *Collector) RecordTokenRefresh() { c.tokenRefreshes.Inc() }

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
