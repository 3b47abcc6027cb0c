package httpapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsi",
			Subsystem: "console",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsi",
			Subsystem: "console",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsi",
			Subsystem: "console",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"})

		r.connectedAgents = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsi",
			Subsystem: "console",
			Name:      "connected_agents",
			Help:      "Number of agents with a live websocket session",
		})

		r.agentEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsi",
			Subsystem: "console",
			Name:      "agent_events_total",
			Help:      "Count of event frames received from agents",
		}, []string{"type"})

		collectors := []prometheus.Collector{r.requestTotal, r.requestLatency, r.rateLimitHits, r.connectedAgents, r.agentEvents}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == r.rateLimitHits {
							r.rateLimitHits = v
						} else if collector == r.agentEvents {
							r.agentEvents = v
						} else {
							r.requestTotal = v
						}
					case *prometheus.HistogramVec:
						r.requestLatency = v
					case prometheus.Gauge:
						r.connectedAgents = v
					}
				}
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route}).Inc()
}

func (r *Router) recordAgentEvent(frameType string) {
	if !r.metricsInitialized {
		return
	}
	r.agentEvents.With(prometheus.Labels{"type": frameType}).Inc()
}

func (r *Router) setConnectedAgents(count int) {
	if !r.metricsInitialized {
		return
	}
	r.connectedAgents.Set(float64(count))
}
