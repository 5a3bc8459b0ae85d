package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"strings"
	"time"
)

// ResultSuccess labels the deployments that went live.
const ResultSuccess = "success"

var (
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_deployments_total",
		Help: "Total number of finished deployments by site and result",
	}, []string{"site", "result"})

	DeploymentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbit_deployment_duration_seconds",
		Help:    "Duration of deployments from start to the terminal result",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"site"})

	DeploymentsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orbit_deployments_in_progress",
		Help: "Current number of running deployments",
	})
)

// DeploymentStarted records a deployment that began running.
func DeploymentStarted() {
	DeploymentsInProgress.Inc()
}

// DeploymentFinished records the result of a deployment. An empty result means success.
func DeploymentFinished(site string, result string, duration time.Duration) {
	label := strings.TrimSpace(site)
	if label == "" {
		label = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	DeploymentsInProgress.Dec()
	DeploymentsTotal.WithLabelValues(label, result).Inc()
	DeploymentDuration.WithLabelValues(label).Observe(duration.Seconds())
}
