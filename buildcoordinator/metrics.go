// Coordinator metrics: a single docker/go-metrics namespace registered
// with the prometheus default registerer, plus one metric registered
// directly against prometheus/client_golang for per-phase duration
// summaries that a plain go-metrics Timer can't express.
package buildcoordinator

import (
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// namespace is a single go-metrics Namespace under a fixed prefix,
// registered with the prometheus default registerer.
var namespace = metrics.NewNamespace("wheelcore", "buildcoordinator", nil)

func init() {
	metrics.Register(namespace)
	prometheus.MustRegister(phaseDuration)
}

var (
	inFlightGauge      = namespace.NewGauge("sandboxes_in_flight", "number of sandboxes currently being provisioned", metrics.Total)
	cacheHitCounter    = namespace.NewCounter("cache_hits", "binary-archive cache hits", metrics.Total)
	cacheMissCounter   = namespace.NewCounter("cache_misses", "binary-archive cache misses", metrics.Total)
	buildDuration      = namespace.NewTimer("build_duration_seconds", "build duration")
	preservedSandboxes = namespace.NewGauge("preserved_sandboxes", "sandboxes preserved after a failed build", metrics.Total)

	// phaseDuration breaks build duration down per sandbox phase
	// (WheelMetadata vs Wheel), registered directly against
	// client_golang rather than through the go-metrics namespace since
	// per-label summaries aren't one of go-metrics' metric kinds.
	phaseDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "wheelcore",
		Subsystem: "buildcoordinator",
		Name:      "phase_duration_seconds",
		Help:      "sandbox command duration by phase",
	}, []string{"phase"})
)

// recordPhaseDuration observes how long a named sandbox phase took.
func recordPhaseDuration(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// recordCacheHit increments the cache hit counter.
func recordCacheHit() { cacheHitCounter.Inc(1) }

// recordCacheMiss increments the cache miss counter.
func recordCacheMiss() { cacheMissCounter.Inc(1) }

// recordProvisioningStart/End bracket a provisioning attempt for the
// in-flight gauge.
func recordProvisioningStart() { inFlightGauge.Inc(1) }
func recordProvisioningEnd()   { inFlightGauge.Dec(1) }

// recordBuildDuration observes how long a sandbox command phase took.
func recordBuildDuration(d time.Duration) { buildDuration.Update(d) }

// recordSandboxPreserved tracks the preserved-sandbox gauge. Nothing in
// this coordinator ever un-preserves a sandbox once OnFailure=Preserve
// has detached it, so there is no corresponding decrement: the gauge
// only ever grows, mirroring the preserved_sandboxes set it counts.
func recordSandboxPreserved() { preservedSandboxes.Inc(1) }
