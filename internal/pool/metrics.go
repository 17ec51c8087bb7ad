package pool

import (
	"time"

	"github.com/hivegate/hivegate/pkg/models"
)

// latencySmoothing is the EMA weight given to the newest latency sample.
const latencySmoothing = 0.2

// recordOutcome folds one task outcome into an agent's rolling metrics.
func recordOutcome(metrics *models.Metrics, success bool, latency time.Duration) {
	if success {
		metrics.Completed++
	} else {
		metrics.Failed++
	}
	if metrics.AvgLatency == 0 {
		metrics.AvgLatency = latency
	} else {
		metrics.AvgLatency = time.Duration(
			(1-latencySmoothing)*float64(metrics.AvgLatency) + latencySmoothing*float64(latency))
	}
	refreshRates(metrics)
}

// refreshRates recomputes the derived rate figures from the raw counters.
func refreshRates(metrics *models.Metrics) {
	total := metrics.Completed + metrics.Failed
	if total == 0 {
		metrics.SuccessRate = 0
		metrics.ErrorRate = 0
		return
	}
	metrics.SuccessRate = float64(metrics.Completed) / float64(total)
	metrics.ErrorRate = float64(metrics.Failed) / float64(total)
}
