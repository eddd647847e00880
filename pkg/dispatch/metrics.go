package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

var (
	inFlightAll  atomic.Int64
	registerOnce sync.Once
)

func observe(id op.ID, status Status, d time.Duration) {
	registerOnce.Do(func() {
		metrics.GetOrCreateGauge("ipfsbridge_dispatch_in_flight", func() float64 {
			return float64(inFlightAll.Load())
		})
	})
	metrics.GetOrCreateCounter(fmt.Sprintf(`ipfsbridge_dispatch_total{op=%q,status=%q}`, id, status)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`ipfsbridge_dispatch_duration_seconds{op=%q}`, id)).Update(d.Seconds())
}

// Count returns the number of dispatches of id that ended with status.
func Count(id op.ID, status Status) uint64 {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`ipfsbridge_dispatch_total{op=%q,status=%q}`, id, status)).Get()
}
