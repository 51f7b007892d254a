package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.ObservePublish("order.created")
	m.ObservePublish("order.created")
	m.IncOutcome(OutcomeRejected)
	m.IncRiskReject("position_size")
	m.IncDeliveryDrop()
	m.IncAnomaly()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.PublishCounts["order.created"])
	assert.Equal(t, uint64(1), snap.OutcomeCounts[OutcomeRejected])
	assert.Equal(t, uint64(1), snap.RiskRejects["position_size"])
	assert.Equal(t, uint64(1), snap.DeliveryDrops)
	assert.Equal(t, uint64(1), snap.Anomalies)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObservePublish("x.y")
	m.IncRetry()
	m.ObserveVenue(time.Millisecond)
	assert.Empty(t, m.Snapshot().PublishCounts)
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			l.Observe(d)
		}(time.Duration(i) * time.Microsecond)
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, uint64(100), snap.Count)
	assert.Equal(t, time.Microsecond, snap.Min)
	assert.Equal(t, 100*time.Microsecond, snap.Max)
}
