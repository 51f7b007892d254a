package obs

import (
	"sync"
	"sync/atomic"
	"time"
)

// Outcome labels used by the order pipeline.
const (
	OutcomeSubmitted  = "submitted"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
	OutcomeInvalid    = "invalid"
	OutcomeNotRunning = "not_running"
	OutcomeCanceled   = "canceled"
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	mu            sync.Mutex
	publishCounts map[string]uint64
	outcomeCounts map[string]uint64
	riskRejects   map[string]uint64

	deliveryDrops  uint64
	closedPublish  uint64
	handlerPanics  uint64
	anomalies      uint64
	retriesGranted uint64

	orderFlowLatency LatencyStats
	riskEvalLatency  LatencyStats
	venueLatency     LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	PublishCounts    map[string]uint64 `json:"publishCounts"`
	OutcomeCounts    map[string]uint64 `json:"outcomeCounts"`
	RiskRejects      map[string]uint64 `json:"riskRejects"`
	DeliveryDrops    uint64            `json:"deliveryDrops"`
	ClosedPublish    uint64            `json:"closedPublish"`
	HandlerPanics    uint64            `json:"handlerPanics"`
	Anomalies        uint64            `json:"anomalies"`
	RetriesGranted   uint64            `json:"retriesGranted"`
	OrderFlowLatency LatencySnapshot   `json:"orderFlowLatency"`
	RiskEvalLatency  LatencySnapshot   `json:"riskEvalLatency"`
	VenueLatency     LatencySnapshot   `json:"venueLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		publishCounts: make(map[string]uint64),
		outcomeCounts: make(map[string]uint64),
		riskRejects:   make(map[string]uint64),
	}
}

// ObservePublish counts a successful publish on topic.
func (m *Metrics) ObservePublish(topic string) {
	if m == nil {
		return
	}
	m.inc(m.publishCounts, topic)
}

// IncOutcome counts a pipeline outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.inc(m.outcomeCounts, outcome)
}

// IncRiskReject counts a rejection by rule name.
func (m *Metrics) IncRiskReject(rule string) {
	if m == nil {
		return
	}
	m.inc(m.riskRejects, rule)
}

func (m *Metrics) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

// IncDeliveryDrop records a delivery dropped because a subscriber queue was full.
func (m *Metrics) IncDeliveryDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveryDrops, 1)
}

// IncClosedPublish records a publish attempt on a closed channel.
func (m *Metrics) IncClosedPublish() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.closedPublish, 1)
}

// IncHandlerPanic records a recovered subscriber panic.
func (m *Metrics) IncHandlerPanic() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.handlerPanics, 1)
}

// IncAnomaly records a state transition outside the allowed-edge table.
func (m *Metrics) IncAnomaly() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.anomalies, 1)
}

// IncRetry records a granted retry token.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.retriesGranted, 1)
}

// ObserveOrderFlow measures end-to-end order processing latency.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// ObserveVenue measures a single venue call.
func (m *Metrics) ObserveVenue(d time.Duration) {
	if m == nil {
		return
	}
	m.venueLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	publish := copyCounts(m.publishCounts)
	outcomes := copyCounts(m.outcomeCounts)
	rejects := copyCounts(m.riskRejects)
	m.mu.Unlock()

	return Snapshot{
		PublishCounts:    publish,
		OutcomeCounts:    outcomes,
		RiskRejects:      rejects,
		DeliveryDrops:    atomic.LoadUint64(&m.deliveryDrops),
		ClosedPublish:    atomic.LoadUint64(&m.closedPublish),
		HandlerPanics:    atomic.LoadUint64(&m.handlerPanics),
		Anomalies:        atomic.LoadUint64(&m.anomalies),
		RetriesGranted:   atomic.LoadUint64(&m.retriesGranted),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		VenueLatency:     m.venueLatency.Snapshot(),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
