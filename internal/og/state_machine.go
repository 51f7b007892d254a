package og

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"oms/internal/errors"
	"oms/internal/obs"
	"oms/internal/schema"
	"oms/pkg/exception"
)

// DefaultMaxRetries is the retry ceiling used when none is configured.
const DefaultMaxRetries = 3

// OrderState tracks the lifecycle of an order.
type OrderState string

const (
	OrderStatePending         OrderState = "PENDING"
	OrderStateSent            OrderState = "SENT"
	OrderStateAccepted        OrderState = "ACCEPTED"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCanceled        OrderState = "CANCELED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateError           OrderState = "ERROR"
)

func (s OrderState) String() string {
	return string(s)
}

// IsTerminal reports whether no further venue transition is expected.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// Retryable reports whether ShouldRetry may grant a token in this state.
func (s OrderState) Retryable() bool {
	return s == OrderStateError || s == OrderStateRejected
}

var allowedEdges = map[OrderState][]OrderState{
	OrderStatePending:         {OrderStateSent, OrderStateRejected, OrderStateError},
	OrderStateSent:            {OrderStateAccepted, OrderStateRejected, OrderStateError, OrderStatePartiallyFilled, OrderStateFilled, OrderStateCanceled},
	OrderStateAccepted:        {OrderStatePartiallyFilled, OrderStateFilled, OrderStateCanceled, OrderStateError},
	OrderStatePartiallyFilled: {OrderStateFilled, OrderStateCanceled, OrderStateError},
}

// CanTransition reports whether from -> to is in the allowed-edge table.
// Observing the same state again is always allowed.
func CanTransition(from, to OrderState) bool {
	if from == to {
		return true
	}
	for _, s := range allowedEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

func isRetryEdge(from, to OrderState) bool {
	return from.Retryable() && (to == OrderStatePending || to == OrderStateSent)
}

// MapVenueStatus normalizes a venue status string. A closed order counts as
// FILLED only when the filled quantity reaches the requested amount.
func MapVenueStatus(status string, filled, amount decimal.Decimal) OrderState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "new", "open":
		return OrderStateSent
	case "accepted":
		return OrderStateAccepted
	case "closed":
		if amount.IsZero() || filled.GreaterThanOrEqual(amount) {
			return OrderStateFilled
		}
		return OrderStatePartiallyFilled
	case "filled":
		return OrderStateFilled
	case "partially_filled":
		return OrderStatePartiallyFilled
	case "canceled", "cancelled", "expired":
		return OrderStateCanceled
	case "rejected":
		return OrderStateRejected
	default:
		return OrderStateError
	}
}

// Entry is one observation in an order's history.
type Entry struct {
	State     OrderState     `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    schema.Payload `json:"detail,omitempty"`
	// Anomaly marks an observation outside the allowed-edge table.
	Anomaly bool `json:"anomaly,omitempty"`
}

// Record is a point-in-time copy of an order's lifecycle.
type Record struct {
	Key     string     `json:"key"`
	State   OrderState `json:"state"`
	History []Entry    `json:"history"`
	Retries int        `json:"retries"`
}

type record struct {
	mu           sync.Mutex
	key          string
	state        OrderState
	history      []Entry
	retries      int
	retryGranted bool
}

func (r *record) snapshot() Record {
	history := make([]Entry, len(r.history))
	for i, e := range r.history {
		history[i] = e
		history[i].Detail = e.Detail.Clone()
	}
	return Record{Key: r.key, State: r.state, History: history, Retries: r.retries}
}

// Option customizes a StateMachine.
type Option func(*StateMachine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *StateMachine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics counts anomalies and granted retries.
func WithMetrics(metrics *obs.Metrics) Option {
	return func(m *StateMachine) {
		m.metrics = metrics
	}
}

// StateMachine is the authoritative, append-only record of order transitions.
// Records are created on first observation of a key and never deleted.
type StateMachine struct {
	mu         sync.RWMutex
	records    map[string]*record
	maxRetries int
	now        func() time.Time
	metrics    *obs.Metrics
}

// NewStateMachine creates an empty state machine allowing maxRetries retry tokens per key.
func NewStateMachine(maxRetries int, opts ...Option) (*StateMachine, error) {
	if maxRetries < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidConfig, "negative retry ceiling %d", maxRetries)
	}
	m := &StateMachine{
		records:    make(map[string]*record),
		maxRetries: maxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MaxRetries returns the retry ceiling.
func (m *StateMachine) MaxRetries() int {
	return m.maxRetries
}

func (m *StateMachine) lookup(key string) (*record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key]
	return r, ok
}

// load returns the record for key, creating it in PENDING when absent.
func (m *StateMachine) load(key string) (*record, bool) {
	if r, ok := m.lookup(key); ok {
		return r, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[key]; ok {
		return r, false
	}
	r := &record{
		key:   key,
		state: OrderStatePending,
		history: []Entry{{
			State:     OrderStatePending,
			Timestamp: m.now(),
		}},
	}
	m.records[key] = r
	return r, true
}

// Initialize creates a PENDING record for key. It reports whether a record was created.
func (m *StateMachine) Initialize(key string) bool {
	_, created := m.load(key)
	return created
}

// Transition appends (state, now, detail) to the key's history, initializing
// the record first when the key is unknown.
//
// Edges outside the allowed table are still appended but flagged as anomalies.
// An anomalous observation never moves a record out of a terminal state.
func (m *StateMachine) Transition(key string, state OrderState, detail schema.Payload) Entry {
	r, _ := m.load(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.state
	retry := r.retryGranted && isRetryEdge(from, state)
	anomaly := !retry && !CanTransition(from, state)

	ts := m.now()
	if last := r.history[len(r.history)-1].Timestamp; ts.Before(last) {
		ts = last
	}
	entry := Entry{
		State:     state,
		Timestamp: ts,
		Detail:    detail.Clone(),
		Anomaly:   anomaly,
	}
	r.history = append(r.history, entry)

	if retry {
		r.retryGranted = false
	}
	if anomaly {
		m.metrics.IncAnomaly()
		if from.IsTerminal() {
			logs.Warnf("og: ignored regression %s -> %s for order %s", from, state, key)
			return entry
		}
		logs.Warnf("og: anomalous transition %s -> %s for order %s", from, state, key)
	}
	r.state = state
	return entry
}

// Reconcile maps a venue status report into an OrderState and records it.
// The detail payload carries the venue's filled and amount quantities.
func (m *StateMachine) Reconcile(key, venueStatus string, detail schema.Payload) OrderState {
	state := MapVenueStatus(venueStatus, detail.Decimal(schema.FieldFilled), detail.Decimal(schema.FieldAmount))
	if detail == nil {
		detail = schema.Payload{}
	} else {
		detail = detail.Clone()
	}
	detail[schema.FieldStatus] = venueStatus
	m.Transition(key, state, detail)
	return state
}

// ShouldRetry consumes one retry token. It is true only while the record is
// in ERROR or REJECTED and fewer than MaxRetries tokens were granted.
func (m *StateMachine) ShouldRetry(key string) bool {
	r, ok := m.lookup(key)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Retryable() || r.retries >= m.maxRetries {
		return false
	}
	r.retries++
	r.retryGranted = true
	m.metrics.IncRetry()
	return true
}

// State returns the current state of key.
func (m *StateMachine) State(key string) (OrderState, bool) {
	r, ok := m.lookup(key)
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, true
}

// History returns a copy of the key's history, oldest first.
func (m *StateMachine) History(key string) []Entry {
	rec, ok := m.Record(key)
	if !ok {
		return nil
	}
	return rec.History
}

// RetryCount returns the number of retry tokens granted for key.
func (m *StateMachine) RetryCount(key string) int {
	r, ok := m.lookup(key)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

// Record returns a copy of the full record for key.
func (m *StateMachine) Record(key string) (Record, bool) {
	r, ok := m.lookup(key)
	if !ok {
		return Record{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), true
}

// Keys returns every known order key in lexical order.
func (m *StateMachine) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
