package order

import (
	"fmt"

	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/schema"
	"oms/pkg/exception"
)

// Outcome tells apart the results a caller must handle differently.
type Outcome string

const (
	OutcomeSubmitted  Outcome = obs.OutcomeSubmitted
	OutcomeRejected   Outcome = obs.OutcomeRejected
	OutcomeFailed     Outcome = obs.OutcomeFailed
	OutcomeInvalid    Outcome = obs.OutcomeInvalid
	OutcomeNotRunning Outcome = obs.OutcomeNotRunning
	OutcomeCanceled   Outcome = obs.OutcomeCanceled
)

// Result is returned by every pipeline operation. It is never empty: Outcome
// is always set and Key names the order it refers to.
type Result struct {
	Outcome Outcome           `json:"outcome"`
	Key     string            `json:"order_id"`
	State   og.OrderState     `json:"state,omitempty"`
	Order   schema.VenueOrder `json:"order"`
	Reason  string            `json:"reason,omitempty"`
}

// Submitted reports whether the venue accepted the order.
func (r Result) Submitted() bool {
	return r.Outcome == OutcomeSubmitted
}

// Status is the normalized view returned by GetOrderStatus.
type Status struct {
	Key   string            `json:"order_id"`
	State og.OrderState     `json:"state"`
	Order schema.VenueOrder `json:"order"`
}

// VenueError reports an adapter failure. It matches both exception.ErrVenue
// and the adapter's own error with errors.Is.
type VenueError struct {
	Op  string
	Key string
	Err error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("order: venue %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *VenueError) Unwrap() []error {
	return []error{exception.ErrVenue, e.Err}
}
