package exception

import "errors"

var (
	ErrVenue                = errors.New("venue: request failed")
	ErrVenueStatusError     = errors.New("venue: status error")
	ErrVenueTimeout         = errors.New("venue: call timed out")
	ErrVenueUnknownOrder    = errors.New("venue: unknown order")
	ErrVenueNoPrice         = errors.New("venue: no price available")
	ErrVenueInsufficientBal = errors.New("venue: insufficient balance")
	ErrVenueNotCancelable   = errors.New("venue: order not cancelable")
	ErrVenueInjectedFault   = errors.New("venue: injected fault")
	ErrVenueEmptyBaseURL    = errors.New("venue: empty base url")
)
