package errors

import (
	"errors"
	"testing"
)

var errCause = errors.New("venue unreachable")

func TestWrap(t *testing.T) {
	err := Wrap(errCause, "create order")
	if err.Error() != "create order, err: venue unreachable" {
		t.Fatalf("error mismatch: %+v", err)
	}

	if !Is(err, errCause) {
		t.Fatalf("wrapped error should match its cause")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Fatal("wrapping nil should stay nil")
	}

	if Wrapf(nil, "order %s", "k1") != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errCause, "cancel order %s", "order_1")
	if err.Error() != "cancel order order_1, err: venue unreachable" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestJoin(t *testing.T) {
	if Join(nil, nil) != nil {
		t.Fatal("joining nil errors should stay nil")
	}

	other := errors.New("bus closed")
	err := Join(errCause, other)
	if !Is(err, errCause) || !Is(err, other) {
		t.Fatalf("joined error should match every cause: %+v", err)
	}
}
