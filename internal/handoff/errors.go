package handoff

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when no response is ready within the exchange timeout.
	ErrTimeout = errors.New("handoff: timed out waiting for agent response")

	// ErrBusy is returned under the reject policy while another exchange holds the mailbox.
	ErrBusy = errors.New("handoff: mailbox busy with another exchange")

	// ErrSuperseded is returned when the request slot holds another exchange's
	// utterance while waiting or once the response is ready, or is empty at that
	// point and Config.AcceptAcked is off.
	ErrSuperseded = errors.New("handoff: request superseded by another exchange")

	// ErrResponseVanished is returned when the payload is missing after the
	// ready marker was observed. It is never retried.
	ErrResponseVanished = errors.New("handoff: response payload missing after ready marker")

	// ErrOutOfOrder is returned by CheckReadyOrdering for a producer that
	// marks a response ready before its payload is written.
	ErrOutOfOrder = errors.New("handoff: ready marker written before payload was complete")
)

// Outcome labels used for metrics, logs and the journal.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeTimedOut   = "timed_out"
	OutcomeBusy       = "busy"
	OutcomeSuperseded = "superseded"
	OutcomeVanished   = "vanished"
	OutcomeCancelled  = "cancelled"
	OutcomeFailed     = "failed"
)

// Outcome maps an Exchange error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrTimeout):
		return OutcomeTimedOut
	case errors.Is(err, ErrBusy):
		return OutcomeBusy
	case errors.Is(err, ErrSuperseded):
		return OutcomeSuperseded
	case errors.Is(err, ErrResponseVanished):
		return OutcomeVanished
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
