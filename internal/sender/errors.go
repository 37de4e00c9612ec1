package sender

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the context is cancelled. It is never
	// returned for a failed transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrRetriesExhausted is wrapped by *ExchangeError
	ErrRetriesExhausted = errors.New("no valid response after all attempts")

	// ErrInvalidArgument is wrapped by every validation failure
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransportClosed is returned when an operation starts on a closed transport
	ErrTransportClosed = errors.New("transport is not open")
)

// Stage identifies which exchange failed
type Stage string

const (
	StagePing Stage = "ping"
	StageInit Stage = "init"
	StageData Stage = "data"
)

// ExchangeError reports an exchange that got no matching response.
type ExchangeError struct {
	Stage    Stage
	Index    uint16 // frame index, data stage only
	Attempts int
}

func (e *ExchangeError) Error() string {
	if e.Stage == StageData {
		return fmt.Sprintf("%s frame %d: %v (%d attempts)", e.Stage, e.Index, ErrRetriesExhausted, e.Attempts)
	}
	return fmt.Sprintf("%s: %v (%d attempts)", e.Stage, ErrRetriesExhausted, e.Attempts)
}

func (e *ExchangeError) Unwrap() error {
	return ErrRetriesExhausted
}

// IsExchangeError checks if an error is an exhausted exchange
func IsExchangeError(err error) bool {
	var e *ExchangeError
	return errors.As(err, &e)
}

// Outcome is the terminal result of a Transfer or Ping
type Outcome int

const (
	Success Outcome = iota
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// OutcomeOf classifies the error returned by Transfer or Ping
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrCancelled):
		return Cancelled
	default:
		return Failed
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
