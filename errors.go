package dgsched

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrInvalidArgument is returned for negative delays
	// and non-positive intervals.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidAddress is returned when a destination isn't a valid
	// unicast or multicast address with a non-zero port.
	ErrInvalidAddress = errors.New("invalid destination address")

	// ErrShutdown is returned by operations invoked after Shutdown.
	ErrShutdown = errors.New("scheduler shut down")
)

// SendError is a dispatch-time send failure of a queued task.
// It's reported to the logger and the error handler only,
// the scheduler never retries.
type SendError struct {
	Ref         Ref
	ID          TaskID
	Destination netip.AddrPort
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending task %s to %s: %v", e.Ref, e.Destination, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func validateDestination(dst netip.AddrPort) error {
	if !dst.IsValid() || dst.Addr().IsUnspecified() || dst.Port() == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, dst)
	}
	return nil
}
