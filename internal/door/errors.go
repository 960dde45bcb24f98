package door

import (
	"errors"
	"fmt"
)

// Domain errors for the door package.
//
// Callers match them with errors.Is:
//
//	if errors.Is(err, door.ErrRejected) {
//	    // command refused, door state unchanged
//	}
var (
	// ErrRejected is matched by every command rejection. Use errors.As with
	// *RejectedError to read the reason code.
	ErrRejected = errors.New("door: command rejected")

	// ErrUnknownAction is returned when a command carries an action the
	// machine does not recognise.
	ErrUnknownAction = errors.New("door: unknown command action")

	// ErrStopped is returned when the machine's control loop has exited.
	ErrStopped = errors.New("door: machine stopped")
)

// RejectedError is returned by SubmitCommand when a command is refused.
// The door's state is unchanged and the actuator was not touched.
type RejectedError struct {
	Action Action
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("door: command %s rejected: %s", e.Action, e.Reason)
}

// Is reports true for ErrRejected so callers can match any rejection
// without caring about the reason.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
