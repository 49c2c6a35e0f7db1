package channelmgr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, matching spec's channel error taxonomy: CantSend,
// RecvError, NotImplemented, State. Each is a terminal outcome for the
// operation in which it arises; none is retried automatically.
var (
	// ErrCantSend indicates a message could not be handed to the router.
	ErrCantSend = errors.New("channelmgr: cannot send to router")
	// ErrRecv indicates a malformed or unprocessable inbound message.
	ErrRecv = errors.New("channelmgr: receive error")
	// ErrNotImplemented indicates an unsupported message or command kind.
	ErrNotImplemented = errors.New("channelmgr: not implemented")
	// ErrState indicates an operation was attempted in an invalid protocol
	// state (e.g. a handshake message on an already-completed channel).
	ErrState = errors.New("channelmgr: invalid state")
)

// InvalidParamError reports that a command carried a parameter the manager
// rejects outright, tagged with the index of the offending parameter so
// callers can distinguish which field was at fault.
type InvalidParamError struct {
	Index int
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("channelmgr: invalid parameter at index %d", e.Index)
}
