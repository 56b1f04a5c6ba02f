package browser

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed    = errors.New("browser session closed")
	ErrConnectionLost   = errors.New("browser connection lost")
	ErrOperationTimeout = errors.New("operation timeout")
	ErrSelectorTimeout  = errors.New("selector wait timeout")
)

// ProtocolError wraps errors reported by the remote control protocol.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%d]: %s", e.Code, e.Message)
}

// IsConnectionError returns true if the error indicates a lost connection.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrSessionClosed)
}
