package session

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-meri/pkg/audioio"
)

// Sentinel errors for the session package.
var (
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("session: transport failure")

	// ErrNoSession is returned by Manager.Close when nothing is open.
	ErrNoSession = errors.New("session: no active session")
)

// Transport operations reported in TransportError.
const (
	OpDial    = "dial"
	OpSend    = "send"
	OpReceive = "receive"
)

// TransportError reports a channel that could not be opened, closed
// unexpectedly, or failed a send or receive.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UserMessage maps a fatal session error to the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var derr *audioio.DeviceAcquisitionError
	switch {
	case errors.As(err, &derr):
		return derr.Role + " unavailable"
	case errors.Is(err, ErrTransport):
		return "connection interrupted"
	default:
		return err.Error()
	}
}

// classify wraps an inbound failure so the session always ends with a
// device or transport error.
func classify(err error) error {
	if err == nil {
		err = errors.New("channel closed")
	}
	if errors.Is(err, audioio.ErrDeviceUnavailable) || errors.Is(err, ErrTransport) {
		return err
	}
	return &TransportError{Op: OpReceive, Err: err}
}
