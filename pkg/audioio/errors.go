package audioio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the audioio package.
var (
	// ErrDeviceUnavailable is matched by every *DeviceAcquisitionError.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")

	// ErrClosed is returned when using a device after Close.
	ErrClosed = errors.New("audioio: device closed")

	// ErrBackendUnsupported indicates the backend was not compiled in.
	ErrBackendUnsupported = errors.New("audioio: backend not supported in this build")
)

// Device roles reported in DeviceAcquisitionError.
const (
	RoleMicrophone = "microphone"
	RoleSpeaker    = "speaker"
)

// DeviceAcquisitionError reports a microphone or speaker that could not be
// opened, including permission denial.
type DeviceAcquisitionError struct {
	Role    string
	Backend Backend
	Err     error
}

func (e *DeviceAcquisitionError) Error() string {
	return fmt.Sprintf("audioio: acquire %s (%s): %v", e.Role, e.Backend, e.Err)
}

// Unwrap returns the underlying device error.
func (e *DeviceAcquisitionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDeviceUnavailable.
func (e *DeviceAcquisitionError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}
