// Package device defines a unified interface for line-oriented links such as the
// robot serial port, plus the robot and camera drivers built on top of it.
package device

import (
	"errors"
	"time"
)

var (
	// ErrNotOpen is returned when a driver is used before Open.
	ErrNotOpen = errors.New("device not open")
	// ErrClosed is returned by ReadLine once the device has been closed.
	ErrClosed = errors.New("device closed")
	// ErrReadTimeout is returned when no line arrives within the timeout.
	ErrReadTimeout = errors.New("read timeout")
)

// Device defines an abstract interface for line-based communication devices.
type Device interface {
	// ReadLine reads a single line terminated by '\n', without the terminator.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}
