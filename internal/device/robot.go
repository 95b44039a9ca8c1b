// Package device implements the serial robot link, which exchanges one command
// line and one reply line per request with the robot firmware.
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"RobotSupervisor/internal/model"
)

// RobotError is a command the robot answered with ERR.
type RobotError struct {
	Command model.RobotCommand
	Reason  string
}

func (e *RobotError) Error() string {
	return fmt.Sprintf("robot rejected %s: %s", e.Command, e.Reason)
}

// Dialer opens the underlying line device of a robot link.
type Dialer func() (Device, error)

// SerialDialer returns a Dialer opening a serial port.
func SerialDialer(dev string, baud int) Dialer {
	return func() (Device, error) { return NewSerialDevice(dev, baud) }
}

// Robot is a request/reply link to the robot. Requests are serialized so that
// replies always match their command. Close does not wait for the request in
// flight: it closes the device, which fails the pending read.
type Robot struct {
	dial    Dialer
	timeout time.Duration

	reqMu sync.Mutex
	mu    sync.Mutex
	dev   Device
}

// NewRobot creates a robot link; the device is opened by Open.
func NewRobot(dial Dialer, timeout time.Duration) *Robot {
	return &Robot{dial: dial, timeout: timeout}
}

// Open initializes the robot connection. Opening an open link is a no-op.
func (r *Robot) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		return nil
	}
	dev, err := r.dial()
	if err != nil {
		return fmt.Errorf("open robot link failed: %w", err)
	}
	r.dev = dev
	return nil
}

// Close terminates the robot connection. A request blocked on the reply
// returns ErrClosed.
func (r *Robot) Close() error {
	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()
	if dev == nil {
		return nil
	}
	return dev.Close()
}

// Send writes a command and waits for its OK.
func (r *Robot) Send(cmd model.RobotCommand) error {
	_, err := r.request(cmd)
	return err
}

// Battery queries the battery level.
func (r *Robot) Battery() (model.BatteryLevel, error) {
	reply, err := r.request(model.CmdBattery)
	if err != nil {
		return model.BatteryUnknown, err
	}
	field, ok := strings.CutPrefix(reply, "BATT,")
	if !ok {
		return model.BatteryUnknown, fmt.Errorf("unexpected battery reply %q", reply)
	}
	lvl, err := strconv.Atoi(field)
	if err != nil || lvl < int(model.BatteryEmpty) || lvl > int(model.BatteryFull) {
		return model.BatteryUnknown, fmt.Errorf("invalid battery level %q", field)
	}
	return model.BatteryLevel(lvl), nil
}

func (r *Robot) device() Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev
}

func (r *Robot) request(cmd model.RobotCommand) (string, error) {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	dev := r.device()
	if dev == nil {
		return "", ErrNotOpen
	}
	if d, ok := dev.(interface{ Discard() int }); ok {
		d.Discard()
	}
	if err := dev.WriteLine(string(cmd)); err != nil {
		return "", err
	}
	reply, err := dev.ReadLine(r.timeout)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	reply = strings.TrimSpace(reply)
	if reason, isErr := strings.CutPrefix(reply, "ERR"); isErr {
		return "", &RobotError{Command: cmd, Reason: strings.TrimPrefix(reason, ",")}
	}
	if cmd != model.CmdBattery && reply != "OK" {
		return "", fmt.Errorf("%s: unexpected reply %q", cmd, reply)
	}
	return reply, nil
}

// IsRejected reports whether err is an ERR answer from the robot rather than
// a link failure.
func IsRejected(err error) bool {
	var re *RobotError
	return errors.As(err, &re)
}
