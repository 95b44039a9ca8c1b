package core

import (
	"context"

	"RobotSupervisor/internal/model"
)

// MonitorLink is the transport to the remote monitor.
type MonitorLink interface {
	// Open blocks until a monitor client is connected or ctx is done.
	Open(ctx context.Context) error
	// ReadFrame blocks until one inbound frame arrives. It fails once the
	// client is gone or Close was called.
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	// Close drops the current client.
	Close() error
}

// RobotLink is the command channel to the robot.
type RobotLink interface {
	Open() error
	Send(cmd model.RobotCommand) error
	Battery() (model.BatteryLevel, error)
	Close() error
}

// Camera is the onboard capture device.
type Camera interface {
	Open() error
	Grab() (*model.Image, error)
	Close() error
}

// Calibrator derives the robot position and the arena from a frame.
type Calibrator interface {
	Calibrate(img *model.Image) (model.Position, model.Arena, error)
}
