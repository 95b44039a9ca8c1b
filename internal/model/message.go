// Package model defines shared message structures for the robot supervisor.
package model

import "time"

// MessageType is the discriminant of a Message exchanged with the monitor.
type MessageType string

// Commands received from the monitor.
const (
	MsgRobotComOpen        MessageType = "ROBOT_COM_OPEN"
	MsgRobotComClose       MessageType = "ROBOT_COM_CLOSE"
	MsgRobotStartWithWD    MessageType = "ROBOT_START_WITH_WD"
	MsgRobotStartWithoutWD MessageType = "ROBOT_START_WITHOUT_WD"
	MsgRobotGoForward      MessageType = "ROBOT_GO_FORWARD"
	MsgRobotGoBackward     MessageType = "ROBOT_GO_BACKWARD"
	MsgRobotGoLeft         MessageType = "ROBOT_GO_LEFT"
	MsgRobotGoRight        MessageType = "ROBOT_GO_RIGHT"
	MsgRobotStop           MessageType = "ROBOT_STOP"
	MsgRobotReloadWD       MessageType = "ROBOT_RELOAD_WD"
	MsgRobotBatteryGet     MessageType = "ROBOT_BATTERY_GET"
	MsgCamOpen             MessageType = "CAM_OPEN"
	MsgCamClose            MessageType = "CAM_CLOSE"
	MsgCamImageStart       MessageType = "CAM_IMAGE_START"
	MsgCamImageStop        MessageType = "CAM_IMAGE_STOP"
	MsgCamCalibrate        MessageType = "CAM_CALIBRATE"
	MsgPositionGet         MessageType = "POSITION_GET"
	MsgPing                MessageType = "PING"
	MsgMonitorClose        MessageType = "MONITOR_CLOSE"
)

// Reports sent to the monitor.
const (
	MsgRobotComOpened    MessageType = "ROBOT_COM_OPENED"
	MsgRobotComClosed    MessageType = "ROBOT_COM_CLOSED"
	MsgRobotStarted      MessageType = "ROBOT_STARTED"
	MsgBatteryLevel      MessageType = "BATTERY_LEVEL"
	MsgPosition          MessageType = "POSITION"
	MsgCalibrationResult MessageType = "CALIBRATION_RESULT"
	MsgCamStarted        MessageType = "CAM_STARTED"
	MsgCamClosed         MessageType = "CAM_CLOSED"
	MsgCamImage          MessageType = "CAM_IMAGE"
	MsgStatus            MessageType = "STATUS"
	MsgCommandEcho       MessageType = "COMMAND_ECHO"
	MsgError             MessageType = "ERROR"
)

var knownTypes = map[MessageType]struct{}{
	MsgRobotComOpen: {}, MsgRobotComClose: {}, MsgRobotStartWithWD: {}, MsgRobotStartWithoutWD: {},
	MsgRobotGoForward: {}, MsgRobotGoBackward: {}, MsgRobotGoLeft: {}, MsgRobotGoRight: {},
	MsgRobotStop: {}, MsgRobotReloadWD: {}, MsgRobotBatteryGet: {}, MsgCamOpen: {}, MsgCamClose: {},
	MsgCamImageStart: {}, MsgCamImageStop: {}, MsgCamCalibrate: {}, MsgPositionGet: {}, MsgPing: {},
	MsgMonitorClose: {}, MsgRobotComOpened: {}, MsgRobotComClosed: {}, MsgRobotStarted: {},
	MsgBatteryLevel: {}, MsgPosition: {}, MsgCalibrationResult: {}, MsgCamStarted: {},
	MsgCamClosed: {}, MsgCamImage: {}, MsgStatus: {}, MsgCommandEcho: {}, MsgError: {},
}

// Known reports whether t belongs to the protocol.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Message is a single unit exchanged with the monitor. Only the fields
// relevant to Type are populated.
type Message struct {
	Type      MessageType  `json:"type" msgpack:"type"`
	Text      string       `json:"text,omitempty" msgpack:"text,omitempty"`
	Battery   BatteryLevel `json:"battery,omitempty" msgpack:"battery,omitempty"`
	Position  *Position    `json:"position,omitempty" msgpack:"position,omitempty"`
	Arena     *Arena       `json:"arena,omitempty" msgpack:"arena,omitempty"`
	Confirmed bool         `json:"confirmed,omitempty" msgpack:"confirmed,omitempty"`
	Image     *Image       `json:"image,omitempty" msgpack:"image,omitempty"`
}

// NewMessage builds a payload-less message.
func NewMessage(t MessageType) *Message { return &Message{Type: t} }

// NewError builds an ERROR message carrying a formatted reason.
func NewError(reason string) *Message { return &Message{Type: MsgError, Text: reason} }

// NewStatus builds a benign STATUS message.
func NewStatus(text string) *Message { return &Message{Type: MsgStatus, Text: text} }

// BatteryLevel is the coarse charge level reported by the robot.
type BatteryLevel int

const (
	BatteryUnknown BatteryLevel = iota - 1
	BatteryEmpty
	BatteryLow
	BatteryFull
)

// Position is the robot location inside the arena, in image pixels.
type Position struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Angle float64 `json:"angle" msgpack:"angle"`
}

// Arena is the calibrated playing field boundary, in image pixels.
type Arena struct {
	X      int `json:"x" msgpack:"x"`
	Y      int `json:"y" msgpack:"y"`
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`
}

// Empty reports whether the arena has never been calibrated.
func (a Arena) Empty() bool { return a.Width == 0 || a.Height == 0 }

// Contains reports whether the point lies inside the arena.
func (a Arena) Contains(x, y float64) bool {
	return x >= float64(a.X) && y >= float64(a.Y) &&
		x < float64(a.X+a.Width) && y < float64(a.Y+a.Height)
}

// Image is a single 8-bit grayscale camera frame.
type Image struct {
	Seq       uint64    `json:"seq" msgpack:"seq"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Width     int       `json:"width" msgpack:"width"`
	Height    int       `json:"height" msgpack:"height"`
	Data      []byte    `json:"data" msgpack:"data"`
	TraceID   string    `json:"trace_id,omitempty" msgpack:"trace_id,omitempty"`
}

// At returns the pixel value at (x, y).
func (img *Image) At(x, y int) uint8 { return img.Data[y*img.Width+x] }
