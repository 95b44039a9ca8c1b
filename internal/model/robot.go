package model

import "fmt"

// Motion is a locomotion order for the robot.
type Motion int

const (
	MotionStop Motion = iota
	MotionForward
	MotionBackward
	MotionLeft
	MotionRight
)

var motionCodes = map[Motion]string{
	MotionStop:     "S",
	MotionForward:  "F",
	MotionBackward: "B",
	MotionLeft:     "L",
	MotionRight:    "R",
}

// String returns the one-letter wire code of the motion.
func (m Motion) String() string {
	if c, ok := motionCodes[m]; ok {
		return c
	}
	return fmt.Sprintf("Motion(%d)", int(m))
}

// Command returns the robot command applying m.
func (m Motion) Command() RobotCommand {
	return RobotCommand("MOVE," + m.String())
}

// MotionFromMessage maps a monitor motion command to a Motion.
func MotionFromMessage(t MessageType) (Motion, bool) {
	switch t {
	case MsgRobotGoForward:
		return MotionForward, true
	case MsgRobotGoBackward:
		return MotionBackward, true
	case MsgRobotGoLeft:
		return MotionLeft, true
	case MsgRobotGoRight:
		return MotionRight, true
	case MsgRobotStop:
		return MotionStop, true
	}
	return MotionStop, false
}

// RobotCommand is one line of the serial robot protocol.
//
// Robot wire format (supervisor -> robot), newline terminated:
//
//	START_WD | START | RELOAD_WD | RESET | BATTERY | MOVE,<S|F|B|L|R>
//
// Replies (robot -> supervisor):
//
//	OK | BATT,<0|1|2> | ERR,<reason>
type RobotCommand string

const (
	CmdStartWithWD    RobotCommand = "START_WD"
	CmdStartWithoutWD RobotCommand = "START"
	CmdReloadWD       RobotCommand = "RELOAD_WD"
	CmdReset          RobotCommand = "RESET"
	CmdBattery        RobotCommand = "BATTERY"
)

// StartCommand returns the start command for the requested watchdog mode.
func StartCommand(withWD bool) RobotCommand {
	if withWD {
		return CmdStartWithWD
	}
	return CmdStartWithoutWD
}
