package core

import (
	"fmt"
)

// Signal names.
const (
	sigServerOk      = "serverOk"
	sigSendOk        = "sendOk"
	sigCloseComMon   = "closeComMon"
	sigServerRestart = "serverRestart"
	sigOpenComRobot  = "openComRobot"
	sigCloseComRobot = "closeComRobot"
	sigStartRobot    = "startRobot"
	sigWatchdog      = "watchdog"
	sigStartCamera   = "startCamera"
	sigCloseCamera   = "closeCamera"
	sigCalibration   = "calibration"
)

// signalSpec describes who raises a signal, which task waits on it and which
// signal must have been raised and acted upon first. Guarded signals are only
// raised by the dispatcher once the requirement holds; the others let the
// waiting task report the unmet requirement itself.
type signalSpec struct {
	Name     string
	Raiser   string
	Waiter   string
	Requires string
	Guarded  bool
}

// signalTable is the startup ordering of the gated tasks.
var signalTable = []signalSpec{
	{Name: sigServerOk, Raiser: taskServer, Waiter: taskReceiveFromMon},
	{Name: sigSendOk, Raiser: taskServer, Waiter: taskSendToMon},
	{Name: sigCloseComMon, Raiser: taskReceiveFromMon, Waiter: taskCloseComMon, Requires: sigServerOk},
	{Name: sigServerRestart, Raiser: taskCloseComMon, Waiter: taskServer, Requires: sigCloseComMon},
	{Name: sigOpenComRobot, Raiser: taskReceiveFromMon, Waiter: taskOpenComRobot, Requires: sigServerOk},
	{Name: sigCloseComRobot, Raiser: taskReceiveFromMon, Waiter: taskCloseComRobot, Requires: sigOpenComRobot},
	{Name: sigStartRobot, Raiser: taskReceiveFromMon, Waiter: taskStartRobot, Requires: sigOpenComRobot, Guarded: true},
	{Name: sigWatchdog, Raiser: taskStartRobot, Waiter: taskWatchdog, Requires: sigStartRobot},
	{Name: sigStartCamera, Raiser: taskReceiveFromMon, Waiter: taskStartCamera, Requires: sigServerOk},
	{Name: sigCloseCamera, Raiser: taskReceiveFromMon, Waiter: taskCloseCamera, Requires: sigStartCamera},
	{Name: sigCalibration, Raiser: taskReceiveFromMon, Waiter: taskCalibration, Requires: sigStartCamera},
}

func lookupSignal(name string) (signalSpec, bool) {
	for _, s := range signalTable {
		if s.Name == name {
			return s, true
		}
	}
	return signalSpec{}, false
}

// validateSignalTable checks that names are unique, that every requirement is
// declared before its dependent and that no task waits on two signals.
func validateSignalTable(table []signalSpec) error {
	seen := make(map[string]bool, len(table))
	waiters := make(map[string]string, len(table))
	for _, s := range table {
		if s.Name == "" || s.Raiser == "" || s.Waiter == "" {
			return fmt.Errorf("signal %q: name, raiser and waiter are required", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("signal %q declared twice", s.Name)
		}
		if s.Requires != "" && !seen[s.Requires] {
			return fmt.Errorf("signal %q requires %q which is not declared before it", s.Name, s.Requires)
		}
		if s.Guarded && s.Requires == "" {
			return fmt.Errorf("signal %q is guarded but has no requirement", s.Name)
		}
		if other, ok := waiters[s.Waiter]; ok {
			return fmt.Errorf("task %s waits on both %q and %q", s.Waiter, other, s.Name)
		}
		seen[s.Name] = true
		waiters[s.Waiter] = s.Name
	}
	return nil
}

// signals holds one semaphore per signalTable entry.
type signals struct {
	serverOk      *Signal[struct{}]
	sendOk        *Signal[uint64] // carries the session number
	closeComMon   *Signal[struct{}]
	serverRestart *Signal[struct{}]
	openComRobot  *Signal[struct{}]
	closeComRobot *Signal[struct{}]
	startRobot    *Signal[bool] // carries the watchdog mode
	watchdog      *Signal[struct{}]
	startCamera   *Signal[struct{}]
	closeCamera   *Signal[struct{}]
	calibration   *Signal[struct{}]
}

func newSignals() *signals {
	return &signals{
		serverOk:      NewSignal[struct{}](sigServerOk),
		sendOk:        NewSignal[uint64](sigSendOk),
		closeComMon:   NewSignal[struct{}](sigCloseComMon),
		serverRestart: NewSignal[struct{}](sigServerRestart),
		openComRobot:  NewSignal[struct{}](sigOpenComRobot),
		closeComRobot: NewSignal[struct{}](sigCloseComRobot),
		startRobot:    NewSignal[bool](sigStartRobot),
		watchdog:      NewSignal[struct{}](sigWatchdog),
		startCamera:   NewSignal[struct{}](sigStartCamera),
		closeCamera:   NewSignal[struct{}](sigCloseCamera),
		calibration:   NewSignal[struct{}](sigCalibration),
	}
}

// names lists the signal names in signalTable order.
func (s *signals) names() []string {
	return []string{
		s.serverOk.Name(), s.sendOk.Name(), s.closeComMon.Name(), s.serverRestart.Name(),
		s.openComRobot.Name(), s.closeComRobot.Name(), s.startRobot.Name(), s.watchdog.Name(),
		s.startCamera.Name(), s.closeCamera.Name(), s.calibration.Name(),
	}
}
