package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/util"
)

// RobotSimulator answers the robot protocol on a Device, for bench testing
// without the real robot. With the watchdog enabled it stops itself when no
// RELOAD_WD arrives within WatchdogTimeout, like the firmware does.
type RobotSimulator struct {
	ID              string
	Battery         model.BatteryLevel
	WatchdogTimeout time.Duration

	mu       sync.Mutex
	started  bool
	withWD   bool
	lastFeed time.Time
	motion   string
	history  []string
}

// NewRobotSimulator creates a simulator with a full battery.
func NewRobotSimulator(id string) *RobotSimulator {
	return &RobotSimulator{ID: id, Battery: model.BatteryFull, WatchdogTimeout: 3 * time.Second}
}

// Serve answers commands read from dev until ctx is done or dev is closed.
func (s *RobotSimulator) Serve(ctx context.Context, dev Device) error {
	log := util.Named("robotsim").With("id", s.ID)
	log.Infof("simulator started")
	for {
		select {
		case <-ctx.Done():
			log.Infof("simulation stopped")
			return nil
		default:
		}
		line, err := dev.ReadLine(100 * time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			s.checkWatchdog(time.Now())
			continue
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		reply := s.Handle(line, time.Now())
		log.Debugf("%s -> %s", line, reply)
		if err := dev.WriteLine(reply); err != nil {
			return fmt.Errorf("simulate write: %w", err)
		}
	}
}

// Handle applies one command line and returns the reply line.
func (s *RobotSimulator) Handle(line string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
	s.checkWatchdogLocked(now)

	switch cmd := model.RobotCommand(line); cmd {
	case model.CmdStartWithWD, model.CmdStartWithoutWD:
		s.started = true
		s.withWD = cmd == model.CmdStartWithWD
		s.lastFeed = now
		return "OK"
	case model.CmdReloadWD:
		if !s.withWD {
			return "ERR,watchdog not enabled"
		}
		s.lastFeed = now
		return "OK"
	case model.CmdReset:
		s.started, s.withWD, s.motion = false, false, "S"
		return "OK"
	case model.CmdBattery:
		return fmt.Sprintf("BATT,%d", s.Battery)
	}

	if code, ok := strings.CutPrefix(line, "MOVE,"); ok {
		if !s.started {
			return "ERR,not started"
		}
		switch code {
		case "S", "F", "B", "L", "R":
			s.motion = code
			return "OK"
		}
		return "ERR,bad direction"
	}
	return "ERR,unknown command"
}

func (s *RobotSimulator) checkWatchdog(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkWatchdogLocked(now)
}

func (s *RobotSimulator) checkWatchdogLocked(now time.Time) {
	if s.started && s.withWD && now.Sub(s.lastFeed) > s.WatchdogTimeout {
		s.started, s.motion = false, "S"
	}
}

// Motion returns the last applied direction code.
func (s *RobotSimulator) Motion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion
}

// Started reports whether the simulated robot is running.
func (s *RobotSimulator) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// History returns every command line received so far.
func (s *RobotSimulator) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}
