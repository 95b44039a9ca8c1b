package core

import (
	"context"
	"time"

	"RobotSupervisor/internal/device"
	"RobotSupervisor/internal/model"
)

func (t *Tasks) openComRobotTask(ctx context.Context) {
	for {
		if _, err := t.sig.openComRobot.Wait(ctx); err != nil {
			return
		}
		var err error
		already := false
		t.state.robotLink.Update(func(open *bool) {
			if *open {
				already = true
				return
			}
			if err = t.opts.Robot.Open(); err == nil {
				*open = true
			}
		})
		switch {
		case already:
			t.send(ctx, model.NewStatus("robot link already open"))
		case err != nil:
			t.sendError(ctx, "open robot link: %v", err)
		default:
			t.state.robotFailures.Set(0)
			t.send(ctx, model.NewMessage(model.MsgRobotComOpened))
		}
	}
}

func (t *Tasks) closeComRobotTask(ctx context.Context) {
	for {
		if _, err := t.sig.closeComRobot.Wait(ctx); err != nil {
			return
		}
		if !t.state.robotLink.Get() {
			t.send(ctx, model.NewStatus("robot link already closed"))
			continue
		}
		t.haltRobot()
		var err error
		t.state.robotLink.Update(func(open *bool) {
			err = t.opts.Robot.Close()
			*open = false
		})
		if err != nil {
			t.sendError(ctx, "close robot link: %v", err)
		}
		t.send(ctx, model.NewMessage(model.MsgRobotComClosed))
	}
}

func (t *Tasks) startRobotTask(ctx context.Context) {
	for {
		withWD, err := t.sig.startRobot.Wait(ctx)
		if err != nil {
			return
		}
		if err := t.opts.Robot.Send(model.StartCommand(withWD)); err != nil {
			t.robotFailed(ctx, err, "start")
			continue
		}
		t.robotOk()
		t.state.robotStarted.Set(robotStatus{started: true, withWD: withWD})
		t.state.motion.Update(func(m *motionState) {
			m.enabled = true
			m.applied = model.MotionStop
		})
		if withWD {
			if t.wd.Arm(time.Now()) {
				t.sig.watchdog.Raise(struct{}{})
			}
		} else {
			t.wd.Disarm()
		}
		t.log.Infof("[%s] robot started (watchdog=%t)", taskStartRobot, withWD)
		t.send(ctx, model.NewMessage(model.MsgRobotStarted))
	}
}

// moveTask applies the commanded motion whenever it differs from the last
// one the robot accepted.
func (t *Tasks) moveTask(ctx context.Context) {
	every(ctx, t.opts.MovePeriod, func(time.Time) { t.applyMotion(ctx) })
}

func (t *Tasks) applyMotion(ctx context.Context) {
	var (
		motion model.Motion
		err    error
		sent   bool
	)
	t.state.motion.Update(func(m *motionState) {
		if !m.enabled || m.commanded == m.applied {
			return
		}
		motion, sent = m.commanded, true
		err = t.opts.Robot.Send(motion.Command())
		// a refused order is not retried
		if err == nil || device.IsRejected(err) {
			m.applied = motion
		}
	})
	if !sent {
		return
	}
	if err != nil {
		t.robotFailed(ctx, err, "move "+motion.String())
		return
	}
	t.robotOk()
}

func (t *Tasks) watchdogTask(ctx context.Context) {
	for {
		if _, err := t.sig.watchdog.Wait(ctx); err != nil {
			return
		}
		t.log.Infof("[%s] armed, deadline %s", taskWatchdog, t.opts.WatchdogDeadline)
		t.superviseMotion(ctx)
	}
}

// superviseMotion ticks until the watchdog is disarmed or trips.
func (t *Tasks) superviseMotion(ctx context.Context) {
	ticker := time.NewTicker(t.opts.WatchdogTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !t.wd.Armed() {
				return
			}
			if t.wd.Expired(now) {
				t.tripWatchdog(ctx)
				return
			}
		}
	}
}

// tripWatchdog stops the robot before anything is reported, so the stop never
// waits on the monitor.
func (t *Tasks) tripWatchdog(ctx context.Context) {
	t.wd.Disarm()
	t.stats.IncWatchdogTrip()
	t.state.robotStarted.Set(robotStatus{})
	var err error
	t.state.motion.Update(func(m *motionState) {
		m.enabled = false
		m.commanded = model.MotionStop
		err = t.opts.Robot.Send(model.MotionStop.Command())
		m.applied = model.MotionStop
	})
	t.sendError(ctx, "watchdog timeout: no motion command for %s", t.opts.WatchdogDeadline)
	if err != nil {
		t.robotFailed(ctx, err, "stop")
	}
}

func (t *Tasks) batteryTask(ctx context.Context) {
	every(ctx, t.opts.BatteryPeriod, func(time.Time) {
		if !t.state.robotStarted.Get().started {
			return
		}
		t.queryBattery(ctx)
	})
}

func (t *Tasks) queryBattery(ctx context.Context) {
	if !t.state.robotLink.Get() {
		t.sendError(ctx, "battery query refused: robot link not open")
		return
	}
	lvl, err := t.opts.Robot.Battery()
	if err != nil {
		t.robotFailed(ctx, err, "battery")
		return
	}
	t.robotOk()
	t.send(ctx, &model.Message{Type: model.MsgBatteryLevel, Battery: lvl})
}

// reloadRobotWatchdog forwards the monitor heartbeat to the robot firmware.
func (t *Tasks) reloadRobotWatchdog(ctx context.Context) {
	if !t.state.robotLink.Get() {
		return
	}
	if err := t.opts.Robot.Send(model.CmdReloadWD); err != nil {
		t.robotFailed(ctx, err, "reload watchdog")
		return
	}
	t.robotOk()
}

// haltRobot marks the robot stopped and unsupervised.
func (t *Tasks) haltRobot() {
	t.state.robotStarted.Set(robotStatus{})
	t.wd.Disarm()
	t.state.motion.Update(func(m *motionState) {
		m.enabled = false
		m.commanded = model.MotionStop
		m.applied = model.MotionStop
	})
}

func (t *Tasks) robotOk() { t.state.robotFailures.Set(0) }

// robotFailed reports a failed robot request. A robot that answers is alive;
// after MaxRobotFailures unanswered requests in a row it is considered lost.
func (t *Tasks) robotFailed(ctx context.Context, err error, what string) {
	t.stats.IncRobotFailure()
	t.sendError(ctx, "robot %s failed: %v", what, err)
	if device.IsRejected(err) {
		t.robotOk()
		return
	}
	lost := false
	t.state.robotFailures.Update(func(n *int) {
		*n++
		if *n >= t.opts.MaxRobotFailures {
			*n = 0
			lost = true
		}
	})
	if !lost {
		return
	}
	t.stats.IncRobotLost()
	t.haltRobot()
	t.sendError(ctx, "robot lost after %d consecutive failures", t.opts.MaxRobotFailures)
}
