package core

import (
	"context"
	"time"

	"RobotSupervisor/internal/model"
)

// acceptRetry is the pause after a failed accept on the monitor link.
const acceptRetry = time.Second

// serverTask accepts monitor clients one at a time. Each accepted client
// releases the receive and send tasks; the next client is only accepted once
// CloseComMonTask has torn the session down.
func (t *Tasks) serverTask(ctx context.Context) {
	for {
		if err := t.opts.Monitor.Open(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warnf("[%s] accept failed: %v", taskServer, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetry):
			}
			continue
		}
		t.stats.IncMonitorSession()
		session := t.session.Add(1)
		t.log.Infof("[%s] monitor session %d opened", taskServer, session)
		t.sig.serverOk.Raise(struct{}{})
		t.sig.sendOk.Raise(session)
		if _, err := t.sig.serverRestart.Wait(ctx); err != nil {
			return
		}
	}
}

func (t *Tasks) receiveFromMonTask(ctx context.Context) {
	for {
		if _, err := t.sig.serverOk.Wait(ctx); err != nil {
			return
		}
		t.receiveLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		t.sig.closeComMon.Raise(struct{}{})
	}
}

// receiveLoop reads and dispatches frames until the session ends.
func (t *Tasks) receiveLoop(ctx context.Context) {
	for {
		frame, err := t.opts.Monitor.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				t.log.Warnf("[%s] monitor lost: %v", taskReceiveFromMon, err)
			}
			return
		}
		t.stats.IncReceived()
		msg, err := t.opts.Parser.Decode(frame)
		if err != nil {
			t.stats.IncDecodeError()
			t.sendError(ctx, "malformed message: %v", err)
			continue
		}
		if !t.dispatch(ctx, msg) {
			t.log.Infof("[%s] monitor closed the session", taskReceiveFromMon)
			return
		}
	}
}

// closeComMonTask puts the robot and the camera stream in a safe state when
// the monitor goes away, then lets ServerTask accept a new client.
func (t *Tasks) closeComMonTask(ctx context.Context) {
	for {
		if _, err := t.sig.closeComMon.Wait(ctx); err != nil {
			return
		}
		t.state.periodicImage.Set(false)
		t.state.motion.Update(func(m *motionState) { m.commanded = model.MotionStop })
		if err := t.opts.Monitor.Close(); err != nil {
			t.log.Warnf("[%s] close monitor: %v", taskCloseComMon, err)
		}
		t.log.Infof("[%s] monitor session closed", taskCloseComMon)
		t.sig.serverRestart.Raise(struct{}{})
	}
}

// sendToMonTask drains the outbound queue in order. A message that cannot be
// written is kept and retried on the next monitor session.
func (t *Tasks) sendToMonTask(ctx context.Context) {
	if err := t.waitSession(ctx, 0); err != nil {
		return
	}
	for {
		msg, ok := t.queue.Read(ctx)
		if !ok {
			return
		}
		frame, err := t.opts.Parser.Encode(msg)
		if err != nil {
			t.stats.IncEncodeError()
			t.log.Errorf("[%s] cannot encode %s: %v", taskSendToMon, msg.Type, err)
			continue
		}
		for {
			session := t.session.Load()
			err := t.opts.Monitor.WriteFrame(frame)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			t.log.Warnf("[%s] write failed, waiting for monitor: %v", taskSendToMon, err)
			if err := t.waitSession(ctx, session); err != nil {
				return
			}
		}
		t.stats.IncSent()
		if msg.Type == model.MsgCamImage {
			t.stats.IncImageSent()
		}
	}
}

// waitSession blocks until a monitor session newer than after is opened.
// Raises left by sessions that needed no retry are consumed and ignored.
func (t *Tasks) waitSession(ctx context.Context, after uint64) error {
	for {
		session, err := t.sig.sendOk.Wait(ctx)
		if err != nil {
			return err
		}
		if session > after {
			return nil
		}
	}
}

// dispatch acts on one inbound message. It returns false when the monitor
// asked to close the session.
func (t *Tasks) dispatch(ctx context.Context, msg *model.Message) bool {
	switch msg.Type {
	case model.MsgRobotComOpen:
		t.sig.openComRobot.Raise(struct{}{})
	case model.MsgRobotComClose:
		t.sig.closeComRobot.Raise(struct{}{})
	case model.MsgRobotStartWithWD, model.MsgRobotStartWithoutWD:
		if !t.requirementMet(sigStartRobot) {
			t.sendError(ctx, "%s refused: robot link not open", msg.Type)
			break
		}
		t.sig.startRobot.Raise(msg.Type == model.MsgRobotStartWithWD)
	case model.MsgRobotGoForward, model.MsgRobotGoBackward, model.MsgRobotGoLeft,
		model.MsgRobotGoRight, model.MsgRobotStop:
		motion, _ := model.MotionFromMessage(msg.Type)
		t.state.motion.Update(func(m *motionState) { m.commanded = motion })
		t.wd.Feed(time.Now())
	case model.MsgRobotReloadWD:
		t.wd.Feed(time.Now())
		t.reloadRobotWatchdog(ctx)
	case model.MsgRobotBatteryGet:
		t.queryBattery(ctx)
	case model.MsgCamOpen:
		t.sig.startCamera.Raise(struct{}{})
	case model.MsgCamClose:
		t.sig.closeCamera.Raise(struct{}{})
	case model.MsgCamImageStart:
		t.state.periodicImage.Set(true)
	case model.MsgCamImageStop:
		t.state.periodicImage.Set(false)
	case model.MsgCamCalibrate:
		t.sig.calibration.Raise(struct{}{})
	case model.MsgPositionGet:
		t.send(ctx, t.positionMessage())
	case model.MsgPing:
		t.send(ctx, &model.Message{Type: model.MsgCommandEcho, Text: string(model.MsgPing)})
	case model.MsgMonitorClose:
		return false
	default:
		t.sendError(ctx, "unexpected message %s from monitor", msg.Type)
	}
	return true
}

// requirementMet reports whether a guarded signal may be raised now.
func (t *Tasks) requirementMet(name string) bool {
	spec, ok := lookupSignal(name)
	if !ok || !spec.Guarded {
		return true
	}
	switch spec.Requires {
	case sigOpenComRobot:
		return t.state.robotLink.Get()
	case sigStartCamera:
		return t.state.camera.Get()
	}
	return true
}

func (t *Tasks) positionMessage() *model.Message {
	pos := t.state.position.Get()
	arena := t.state.arena.Get()
	msg := &model.Message{Type: model.MsgPosition, Position: &pos, Confirmed: t.state.arenaConfirm.Get()}
	if !arena.Empty() {
		msg.Arena = &arena
	}
	return msg
}
