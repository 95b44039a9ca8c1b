package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"RobotSupervisor/internal/device"
	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/parser"
)

func TestWatchdog_StopsRobotWithoutMotionCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(true)

	h.send("ROBOT_GO_FORWARD")
	h.expectNext("ERROR:watchdog timeout")

	assert.Equal(t, []model.RobotCommand{
		model.CmdStartWithWD,
		model.MotionForward.Command(),
		model.MotionStop.Command(),
	}, h.robot.commands())
	m := h.tasks.state.motion.Get()
	assert.Equal(t, model.MotionStop, m.commanded)
	assert.False(t, m.enabled)
	assert.False(t, h.tasks.state.robotStarted.Get().started)
	assert.Equal(t, int64(1), h.tasks.Stats().WatchdogTrips)
}

func TestWatchdog_FedRobotKeepsMoving(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(true)

	var last time.Time
	for i := 0; i < 8; i++ {
		last = time.Now()
		if i%2 == 0 {
			h.send("ROBOT_GO_FORWARD")
		} else {
			h.send("ROBOT_GO_LEFT")
		}
		time.Sleep(testDeadline / 3)
	}
	assert.False(t, containsCommand(h.robot.commands(), model.MotionStop.Command()),
		"robot stopped while motion commands kept coming")

	h.expectNext("ERROR:watchdog timeout")
	stopAt, ok := h.robot.lastAt(model.MotionStop.Command())
	require.True(t, ok)
	elapsed := stopAt.Sub(last)
	assert.GreaterOrEqual(t, elapsed, testDeadline)
	assert.Less(t, elapsed, testDeadline+testTick+100*time.Millisecond)
}

func TestWatchdog_NotArmedWithoutWatchdogMode(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(false)

	h.send("ROBOT_GO_FORWARD")
	require.Eventually(t, func() bool {
		return containsCommand(h.robot.commands(), model.MotionForward.Command())
	}, waitFor, 5*time.Millisecond)
	time.Sleep(2 * testDeadline)

	assert.Equal(t, []model.RobotCommand{model.CmdStartWithoutWD, model.MotionForward.Command()}, h.robot.commands())
	assert.True(t, h.tasks.state.robotStarted.Get().started)
}

func TestRobot_HeartbeatIsForwarded(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(true)

	h.send("ROBOT_RELOAD_WD")
	require.Eventually(t, func() bool {
		return containsCommand(h.robot.commands(), model.CmdReloadWD)
	}, waitFor, 5*time.Millisecond)
}

func TestRobot_StartRefusedWhileLinkClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("ROBOT_START_WITH_WD")
	h.expectNext("ERROR:ROBOT_START_WITH_WD refused: robot link not open")
	h.send("ROBOT_BATTERY_GET")
	h.expectNext("ERROR:battery query refused")

	assert.Empty(t, h.robot.commands())
	assert.Equal(t, 0, h.tasks.sig.startRobot.Pending())
}

func TestRobot_OpenAndCloseAreIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("ROBOT_COM_OPEN")
	h.expectNext("ROBOT_COM_OPENED")
	h.send("ROBOT_COM_OPEN")
	h.expectNext("STATUS:robot link already open")
	h.send("ROBOT_COM_CLOSE")
	h.expectNext("ROBOT_COM_CLOSED")
	h.send("ROBOT_COM_CLOSE")
	h.expectNext("STATUS:robot link already closed")

	assert.False(t, h.robot.isOpen())
}

func TestRobot_CloseLinkHaltsRobot(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(true)

	h.send("ROBOT_COM_CLOSE")
	h.expectNext("ROBOT_COM_CLOSED")

	assert.False(t, h.tasks.state.robotStarted.Get().started)
	assert.False(t, h.tasks.wd.Armed())
	assert.False(t, h.tasks.state.motion.Get().enabled)
}

func TestRobot_BatteryReportedWhileStarted(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BatteryPeriod = 20 * time.Millisecond })
	h.connect()
	h.startRobot(false)

	h.expectNext("BATTERY_LEVEL:2")

	h.send("ROBOT_BATTERY_GET")
	h.expect("BATTERY_LEVEL:2")
}

func TestRobot_LostAfterConsecutiveFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(false)

	h.robot.fail(errors.New("reply timeout"))
	h.send("ROBOT_GO_FORWARD")

	for i := 0; i < 3; i++ {
		h.expectNext("ERROR:robot move F failed")
	}
	h.expectNext("ERROR:robot lost after 3 consecutive failures")
	assert.False(t, h.tasks.state.robotStarted.Get().started)
	assert.False(t, h.tasks.state.motion.Get().enabled)
	assert.Equal(t, int64(1), h.tasks.Stats().RobotLost)
}

func TestCalibration_Success(t *testing.T) {
	h := newHarness(t, nil)
	p := model.Position{X: 42, Y: 17}
	h.cal.pos = p
	h.cal.arena = model.Arena{X: 10, Y: 10, Width: 100, Height: 80}
	h.connect()

	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")
	h.send("CAM_CALIBRATE")
	h.expectNext("CALIBRATION_RESULT:42.00,17.00,0.00,1,10,10,100,80")

	assert.Equal(t, p, h.tasks.state.position.Get())
	assert.True(t, h.tasks.state.arenaConfirm.Get())

	h.send("POSITION_GET")
	h.expectNext("POSITION:42.00,17.00,0.00,1,10,10,100,80")
}

func TestCalibration_CameraClosedLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.cal.pos = model.Position{X: 1, Y: 1}
	before := model.Position{X: 5, Y: 6, Angle: 0.5}
	h.tasks.state.position.Set(before)
	h.connect()

	h.send("CAM_CALIBRATE")
	h.expectNext("ERROR:calibration failed: camera not open")

	assert.Equal(t, before, h.tasks.state.position.Get())
	assert.False(t, h.tasks.state.arenaConfirm.Get())
	assert.Zero(t, h.cal.callCount())
}

func TestCalibration_FailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.cal.err = errors.New("robot marker not found")
	h.connect()

	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")
	h.send("CAM_CALIBRATE")
	h.expectNext("ERROR:calibration failed: robot marker not found")

	assert.Equal(t, model.Position{}, h.tasks.state.position.Get())
	assert.True(t, h.tasks.state.arena.Get().Empty())
	assert.False(t, h.tasks.state.arenaConfirm.Get())
}

func TestCamera_OpenAndCloseAreIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")
	h.send("CAM_OPEN")
	h.expectNext("STATUS:camera already open")
	assert.Equal(t, int32(1), h.cam.opens.Load())

	h.send("CAM_CLOSE")
	h.expectNext("CAM_CLOSED")
	h.send("CAM_CLOSE")
	h.expectNext("STATUS:camera already closed")
	assert.False(t, h.cam.IsOpen())
}

func TestCamera_PeriodicImages(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")
	h.send("CAM_IMAGE_START")
	h.expectNext("CAM_IMAGE:")
	h.expectNext("CAM_IMAGE:")

	h.send("CAM_IMAGE_STOP")
	require.Eventually(t, func() bool { return !h.tasks.state.periodicImage.Get() }, waitFor, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return h.tasks.Stats().ImagesSent >= 2 }, waitFor, 5*time.Millisecond)
}

func TestCamera_OpenFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.cam.failOpen(errors.New("sensor offline"))
	h.connect()

	h.send("CAM_OPEN")
	h.expectNext("ERROR:open camera: sensor offline")
	assert.False(t, h.tasks.state.camera.Get())
	assert.False(t, h.cam.IsOpen())

	h.cam.failOpen(nil)
	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")
	assert.Equal(t, int32(2), h.cam.opens.Load())
}

func TestCamera_GrabFailureKeepsImageStream(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")

	h.cam.failGrab(errors.New("frame dropped"))
	h.send("CAM_IMAGE_START")
	h.expectNext("ERROR:grab image: frame dropped")

	h.cam.failGrab(nil)
	h.expect("CAM_IMAGE:")
	assert.True(t, h.tasks.state.periodicImage.Get())
	h.send("CAM_IMAGE_STOP")
}

func TestCalibration_GrabFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.cal.pos = model.Position{X: 1, Y: 1}
	before := model.Position{X: 5, Y: 6, Angle: 0.5}
	h.tasks.state.position.Set(before)
	h.connect()
	h.send("CAM_OPEN")
	h.expectNext("CAM_STARTED")

	h.cam.failGrab(errors.New("frame dropped"))
	h.send("CAM_CALIBRATE")
	h.expectNext("ERROR:calibration failed: frame dropped")

	assert.Equal(t, before, h.tasks.state.position.Get())
	assert.False(t, h.tasks.state.arenaConfirm.Get())
	assert.Zero(t, h.cal.callCount())
}

func TestMonitor_MalformedInputKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("NOT_A_COMMAND")
	h.expectNext("ERROR:malformed message")
	h.send("BATTERY_LEVEL:2")
	h.expectNext("ERROR:unexpected message BATTERY_LEVEL from monitor")
	h.send("PING")
	h.expectNext("COMMAND_ECHO:PING")

	assert.Equal(t, int64(1), h.tasks.Stats().DecodeErrors)
}

func TestMonitor_LostMonitorStopsRobotAndAcceptsNextClient(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.startRobot(false)
	h.send("CAM_IMAGE_START")
	h.send("ROBOT_GO_FORWARD")
	require.Eventually(t, func() bool {
		return containsCommand(h.robot.commands(), model.MotionForward.Command())
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.mon.Close())

	require.Eventually(t, func() bool {
		return containsCommand(h.robot.commands(), model.MotionStop.Command())
	}, waitFor, 5*time.Millisecond)
	assert.False(t, h.tasks.state.periodicImage.Get())

	h.connect()
	h.send("PING")
	h.expect("COMMAND_ECHO:PING")
	assert.Equal(t, 2, h.mon.sessions())
}

func TestMonitor_CloseRequestEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.send("MONITOR_CLOSE")
	require.Eventually(t, func() bool { return !h.mon.isConnected() }, waitFor, 5*time.Millisecond)

	h.connect()
	h.send("PING")
	h.expectNext("COMMAND_ECHO:PING")
}

func TestMonitor_QueuedMessagesSurviveReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	require.NoError(t, h.mon.Close())
	require.Eventually(t, func() bool { return !h.mon.isConnected() }, waitFor, 5*time.Millisecond)

	h.tasks.send(h.tasks.ctx, model.NewStatus("first"))
	h.tasks.send(h.tasks.ctx, model.NewStatus("second"))

	h.connect()
	h.expectNext("STATUS:first")
	h.expectNext("STATUS:second")
}

func TestMonitor_WriteRetriedOnlyOnNewSession(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 2; i++ {
		h.connect()
		h.send("PING")
		h.expectNext("COMMAND_ECHO:PING")
		require.NoError(t, h.mon.Close())
	}
	require.Eventually(t, func() bool { return !h.mon.isConnected() }, waitFor, 5*time.Millisecond)

	h.tasks.send(h.tasks.ctx, model.NewStatus("pending"))
	require.Eventually(t, func() bool { return h.mon.failedWrites() > 0 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.mon.failedWrites(), "retried against a closed session")

	h.connect()
	h.expectNext("STATUS:pending")
	assert.Equal(t, 3, h.mon.sessions())
}

func TestTasks_InitRejectsInvalidOptions(t *testing.T) {
	tasks := New(Options{Logger: zap.NewNop().Sugar()})

	err := tasks.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
	assert.Zero(t, tasks.running.Load())

	tasks.Run()
	tasks.Stop()
	assert.NoError(t, tasks.Join())
}

func TestTasks_InitFailureReleasesStartedTasks(t *testing.T) {
	h := &harness{t: t, mon: newFakeMonitor(), robot: newFakeRobot(), cam: newFakeCamera(), cal: &fakeCalibrator{}}
	tasks := New(testOptions(h))
	tasks.extraTasks = []taskDef{{name: taskMove, run: func(context.Context) {}}}

	err := tasks.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "started twice")
	assert.Zero(t, tasks.running.Load(), "tasks left running after failed init")
}

func TestTasks_InitTwice(t *testing.T) {
	h := newHarness(t, nil)

	assert.Error(t, h.tasks.Init())
}

func TestTasks_StopIsBoundedAndIdempotent(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.QueueSize = 1 })
	h.connect()
	h.startRobot(true)
	h.send("CAM_OPEN")
	h.expect("CAM_STARTED")
	require.NoError(t, h.mon.Close())

	// producers blocked on a full queue with no monitor attached
	for i := 0; i < 3; i++ {
		go h.tasks.send(h.tasks.ctx, model.NewStatus("pending"))
	}

	start := time.Now()
	h.tasks.Stop()
	assert.Less(t, time.Since(start), waitFor)
	h.tasks.Stop()

	assert.Zero(t, h.tasks.running.Load())
	assert.False(t, h.robot.isOpen())
	assert.False(t, h.cam.IsOpen())
	assert.NoError(t, h.tasks.Join())
}

// silentStream accepts every write and never answers.
type silentStream struct {
	writes atomic.Int32
	closed chan struct{}
	once   sync.Once
}

func newSilentStream() *silentStream { return &silentStream{closed: make(chan struct{})} }

func (s *silentStream) Read([]byte) (int, error) {
	<-s.closed
	return 0, errors.New("stream closed")
}

func (s *silentStream) Write(p []byte) (int, error) {
	s.writes.Add(1)
	return len(p), nil
}

func (s *silentStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestTasks_StopInterruptsRobotThatNeverReplies(t *testing.T) {
	stream := newSilentStream()
	robot := device.NewRobot(func() (device.Device, error) {
		return device.NewStreamDevice("silent", stream), nil
	}, 0)
	h := newHarness(t, func(o *Options) { o.Robot = robot })
	h.connect()
	h.send("ROBOT_COM_OPEN")
	h.expectNext("ROBOT_COM_OPENED")
	h.send("ROBOT_START_WITH_WD")
	require.Eventually(t, func() bool { return stream.writes.Load() > 0 }, waitFor, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		h.tasks.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Stop blocked on a pending robot request")
	}
	assert.Zero(t, h.tasks.running.Load())
	assert.NoError(t, h.tasks.Join())
}

func TestTasks_StopBeforeInitKeepsTaskSetUsable(t *testing.T) {
	h := &harness{t: t, mon: newFakeMonitor(), robot: newFakeRobot(), cam: newFakeCamera(), cal: &fakeCalibrator{}}
	opts := testOptions(h)
	opts.QueueSize = 0
	tasks := New(opts)

	require.Error(t, tasks.Init())
	tasks.Stop()
	assert.NoError(t, tasks.Join())

	tasks.opts.QueueSize = 16
	require.NoError(t, tasks.Init())
	tasks.Run()
	assert.Positive(t, tasks.running.Load())

	tasks.Stop()
	assert.Zero(t, tasks.running.Load())
	assert.NoError(t, tasks.Join())
}

func TestTasks_JoinReturnsAfterStop(t *testing.T) {
	h := newHarness(t, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.tasks.Stop()
	}()

	done := make(chan error, 1)
	go func() { done <- h.tasks.Join() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Join did not return after Stop")
	}
}

func TestTasks_PanicIsReportedByJoin(t *testing.T) {
	h := &harness{t: t, mon: newFakeMonitor(), robot: newFakeRobot(), cam: newFakeCamera(), cal: &fakeCalibrator{}}
	tasks := New(testOptions(h))
	tasks.extraTasks = []taskDef{{name: "Boom", run: func(context.Context) { panic("boom") }}}
	require.NoError(t, tasks.Init())
	tasks.Run()

	tasks.Stop()
	err := tasks.Join()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	opts := OptionsFromConfig(&cfg)

	assert.Equal(t, 100, opts.QueueSize)
	assert.Equal(t, time.Second, opts.WatchdogDeadline)
	assert.Equal(t, 100*time.Millisecond, opts.MovePeriod)
	assert.Equal(t, 3, opts.MaxRobotFailures)

	opts.Parser = parser.NewTextParser()
	assert.Error(t, opts.validate(), "collaborators are still missing")
}
