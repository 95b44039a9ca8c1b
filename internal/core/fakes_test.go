package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"RobotSupervisor/internal/device"
	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/parser"
)

var errNotConnected = errors.New("fake monitor: not connected")

// fakeMonitor is an in-memory MonitorLink driven by the test.
type fakeMonitor struct {
	accept  chan struct{}
	inbound chan []byte
	out     chan string

	mu        sync.Mutex
	connDone  chan struct{}
	connected bool
	opens     int
	failed    int
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		accept:  make(chan struct{}),
		inbound: make(chan []byte, 64),
		out:     make(chan string, 1024),
	}
}

func (f *fakeMonitor) Open(ctx context.Context) error {
	select {
	case <-f.accept:
		f.mu.Lock()
		f.connDone = make(chan struct{})
		f.connected = true
		f.opens++
		f.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeMonitor) ReadFrame() ([]byte, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, errNotConnected
	}
	done := f.connDone
	f.mu.Unlock()
	select {
	case b := <-f.inbound:
		return b, nil
	case <-done:
		return nil, io.EOF
	}
}

func (f *fakeMonitor) WriteFrame(frame []byte) error {
	f.mu.Lock()
	connected := f.connected
	if !connected {
		f.failed++
	}
	f.mu.Unlock()
	if !connected {
		return errNotConnected
	}
	f.out <- string(frame)
	return nil
}

func (f *fakeMonitor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		close(f.connDone)
		f.connected = false
	}
	return nil
}

func (f *fakeMonitor) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMonitor) failedWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *fakeMonitor) sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type robotCall struct {
	cmd model.RobotCommand
	at  time.Time
}

// fakeRobot records every command it accepts.
type fakeRobot struct {
	mu      sync.Mutex
	open    bool
	closes  int
	calls   []robotCall
	failErr error
	battery model.BatteryLevel
}

func newFakeRobot() *fakeRobot { return &fakeRobot{battery: model.BatteryFull} }

func (r *fakeRobot) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	return nil
}

func (r *fakeRobot) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.closes++
	return nil
}

func (r *fakeRobot) Send(cmd model.RobotCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return device.ErrNotOpen
	}
	if r.failErr != nil {
		return r.failErr
	}
	r.calls = append(r.calls, robotCall{cmd: cmd, at: time.Now()})
	return nil
}

func (r *fakeRobot) Battery() (model.BatteryLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return model.BatteryUnknown, device.ErrNotOpen
	}
	if r.failErr != nil {
		return model.BatteryUnknown, r.failErr
	}
	return r.battery, nil
}

func (r *fakeRobot) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *fakeRobot) commands() []model.RobotCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RobotCommand, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.cmd)
	}
	return out
}

// lastAt returns when cmd was last accepted.
func (r *fakeRobot) lastAt(cmd model.RobotCommand) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].cmd == cmd {
			return r.calls[i].at, true
		}
	}
	return time.Time{}, false
}

func (r *fakeRobot) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// fakeCamera is a SimCamera that counts opens and can be made to fail.
type fakeCamera struct {
	*device.SimCamera
	opens atomic.Int32

	mu      sync.Mutex
	openErr error
	grabErr error
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{SimCamera: device.NewSimCamera(32, 24)}
}

func (c *fakeCamera) Open() error {
	c.opens.Add(1)
	c.mu.Lock()
	err := c.openErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.SimCamera.Open()
}

func (c *fakeCamera) Grab() (*model.Image, error) {
	c.mu.Lock()
	err := c.grabErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.SimCamera.Grab()
}

func (c *fakeCamera) failOpen(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

func (c *fakeCamera) failGrab(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grabErr = err
}

type fakeCalibrator struct {
	mu    sync.Mutex
	pos   model.Position
	arena model.Arena
	err   error
	calls int
}

func (c *fakeCalibrator) Calibrate(*model.Image) (model.Position, model.Arena, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.pos, c.arena, c.err
}

func (c *fakeCalibrator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// harness runs a full task set against the fakes using the text wire format.
type harness struct {
	t     *testing.T
	tasks *Tasks
	mon   *fakeMonitor
	robot *fakeRobot
	cam   *fakeCamera
	cal   *fakeCalibrator
}

const (
	testDeadline = 150 * time.Millisecond
	testTick     = 10 * time.Millisecond
	waitFor      = 2 * time.Second
)

func testOptions(h *harness) Options {
	return Options{
		Monitor:          h.mon,
		Robot:            h.robot,
		Camera:           h.cam,
		Calibrator:       h.cal,
		Parser:           parser.NewTextParser(),
		QueueSize:        16,
		MovePeriod:       5 * time.Millisecond,
		BatteryPeriod:    time.Hour,
		ImagePeriod:      10 * time.Millisecond,
		WatchdogTick:     testTick,
		WatchdogDeadline: testDeadline,
		MaxRobotFailures: 3,
		Logger:           zap.NewNop().Sugar(),
	}
}

// newHarness starts a task set. mutate may adjust the options before Init.
func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		mon:   newFakeMonitor(),
		robot: newFakeRobot(),
		cam:   newFakeCamera(),
		cal:   &fakeCalibrator{},
	}
	opts := testOptions(h)
	if mutate != nil {
		mutate(&opts)
	}
	h.tasks = New(opts)
	require.NoError(t, h.tasks.Init())
	h.tasks.Run()
	t.Cleanup(h.tasks.Stop)
	return h
}

// connect lets ServerTask accept one monitor session.
func (h *harness) connect() {
	h.t.Helper()
	select {
	case h.mon.accept <- struct{}{}:
	case <-time.After(waitFor):
		h.t.Fatal("ServerTask never accepted the monitor")
	}
}

func (h *harness) send(frame string) {
	h.t.Helper()
	select {
	case h.mon.inbound <- []byte(frame):
	case <-time.After(waitFor):
		h.t.Fatalf("inbound frame %q not consumed", frame)
	}
}

// next returns the next outbound frame.
func (h *harness) next() string {
	h.t.Helper()
	select {
	case f := <-h.mon.out:
		return f
	case <-time.After(waitFor):
		h.t.Fatal("no outbound frame")
		return ""
	}
}

// expectNext asserts the next outbound frame starts with prefix.
func (h *harness) expectNext(prefix string) string {
	h.t.Helper()
	f := h.next()
	require.True(h.t, strings.HasPrefix(f, prefix), "want frame %q..., got %q", prefix, f)
	return f
}

// expect skips frames until one starts with prefix.
func (h *harness) expect(prefix string) string {
	h.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case f := <-h.mon.out:
			if strings.HasPrefix(f, prefix) {
				return f
			}
		case <-deadline:
			h.t.Fatalf("no outbound frame starting with %q", prefix)
			return ""
		}
	}
}

// startRobot opens the robot link and starts the robot.
func (h *harness) startRobot(withWD bool) {
	h.t.Helper()
	h.send("ROBOT_COM_OPEN")
	h.expectNext("ROBOT_COM_OPENED")
	if withWD {
		h.send("ROBOT_START_WITH_WD")
	} else {
		h.send("ROBOT_START_WITHOUT_WD")
	}
	// a battery report may already precede it
	h.expect("ROBOT_STARTED")
}

func containsCommand(cmds []model.RobotCommand, cmd model.RobotCommand) bool {
	for _, c := range cmds {
		if c == cmd {
			return true
		}
	}
	return false
}
