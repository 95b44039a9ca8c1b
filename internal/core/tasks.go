// Package core contains the onboard supervisor: the task set that bridges the
// monitor, the robot and the camera, and the System that wires it from config.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/parser"
	"RobotSupervisor/internal/util"
)

// Task names.
const (
	taskServer         = "ServerTask"
	taskReceiveFromMon = "ReceiveFromMonTask"
	taskSendToMon      = "SendToMonTask"
	taskCloseComMon    = "CloseComMonTask"
	taskOpenComRobot   = "OpenComRobotTask"
	taskCloseComRobot  = "CloseComRobotTask"
	taskStartRobot     = "StartRobotTask"
	taskMove           = "MoveTask"
	taskWatchdog       = "WatchdogTask"
	taskBattery        = "BatteryTask"
	taskStartCamera    = "StartCameraTask"
	taskCloseCamera    = "CloseCameraTask"
	taskPeriodicImage  = "PeriodicImageTask"
	taskCalibration    = "CalibrationTask"
)

// Options configures a Tasks set.
type Options struct {
	Monitor    MonitorLink
	Robot      RobotLink
	Camera     Camera
	Calibrator Calibrator
	Parser     parser.Parser

	QueueSize        int
	MovePeriod       time.Duration
	BatteryPeriod    time.Duration
	ImagePeriod      time.Duration
	WatchdogTick     time.Duration
	WatchdogDeadline time.Duration
	// MaxRobotFailures is the number of consecutive failed robot requests
	// after which the robot is considered lost.
	MaxRobotFailures int

	Logger *zap.SugaredLogger
}

// OptionsFromConfig fills the timing and sizing options from cfg.
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		QueueSize:        cfg.Global.MsgQueueSize,
		MovePeriod:       cfg.Periods.Move(),
		BatteryPeriod:    cfg.Periods.Battery(),
		ImagePeriod:      cfg.Periods.Image(),
		WatchdogTick:     cfg.Periods.WatchdogTick(),
		WatchdogDeadline: cfg.Periods.WatchdogDeadline(),
		MaxRobotFailures: cfg.Robot.MaxFailures,
	}
}

func (o Options) validate() error {
	var errs []error
	if o.Monitor == nil || o.Robot == nil || o.Camera == nil || o.Calibrator == nil || o.Parser == nil {
		errs = append(errs, errors.New("monitor, robot, camera, calibrator and parser are required"))
	}
	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", o.QueueSize))
	}
	if o.MovePeriod <= 0 || o.BatteryPeriod <= 0 || o.ImagePeriod <= 0 || o.WatchdogTick <= 0 {
		errs = append(errs, errors.New("task periods must be positive"))
	}
	if o.WatchdogDeadline <= 0 {
		errs = append(errs, errors.New("watchdog deadline must be positive"))
	}
	if o.MaxRobotFailures <= 0 {
		errs = append(errs, errors.New("max robot failures must be positive"))
	}
	return errors.Join(errs...)
}

type taskDef struct {
	name string
	run  func(ctx context.Context)
}

// Tasks is the supervisor task set. Use New, then Init, Run, and finally Stop
// or Join.
type Tasks struct {
	opts  Options
	log   *zap.SugaredLogger
	stats *Stats

	ctx     context.Context
	cancel  context.CancelFunc
	barrier *Barrier
	queue   *MessageQueue
	sig     *signals
	state   *sharedState
	wd      *watchdog

	wg         conc.WaitGroup
	running    atomic.Int32
	ready      atomic.Bool
	session    atomic.Uint64
	extraTasks []taskDef

	mu          sync.Mutex
	initialized bool
	stopOnce    sync.Once
	stopped     chan struct{}
	taskErr     error
}

// New creates an uninitialized task set.
func New(opts Options) *Tasks {
	log := opts.Logger
	if log == nil {
		log = util.Named("supervisor")
	}
	return &Tasks{
		opts:    opts,
		log:     log,
		stats:   &Stats{},
		stopped: make(chan struct{}),
	}
}

// Init allocates the queue, the signals and the shared state and starts every
// task blocked on the barrier. On failure every task already started is
// released and waited for before the error is returned.
func (t *Tasks) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return errors.New("init: task set already initialized")
	}
	if err := t.opts.validate(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := validateSignalTable(signalTable); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	queue, err := NewMessageQueue(t.opts.QueueSize)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.barrier = NewBarrier()
	t.queue = queue
	t.sig = newSignals()
	t.state = &sharedState{}
	t.wd = newWatchdog(t.opts.WatchdogDeadline)

	names := make(map[string]bool)
	for _, def := range append(t.taskTable(), t.extraTasks...) {
		if err := t.spawn(def, names); err != nil {
			t.cancel()
			t.wait()
			return fmt.Errorf("init: %w", err)
		}
	}
	t.initialized = true
	t.ready.Store(true)
	t.log.Infof("[init] %d tasks ready, queue capacity %d", len(names), queue.Cap())
	return nil
}

func (t *Tasks) taskTable() []taskDef {
	return []taskDef{
		{taskServer, t.serverTask},
		{taskReceiveFromMon, t.receiveFromMonTask},
		{taskSendToMon, t.sendToMonTask},
		{taskCloseComMon, t.closeComMonTask},
		{taskOpenComRobot, t.openComRobotTask},
		{taskCloseComRobot, t.closeComRobotTask},
		{taskStartRobot, t.startRobotTask},
		{taskMove, t.moveTask},
		{taskWatchdog, t.watchdogTask},
		{taskBattery, t.batteryTask},
		{taskStartCamera, t.startCameraTask},
		{taskCloseCamera, t.closeCameraTask},
		{taskPeriodicImage, t.periodicImageTask},
		{taskCalibration, t.calibrationTask},
	}
}

func (t *Tasks) spawn(def taskDef, names map[string]bool) error {
	if def.name == "" || def.run == nil {
		return fmt.Errorf("invalid task definition %q", def.name)
	}
	if names[def.name] {
		return fmt.Errorf("task %s started twice", def.name)
	}
	names[def.name] = true
	ctx := t.ctx
	t.running.Add(1)
	t.wg.Go(func() {
		defer t.running.Add(-1)
		if err := t.barrier.Wait(ctx); err != nil {
			return
		}
		t.log.Debugf("[%s] started", def.name)
		def.run(ctx)
		t.log.Debugf("[%s] exited", def.name)
	})
	return nil
}

// wait blocks until every task returned and records the first panic.
func (t *Tasks) wait() {
	if r := t.wg.WaitAndRecover(); r != nil {
		t.taskErr = fmt.Errorf("task panicked: %w", r.AsError())
		t.log.Errorf("[stop] %v", t.taskErr)
	}
}

// Run releases the barrier. It does nothing before a successful Init.
func (t *Tasks) Run() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		t.log.Warn("[run] called before init")
		return
	}
	t.barrier.Release()
	t.log.Info("[run] tasks released")
}

// Stop cancels every task, closes the links so that blocked I/O returns, and
// waits for all tasks to return. It is safe to call more than once and from
// several goroutines. Before a successful Init it does nothing.
func (t *Tasks) Stop() {
	t.mu.Lock()
	initialized := t.initialized
	t.mu.Unlock()
	if !initialized {
		return
	}
	t.stopOnce.Do(func() {
		defer close(t.stopped)
		t.mu.Lock()
		defer t.mu.Unlock()
		t.log.Info("[stop] shutting down")
		t.cancel()
		t.closeLinks()
		t.wait()
		// a task may have reopened a link before seeing the cancellation
		t.closeLinks()
		t.log.Infof("[stop] done: %+v", t.stats.Snapshot())
	})
}

func (t *Tasks) closeLinks() {
	if err := t.opts.Monitor.Close(); err != nil {
		t.log.Warnf("[stop] close monitor: %v", err)
	}
	if err := t.opts.Robot.Close(); err != nil {
		t.log.Warnf("[stop] close robot: %v", err)
	}
	if err := t.opts.Camera.Close(); err != nil {
		t.log.Warnf("[stop] close camera: %v", err)
	}
}

// Join blocks until Stop completes or the process receives SIGINT or SIGTERM,
// in which case it stops the task set itself. It returns an error if a task
// panicked, and returns at once before a successful Init.
func (t *Tasks) Join() error {
	t.mu.Lock()
	if !t.initialized {
		err := t.taskErr
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case <-t.stopped:
	case <-ctx.Done():
		t.log.Info("[join] termination signal received")
		t.Stop()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskErr
}

// Stats returns the counters collected so far.
func (t *Tasks) Stats() StatsSnapshot { return t.stats.Snapshot() }

// send enqueues an outbound message. It only fails during shutdown.
func (t *Tasks) send(ctx context.Context, msg *model.Message) {
	if err := t.queue.Write(ctx, msg); err != nil {
		t.log.Debugf("[queue] %s dropped: %v", msg.Type, err)
	}
}

func (t *Tasks) sendError(ctx context.Context, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	t.log.Warn(reason)
	t.send(ctx, model.NewError(reason))
}

// every calls fn once per period until ctx is done.
func every(ctx context.Context, period time.Duration, fn func(now time.Time)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}
