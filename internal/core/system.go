package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RobotSupervisor/internal/device"
	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/monitor"
	"RobotSupervisor/internal/parser"
	"RobotSupervisor/internal/util"
	"RobotSupervisor/internal/vision"
)

// StatusPath is where the monitor server exposes the supervisor status.
const StatusPath = "/api/status"

// System builds the supervisor from its YAML configuration and manages the
// lifecycle of the monitor server and the task set.
type System struct {
	cfg     *model.Config
	Monitor *monitor.Server
	Robot   *device.Robot
	Camera  *device.SimCamera
	Tasks   *Tasks

	started   bool
	startLock sync.Mutex
}

// NewSystem reads the YAML configuration at cfgPath and creates a System instance.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return NewSystemFromConfig(cfg)
}

// NewSystemFromConfig constructs every component described by cfg. Nothing is
// opened until Start.
func NewSystemFromConfig(cfg *model.Config) (*System, error) {
	codec, err := parser.New(cfg.Global.WireFormat)
	if err != nil {
		return nil, err
	}
	srv := monitor.NewServer(cfg.Monitor.Addr, cfg.Monitor.Path)
	srv.Binary = cfg.Global.WireFormat == "msgpack"

	robot := device.NewRobot(device.SerialDialer(cfg.Robot.Device, cfg.Robot.Baud), cfg.Robot.ReplyTimeout())
	camera := device.NewSimCamera(cfg.Camera.Width, cfg.Camera.Height)

	opts := OptionsFromConfig(cfg)
	opts.Monitor = srv
	opts.Robot = robot
	opts.Camera = camera
	opts.Calibrator = vision.NewThresholdCalibrator(cfg.Calibration.ArenaLevel, cfg.Calibration.MarkerLevel)
	opts.Parser = codec

	tasks := New(opts)
	srv.Handle(StatusPath, tasks.StatusHandler())

	return &System{
		cfg:     cfg,
		Monitor: srv,
		Robot:   robot,
		Camera:  camera,
		Tasks:   tasks,
	}, nil
}

// Start binds the monitor server, initializes the tasks and releases them.
func (s *System) Start() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if err := s.Monitor.Start(); err != nil {
		return err
	}
	if err := s.Tasks.Init(); err != nil {
		_ = s.Monitor.Shutdown(context.Background())
		return fmt.Errorf("supervisor init failed: %w", err)
	}
	s.Tasks.Run()
	s.started = true
	util.Info("[system] supervisor running, robot on %s, monitor on %s", s.cfg.Robot.Device, s.Monitor.ListenAddr())
	return nil
}

// Join waits for the task set to stop, see Tasks.Join.
func (s *System) Join() error { return s.Tasks.Join() }

// Stop stops every task then the monitor server.
func (s *System) Stop() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	s.Tasks.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Monitor.Shutdown(ctx); err != nil {
		util.Error("[system] monitor shutdown: %v", err)
	}
	s.started = false
}
