// Package model defines shared configuration structures used to initialize the supervisor.
package model

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global      GlobalConfig      `yaml:"global"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Robot       RobotConfig       `yaml:"robot"`
	Camera      CameraConfig      `yaml:"camera"`
	Periods     PeriodsConfig     `yaml:"periods"`
	Calibration CalibrationConfig `yaml:"calibration"`
}

// GlobalConfig defines shared defaults across the system.
type GlobalConfig struct {
	WireFormat   string `yaml:"wire_format"`    // monitor wire format (text/json/msgpack)
	MsgQueueSize int    `yaml:"msg_queue_size"` // capacity of the outbound queue
	LogLevel     string `yaml:"log_level"`
}

// MonitorConfig defines where the monitor link listens.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // e.g. ":5544"
	Path string `yaml:"path"` // websocket endpoint, e.g. "/ws"
}

// RobotConfig defines the serial link to the robot.
type RobotConfig struct {
	Device         string `yaml:"device"`
	Baud           int    `yaml:"baud"`
	ReplyTimeoutMs int    `yaml:"reply_timeout_ms"`
	MaxFailures    int    `yaml:"max_failures"` // consecutive failures before the robot is lost
}

// CameraConfig defines the onboard camera.
type CameraConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// PeriodsConfig holds the period of every periodic task and the watchdog deadline.
type PeriodsConfig struct {
	MoveMs             int `yaml:"move_ms"`
	BatteryMs          int `yaml:"battery_ms"`
	ImageMs            int `yaml:"image_ms"`
	WatchdogTickMs     int `yaml:"watchdog_tick_ms"`
	WatchdogDeadlineMs int `yaml:"watchdog_deadline_ms"`
}

// CalibrationConfig holds the thresholds of the arena calibration routine.
type CalibrationConfig struct {
	ArenaLevel  uint8 `yaml:"arena_level"`
	MarkerLevel uint8 `yaml:"marker_level"`
}

// ReplyTimeout returns the robot reply timeout.
func (r RobotConfig) ReplyTimeout() time.Duration { return ms(r.ReplyTimeoutMs) }

// Move returns the MoveTask period.
func (p PeriodsConfig) Move() time.Duration { return ms(p.MoveMs) }

// Battery returns the BatteryTask period.
func (p PeriodsConfig) Battery() time.Duration { return ms(p.BatteryMs) }

// Image returns the PeriodicImageTask period.
func (p PeriodsConfig) Image() time.Duration { return ms(p.ImageMs) }

// WatchdogTick returns the WatchdogTask period.
func (p PeriodsConfig) WatchdogTick() time.Duration { return ms(p.WatchdogTickMs) }

// WatchdogDeadline returns the maximum interval between motion commands.
func (p PeriodsConfig) WatchdogDeadline() time.Duration { return ms(p.WatchdogDeadlineMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// DefaultConfig returns the configuration used for every unset field.
func DefaultConfig() Config {
	return Config{
		Global:  GlobalConfig{WireFormat: "text", MsgQueueSize: 100, LogLevel: "info"},
		Monitor: MonitorConfig{Addr: ":5544", Path: "/ws"},
		Robot:   RobotConfig{Device: "/dev/ttyS0", Baud: 9600, ReplyTimeoutMs: 500, MaxFailures: 3},
		Camera:  CameraConfig{Width: 320, Height: 240},
		Periods: PeriodsConfig{
			MoveMs:             100,
			BatteryMs:          500,
			ImageMs:            100,
			WatchdogTickMs:     100,
			WatchdogDeadlineMs: 1000,
		},
		Calibration: CalibrationConfig{ArenaLevel: 60, MarkerLevel: 200},
	}
}

// LoadConfig reads a YAML config file, expands environment variables, applies
// defaults for missing fields and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the supervisor cannot run without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Global.WireFormat {
	case "text", "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("global.wire_format %q: want text, json or msgpack", c.Global.WireFormat))
	}
	if c.Global.MsgQueueSize <= 0 {
		errs = append(errs, errors.New("global.msg_queue_size must be positive"))
	}
	if c.Monitor.Addr == "" {
		errs = append(errs, errors.New("monitor.addr is required"))
	}
	if c.Robot.Device == "" || c.Robot.Baud <= 0 {
		errs = append(errs, errors.New("robot.device and robot.baud are required"))
	}
	if c.Robot.ReplyTimeoutMs <= 0 {
		errs = append(errs, errors.New("robot.reply_timeout_ms must be positive"))
	}
	if c.Robot.MaxFailures <= 0 {
		errs = append(errs, errors.New("robot.max_failures must be positive"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, errors.New("camera.width and camera.height must be positive"))
	}
	p := c.Periods
	if p.MoveMs <= 0 || p.BatteryMs <= 0 || p.ImageMs <= 0 || p.WatchdogTickMs <= 0 {
		errs = append(errs, errors.New("periods must be positive"))
	}
	if p.WatchdogDeadlineMs <= p.WatchdogTickMs {
		errs = append(errs, errors.New("periods.watchdog_deadline_ms must exceed watchdog_tick_ms"))
	}
	if c.Calibration.MarkerLevel <= c.Calibration.ArenaLevel {
		errs = append(errs, errors.New("calibration.marker_level must exceed arena_level"))
	}
	return errors.Join(errs...)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}
