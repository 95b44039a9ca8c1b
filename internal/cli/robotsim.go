package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"RobotSupervisor/internal/device"
	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/util"
)

var robotsimFlags struct {
	device          string
	baud            int
	pair            string
	id              string
	battery         int
	watchdogTimeout time.Duration
	logLevel        string
}

var robotsimCmd = &cobra.Command{
	Use:   "robotsim",
	Short: "Serve a simulated robot on a serial port",
	Long: `Answers the robot serial protocol on --device, so the supervisor can be
exercised without hardware.

With --pair left,right a socat pty pair is created first: point the supervisor's
robot.device at the left link, the simulator serves the right one.`,
	Example: `  superviseur robotsim --pair /tmp/robot,/tmp/robot-sim`,
	Args:    cobra.NoArgs,
	RunE:    runRobotSim,
}

func init() {
	f := robotsimCmd.Flags()
	f.StringVar(&robotsimFlags.device, "device", "/dev/ttyUSB0", "serial device to serve")
	f.IntVar(&robotsimFlags.baud, "baud", 9600, "baud rate")
	f.StringVar(&robotsimFlags.pair, "pair", "", "create a socat pty pair left,right and serve the right end")
	f.StringVar(&robotsimFlags.id, "id", "ROBOT_SIM_01", "simulated robot id")
	f.IntVar(&robotsimFlags.battery, "battery", int(model.BatteryFull), "reported battery level (0-2)")
	f.DurationVar(&robotsimFlags.watchdogTimeout, "watchdog-timeout", 3*time.Second, "firmware watchdog timeout")
	f.StringVar(&robotsimFlags.logLevel, "log-level", "info", "log level")
	rootCmd.AddCommand(robotsimCmd)
}

// parsePair splits a "left,right" pty pair.
func parsePair(s string) (string, string, error) {
	left, right, ok := strings.Cut(s, ",")
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if !ok || left == "" || right == "" || strings.Contains(right, ",") {
		return "", "", fmt.Errorf("invalid pair %q: want left,right", s)
	}
	return left, right, nil
}

func runRobotSim(cmd *cobra.Command, args []string) error {
	flags := robotsimFlags
	if flags.battery < int(model.BatteryEmpty) || flags.battery > int(model.BatteryFull) {
		return fmt.Errorf("battery level %d out of range", flags.battery)
	}
	logger := util.SetupLogger(flags.logLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	path := flags.device
	if flags.pair != "" {
		left, right, err := parsePair(flags.pair)
		if err != nil {
			return err
		}
		socat := util.NewSocatManager()
		defer socat.Cleanup()
		waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
		err = socat.CreatePair(waitCtx, left, right)
		waitCancel()
		if err != nil {
			return err
		}
		util.Info("[robotsim] supervisor side: %s", left)
		path = right
	}

	dev, err := device.NewSerialDevice(path, flags.baud)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			util.Error("[robotsim] close %s: %v", path, cerr)
		}
	}()

	sim := device.NewRobotSimulator(flags.id)
	sim.Battery = model.BatteryLevel(flags.battery)
	sim.WatchdogTimeout = flags.watchdogTimeout
	util.Info("[robotsim] serving on %s", path)
	if err := sim.Serve(ctx, dev); err != nil && !errors.Is(err, device.ErrClosed) {
		return err
	}
	return nil
}
