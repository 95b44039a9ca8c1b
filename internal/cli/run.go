package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"RobotSupervisor/internal/core"
	"RobotSupervisor/internal/model"
	"RobotSupervisor/internal/util"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor",
	Long: `Loads the configuration, starts the monitor server and every supervisor
task, then runs until SIGINT or SIGTERM. Exits non-zero if initialization fails.`,
	Args: cobra.NoArgs,
	RunE: runSupervisor,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "configs/config.yml", "path to configuration file")
	rootCmd.AddCommand(runCmd)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg, err := model.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := util.SetupLogger(cfg.Global.LogLevel)
	defer func() { _ = logger.Sync() }()
	util.Info("[main] using config: %s", runConfigPath)

	sys, err := core.NewSystemFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create system: %w", err)
	}
	if err := sys.Start(); err != nil {
		return err
	}

	err = sys.Join()
	util.Info("[main] shutting down system...")
	sys.Stop()
	if err != nil {
		return err
	}
	util.Info("[main] system stopped cleanly")
	return nil
}
