package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "superviseur",
	Short: "Onboard supervisor bridging a remote monitor, a mobile robot and a camera",
	Long: `superviseur runs on the robot's embedded computer. It accepts one monitor
client over a websocket, drives the robot over its serial link with a motion
watchdog, and streams camera frames and arena calibration results back.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("superviseur version {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
