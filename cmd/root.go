package cmd

import (
	"fmt"
	"os"

	"vdi-inventory/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vdi-inventory",
	Short: "VDI Fleet Inventory Service",
	Long: `vdi-inventory reconciles the virtual desktop fleet across the
provisioning, broker, directory, hypervisor and telemetry planes into one
unified per-device view.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format at debug level: a CLI failure should read like a
		// terminal message, with an ISO8601 timestamp rather than epoch.
		l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
		if logErr != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
		os.Exit(1)
	}
}
