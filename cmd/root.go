package cmd

import (
	"os"

	"github.com/mezonai/mvnode/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mvnode",
	Short: "mvnode blockchain node CLI",
	Long:  "Command line interface for running and initializing an mvnode blockchain node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
