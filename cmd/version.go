package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overwritten by ldflags during release builds.
var Version = "v1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tempfox version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
