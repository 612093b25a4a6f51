package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at release time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print fanout version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fanout %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
