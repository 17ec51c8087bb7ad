package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hivegate",
	Short: "Agent swarm lifecycle, scheduling, and consensus",
	Long: `Hivegate runs a swarm of pooled agents: it manages their lifecycle
and health, schedules prioritized tasks across them, and resolves
group decisions through quorum voting.

Core capabilities:
- Pools agents by role with per-agent capacity and health grading
- Assigns tasks in priority order with exclusive ownership
- Requeues orphaned work before a failed agent is removed
- Runs threshold-based decision rounds sized to the live roster
- Records every lifecycle event to a durable audit journal`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
