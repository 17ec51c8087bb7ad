package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hivegate/hivegate/internal/config"
	"github.com/hivegate/hivegate/internal/journal"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent swarm activity",
	Long: `Display recent events from the audit journal.

Shows agent lifecycle changes, task assignments and outcomes, and
decision resolutions, newest first. Requires a journal recorded by
'hivegate run --journal'.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of events to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := cfg.JournalPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No journal found. Run 'hivegate run --journal' to record activity.")
		return nil
	}

	jnl, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	if err := jnl.Migrate(); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}

	total, err := jnl.EventCount()
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	if total == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	records, err := jnl.RecentEvents(statusLimit)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	fmt.Printf("Recent Events (%d of %d):\n", len(records), total)
	for _, r := range records {
		displayRecord(r)
	}
	return nil
}

// displayRecord prints one journal row with the event type colored by
// outcome.
func displayRecord(r journal.Record) {
	subject := r.AgentID
	if r.TaskID != "" {
		subject = r.TaskID
	}
	if r.DecisionID != "" {
		subject = r.DecisionID
	}

	detail := ""
	switch {
	case r.Status != "":
		detail = r.Status
	case r.Grade != "":
		detail = r.Grade
	case r.Reason != "":
		detail = r.Reason
	}
	if detail != "" {
		detail = " (" + detail + ")"
	}

	fmt.Printf("  %s  %s %s%s\n",
		r.Timestamp.Local().Format(time.TimeOnly),
		eventColor(r.Type).Sprintf("%-22s", r.Type),
		subject,
		detail)
}

// eventColor maps event types to display colors: red for failures,
// yellow for degradation, green for completed work.
func eventColor(eventType string) *color.Color {
	switch {
	case strings.HasSuffix(eventType, "_failed"):
		return color.New(color.FgRed)
	case eventType == "agent_health_changed", strings.HasSuffix(eventType, "_requeued"):
		return color.New(color.FgYellow)
	case strings.HasSuffix(eventType, "_completed"), strings.HasSuffix(eventType, "_recovered"), strings.HasSuffix(eventType, "_resolved"):
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgCyan)
	}
}
