package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hivegate/hivegate/internal/config"
	"github.com/hivegate/hivegate/internal/consensus"
	"github.com/hivegate/hivegate/internal/control"
	"github.com/hivegate/hivegate/internal/journal"
	"github.com/hivegate/hivegate/internal/pool"
	"github.com/hivegate/hivegate/internal/scheduler"
	"github.com/hivegate/hivegate/internal/swarm"
)

var (
	runRoster  string
	runJournal bool
	runControl string
	runDebug   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent swarm",
	Long: `Start the swarm: provision the agent roster, then accept tasks and
decision proposals until interrupted.

The roster file lists agent groups to provision:

  agents:
    - type: coordinator
      count: 1
      capacity: 2
    - type: worker
      count: 4
      capacity: 1

Without --roster, a default roster of one coordinator and two workers
is used.

Operator control:
  Drop a 'pause' file into the control directory to suspend the swarm;
  remove it to resume. Drop a 'drain' file to stop accepting work and
  shut down once the queue empties.`,
	RunE: runSwarm,
}

func init() {
	runCmd.Flags().StringVar(&runRoster, "roster", "", "Path to roster YAML (default: built-in roster)")
	runCmd.Flags().BoolVar(&runJournal, "journal", false, "Record events to the audit journal")
	runCmd.Flags().StringVar(&runControl, "control-dir", "", "Directory watched for pause/drain signal files")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

func runSwarm(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runSwarm: %v", r)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(runDebug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	roster := config.DefaultRoster()
	if runRoster != "" {
		roster, err = config.LoadRoster(runRoster)
		if err != nil {
			return err
		}
	}

	p := pool.New(pool.Config{
		GracePeriod:       cfg.Pool.GracePeriod,
		PressureFraction:  cfg.Pool.PressureFraction,
		InactivityTimeout: cfg.Pool.InactivityTimeout,
	}, logger)
	sched := scheduler.New(scheduler.Config{
		CompletedLogSize: cfg.Scheduler.CompletedLogSize,
		Retention:        cfg.Scheduler.Retention,
	}, p, logger)
	engine := consensus.New(consensus.Config{
		Retention: cfg.Consensus.Retention,
	}, logger)

	opts := []swarm.Option{swarm.WithLogger(logger)}

	if runJournal || cfg.Journal.Enabled {
		jnl, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		if err := jnl.Migrate(); err != nil {
			jnl.Close()
			return fmt.Errorf("migrate journal: %w", err)
		}
		defer jnl.Close()
		opts = append(opts, swarm.WithJournal(jnl))
		logger.Info("journal enabled", zap.String("path", jnl.Path()))
	}

	coord := swarm.New(swarm.Config{
		HealthInterval:     cfg.Swarm.HealthInterval,
		ResolutionInterval: cfg.Swarm.ResolutionInterval,
		MetricsInterval:    cfg.Swarm.MetricsInterval,
		EventBuffer:        cfg.Swarm.EventBuffer,
		ScaleCapacity:      cfg.Swarm.ScaleCapacity,
		DefaultThreshold:   cfg.Consensus.DefaultThreshold,
		DefaultVoteTimeout: cfg.Consensus.DefaultTimeout,
	}, p, sched, engine, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := provisionRoster(coord, p, roster); err != nil {
		return err
	}
	logger.Info("roster provisioned", zap.Int("agents", roster.Size()))

	if err := coord.Start(ctx); err != nil {
		return err
	}

	// Drain the event stream into the log until shutdown.
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range coord.Events() {
			logEvent(logger, ev)
		}
	}()

	controlDir := cfg.Control.Dir
	if runControl != "" {
		controlDir = runControl
	}
	if controlDir != "" {
		if err := watchControl(ctx, stop, coord, controlDir, logger); err != nil {
			logger.Warn("control watcher unavailable", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	coord.Stop()
	<-eventsDone

	if dropped := coord.DroppedEventCount(); dropped > 0 {
		logger.Warn("events dropped under backpressure", zap.Uint64("count", dropped))
	}
	return nil
}

// provisionRoster creates and starts the configured agent population.
func provisionRoster(coord *swarm.Coordinator, p *pool.Manager, roster *config.Roster) error {
	for _, entry := range roster.Agents {
		for i := 0; i < entry.Count; i++ {
			id, err := p.Create(pool.AgentConfig{
				Type:     entry.Type,
				Priority: entry.Priority,
				Capacity: entry.Capacity,
			})
			if err != nil {
				return fmt.Errorf("provision %s agent: %w", entry.Type, err)
			}
			if err := coord.StartAgent(id); err != nil {
				return fmt.Errorf("start agent %s: %w", id, err)
			}
		}
	}
	return nil
}

// watchControl polls the signal manager and applies operator signals.
func watchControl(ctx context.Context, stop context.CancelFunc, coord *swarm.Coordinator, dir string, logger *zap.Logger) error {
	sm, err := control.NewSignalManager(dir)
	if err != nil {
		return err
	}
	logger.Info("control directory watched", zap.String("dir", dir))

	go func() {
		defer sm.Close()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		paused := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if sm.ShouldDrain() {
				logger.Info("drain signal received, waiting for queue to empty")
				for coord.TaskQueueDepth() > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
				logger.Info("queue drained, stopping")
				stop()
				return
			}

			if pause := sm.ShouldPause(); pause != paused {
				paused = pause
				if paused {
					logger.Info("pause signal received")
					coord.PauseAll()
				} else {
					logger.Info("pause signal cleared")
					coord.ResumeAll()
				}
			}
		}
	}()
	return nil
}

// logEvent mirrors one coordinator event into the structured log.
func logEvent(logger *zap.Logger, ev swarm.Event) {
	fields := make([]zap.Field, 0, 4)
	if ev.AgentID != "" {
		fields = append(fields, zap.String("agent", ev.AgentID))
	}
	if ev.TaskID != "" {
		fields = append(fields, zap.String("task", ev.TaskID))
	}
	if ev.DecisionID != "" {
		fields = append(fields, zap.String("decision", ev.DecisionID))
	}
	if ev.Grade != "" {
		fields = append(fields, zap.String("grade", string(ev.Grade)))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("status", string(ev.Status)))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	logger.Info(string(ev.Type), fields...)
}

// newLogger builds the process logger.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug || os.Getenv("HIVEGATE_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
