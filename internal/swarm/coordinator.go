package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hivegate/hivegate/internal/consensus"
	"github.com/hivegate/hivegate/internal/pool"
	"github.com/hivegate/hivegate/internal/scheduler"
	"github.com/hivegate/hivegate/pkg/models"
)

// Journal receives a copy of every coordinator event for durable audit.
// A nil journal disables recording; the core never reads it back.
type Journal interface {
	RecordEvent(event Event) error
}

// Config contains the coordinator's timer intervals.
type Config struct {
	// HealthInterval is how often the pool-wide health sweep runs.
	HealthInterval time.Duration
	// ResolutionInterval is how often the decision sweep runs.
	ResolutionInterval time.Duration
	// MetricsInterval is how often derived agent metrics are refreshed.
	MetricsInterval time.Duration
	// EventBuffer is the emitter channel depth.
	EventBuffer int
	// ScaleCapacity is the per-task capacity given to agents created by
	// ScalePool. Defaults to 1.
	ScaleCapacity int
	// DefaultThreshold is the agree percentage applied when a proposal
	// passes zero. Defaults to 70.
	DefaultThreshold float64
	// DefaultVoteTimeout is the voting window applied when a proposal
	// passes zero. Defaults to 60s.
	DefaultVoteTimeout time.Duration
}

// ScaleReport summarizes one scalePool call.
type ScaleReport struct {
	// Type is the scaled agent type.
	Type models.AgentType
	// Before is the population before scaling.
	Before int
	// Target is the requested population.
	Target int
	// Created lists agents started to grow the pool.
	Created []string
	// Terminated lists agents removed to shrink the pool.
	Terminated []string
	// ForcedBusy counts terminated agents that still held tasks. Their
	// work was requeued first; a non-zero count is the warning-level
	// capacity-exceeded outcome, not an error.
	ForcedBusy int
}

// Option configures a Coordinator. Use With* functions to create Options.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	logger  *zap.Logger
	journal Journal
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *coordinatorOptions) { o.logger = l }
}

// WithJournal sets the audit journal for emitted events.
func WithJournal(j Journal) Option {
	return func(o *coordinatorOptions) { o.journal = j }
}

// Coordinator translates external requests into operations on the pool,
// scheduler, and decision engine, and re-emits their lifecycle events.
type Coordinator struct {
	cfg     Config
	pool    *pool.Manager
	sched   *scheduler.Scheduler
	engine  *consensus.Engine
	emitter *EventEmitter
	journal Journal
	logger  *zap.Logger

	// failMu serializes the drain/requeue/terminate failure sequence so
	// no two failure paths interleave.
	failMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// started guards double Start/Stop.
	mu      sync.Mutex
	started bool
}

// New creates a coordinator over explicitly injected engines.
func New(cfg Config, p *pool.Manager, s *scheduler.Scheduler, e *consensus.Engine, opts ...Option) *Coordinator {
	o := coordinatorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 100
	}
	if cfg.ScaleCapacity <= 0 {
		cfg.ScaleCapacity = 1
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 70
	}
	if cfg.DefaultVoteTimeout <= 0 {
		cfg.DefaultVoteTimeout = 60 * time.Second
	}
	return &Coordinator{
		cfg:     cfg,
		pool:    p,
		sched:   s,
		engine:  e,
		emitter: NewEventEmitter(cfg.EventBuffer, o.logger),
		journal: o.journal,
		logger:  o.logger,
	}
}

// Events returns the channel external collaborators subscribe to.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// DroppedEventCount returns the number of events dropped under backpressure.
func (c *Coordinator) DroppedEventCount() uint64 {
	return c.emitter.DroppedCount()
}

// Start launches the background sweeps: health checks, decision
// resolution, and metrics refresh. Each sweep has fixed per-tick cost
// proportional to live pool/decision size.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator already started")
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)

	c.runTicker(ctx, c.cfg.HealthInterval, c.healthSweep)
	c.runTicker(ctx, c.cfg.ResolutionInterval, c.resolutionSweep)
	c.runTicker(ctx, c.cfg.MetricsInterval, func() {
		c.pool.RefreshMetrics()
		c.sched.Prune()
	})

	c.logger.Info("coordinator started",
		zap.Duration("health_interval", c.cfg.HealthInterval),
		zap.Duration("resolution_interval", c.cfg.ResolutionInterval))
	return nil
}

// Stop cancels the background sweeps, waits for them to finish, and
// closes the event channel.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false

	c.cancel()
	c.wg.Wait()
	c.emitter.Close()
	c.logger.Info("coordinator stopped")
}

// runTicker drives one periodic sweep until the context ends.
func (c *Coordinator) runTicker(ctx context.Context, interval time.Duration, tick func()) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

// SubmitTask queues a task and runs an immediate assignment pass.
// Returns the task ID.
func (c *Coordinator) SubmitTask(task *models.Task) (string, error) {
	id, err := c.sched.Submit(task)
	if err != nil {
		return "", err
	}
	c.emit(Event{Type: EventTaskQueued, TaskID: id})
	c.assignSweep()
	return id, nil
}

// WithdrawTask removes a pending task before it is assigned.
func (c *Coordinator) WithdrawTask(taskID string) error {
	_, err := c.sched.Withdraw(taskID)
	return err
}

// CompleteTask records a successful task outcome reported by the
// agent-execution layer, releases the agent's slot, and reassigns.
func (c *Coordinator) CompleteTask(taskID string) error {
	return c.finishTask(taskID, true, "")
}

// FailTask records a failed task outcome reported by the
// agent-execution layer, releases the agent's slot, and reassigns.
func (c *Coordinator) FailTask(taskID, reason string) error {
	return c.finishTask(taskID, false, reason)
}

func (c *Coordinator) finishTask(taskID string, success bool, reason string) error {
	var (
		final models.Task
		err   error
	)
	if success {
		final, err = c.sched.Complete(taskID)
	} else {
		final, err = c.sched.Fail(taskID, reason)
	}
	if err != nil {
		return err
	}

	latency := time.Duration(0)
	if final.StartedAt != nil && final.CompletedAt != nil {
		latency = final.CompletedAt.Sub(*final.StartedAt)
	}
	if err := c.pool.ReleaseTask(final.AssignedTo, taskID, success, latency); err != nil {
		c.logger.Warn("release after finish failed",
			zap.String("task", taskID),
			zap.String("agent", final.AssignedTo),
			zap.Error(err))
	}

	if success {
		c.emit(Event{Type: EventTaskCompleted, TaskID: taskID, AgentID: final.AssignedTo})
	} else {
		c.emit(Event{Type: EventTaskFailed, TaskID: taskID, AgentID: final.AssignedTo, Reason: reason})
	}
	c.assignSweep()
	return nil
}

// ProposeDecision opens a decision round sized to the current roster and
// broadcasts a vote solicitation to every eligible agent.
func (c *Coordinator) ProposeDecision(topic, description string, threshold float64, minParticipants int, timeout time.Duration) (string, error) {
	if threshold == 0 {
		threshold = c.cfg.DefaultThreshold
	}
	if timeout == 0 {
		timeout = c.cfg.DefaultVoteTimeout
	}
	roster := c.pool.RosterIDs()
	id, res, err := c.engine.Propose(topic, description, threshold, minParticipants, timeout, len(roster))
	if err != nil {
		return "", err
	}
	c.emit(Event{Type: EventVoteRequested, DecisionID: id, Roster: roster})
	if res != nil {
		c.emitResolution(*res)
	}
	return id, nil
}

// CastVote applies one agent's vote. Returns false when the decision has
// already resolved; votes after resolution never change the outcome.
func (c *Coordinator) CastVote(decisionID, agentID string, choice models.VoteChoice, confidence int, reason string) (bool, error) {
	accepted, res, err := c.engine.Vote(decisionID, agentID, choice, confidence, reason)
	if err != nil {
		return false, err
	}
	if res != nil {
		c.emitResolution(*res)
	}
	return accepted, nil
}

// ScalePool grows or shrinks the population of one agent type to the
// target count. Shrinking requeues any held work before terminating the
// victim; busy victims are only drafted when idle ones do not suffice.
func (c *Coordinator) ScalePool(t models.AgentType, target int) (ScaleReport, error) {
	if !t.Valid() {
		return ScaleReport{}, fmt.Errorf("%w: unknown agent type %q", pool.ErrInvalidConfig, t)
	}
	if target < 0 {
		return ScaleReport{}, fmt.Errorf("%w: negative target %d", pool.ErrInvalidConfig, target)
	}

	report := ScaleReport{Type: t, Before: c.pool.CountByType(t), Target: target}
	switch {
	case target > report.Before:
		for i := 0; i < target-report.Before; i++ {
			id, err := c.pool.Create(pool.AgentConfig{Type: t, Capacity: c.cfg.ScaleCapacity})
			if err != nil {
				return report, err
			}
			c.emit(Event{Type: EventAgentCreated, AgentID: id})
			if err := c.pool.Start(id); err != nil {
				return report, err
			}
			c.emit(Event{Type: EventAgentStarted, AgentID: id})
			report.Created = append(report.Created, id)
		}
	case target < report.Before:
		victims, busy := c.pool.ShrinkVictims(t, report.Before-target)
		report.ForcedBusy = busy
		if busy > 0 {
			c.logger.Warn("scale-down drafting busy agents",
				zap.String("type", string(t)), zap.Int("busy", busy))
		}
		for _, id := range victims {
			c.retireAgent(id, "scale-down")
			report.Terminated = append(report.Terminated, id)
		}
	}

	c.assignSweep()
	return report, nil
}

// StartAgent transitions an agent into service.
func (c *Coordinator) StartAgent(id string) error {
	if err := c.pool.Start(id); err != nil {
		return err
	}
	c.emit(Event{Type: EventAgentStarted, AgentID: id})
	c.assignSweep()
	return nil
}

// StopAgent takes an agent out of service, optionally waiting for its
// task set to drain within the pool's grace period.
func (c *Coordinator) StopAgent(ctx context.Context, id string, graceful bool) error {
	if err := c.pool.Stop(ctx, id, graceful); err != nil {
		return err
	}
	c.emit(Event{Type: EventAgentStopped, AgentID: id})
	return nil
}

// PauseAgent suspends an agent; it keeps its tasks but receives no new work.
func (c *Coordinator) PauseAgent(id string) error {
	if err := c.pool.Pause(id); err != nil {
		return err
	}
	c.emit(Event{Type: EventAgentPaused, AgentID: id})
	return nil
}

// ResumeAgent returns a suspended agent to service.
func (c *Coordinator) ResumeAgent(id string) error {
	if err := c.pool.Resume(id); err != nil {
		return err
	}
	c.emit(Event{Type: EventAgentResumed, AgentID: id})
	c.assignSweep()
	return nil
}

// PauseAll suspends every busy agent. Held tasks stay put.
func (c *Coordinator) PauseAll() {
	for _, id := range c.pool.PauseAll() {
		c.emit(Event{Type: EventAgentPaused, AgentID: id})
	}
}

// ResumeAll returns every suspended agent to service and reassigns.
func (c *Coordinator) ResumeAll() {
	for _, id := range c.pool.ResumeAll() {
		c.emit(Event{Type: EventAgentResumed, AgentID: id})
	}
	c.assignSweep()
}

// AgentStates returns a snapshot of every agent record.
func (c *Coordinator) AgentStates() []models.Agent {
	return c.pool.Snapshot()
}

// TaskQueueDepth returns the number of pending tasks. Scheduling
// starvation shows up here as observable backpressure, not as an error.
func (c *Coordinator) TaskQueueDepth() int {
	return c.sched.Depth()
}

// GetTask returns one task record, live or terminal.
func (c *Coordinator) GetTask(taskID string) (models.Task, error) {
	return c.sched.Get(taskID)
}

// GetDecision returns one decision record.
func (c *Coordinator) GetDecision(decisionID string) (models.Decision, error) {
	return c.engine.Get(decisionID)
}

// ActiveDecisions returns all decisions still collecting votes.
func (c *Coordinator) ActiveDecisions() []models.Decision {
	return c.engine.Active()
}

// assignSweep runs a scheduler pass and announces the assignments.
func (c *Coordinator) assignSweep() {
	for _, a := range c.sched.Assign() {
		c.emit(Event{Type: EventTaskAssigned, TaskID: a.TaskID, AgentID: a.AgentID})
	}
}

// healthSweep grades the pool, announces transitions, and drives the
// recover-or-retire path for agents that grade Unhealthy or Critical.
func (c *Coordinator) healthSweep() {
	for _, tr := range c.pool.SweepHealth() {
		c.emit(Event{Type: EventAgentHealthChanged, AgentID: tr.AgentID, Grade: tr.To})
		if tr.To != models.HealthUnhealthy && tr.To != models.HealthCritical {
			continue
		}
		if err := c.pool.Recover(tr.AgentID); err != nil {
			c.logger.Warn("recovery failed, retiring agent",
				zap.String("agent", tr.AgentID), zap.Error(err))
			c.retireAgent(tr.AgentID, "recovery failed")
			c.emit(Event{Type: EventAgentFailed, AgentID: tr.AgentID, Reason: "recovery failed"})
			continue
		}
		if err := c.pool.Start(tr.AgentID); err == nil {
			c.emit(Event{Type: EventAgentRecovered, AgentID: tr.AgentID})
		}
	}
	c.assignSweep()
}

// resolutionSweep applies the periodic decision resolution and timeout
// checks and announces the outcomes.
func (c *Coordinator) resolutionSweep() {
	for _, res := range c.engine.Sweep() {
		c.emitResolution(res)
	}
}

// retireAgent is the single failure/removal path: drain the agent's
// tasks, requeue them at the front of their priority band, then
// terminate. Requeue always happens before terminate.
func (c *Coordinator) retireAgent(id, reason string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	orphaned, err := c.pool.DrainTasks(id)
	if err != nil {
		c.logger.Warn("drain failed", zap.String("agent", id), zap.Error(err))
		return
	}
	c.sched.RequeueFront(orphaned)
	for _, taskID := range orphaned {
		c.emit(Event{Type: EventTaskRequeued, TaskID: taskID, AgentID: id})
	}
	if err := c.pool.Terminate(id, reason); err != nil {
		c.logger.Warn("terminate failed", zap.String("agent", id), zap.Error(err))
	}
}

// emitResolution announces a terminal decision.
func (c *Coordinator) emitResolution(res consensus.Resolution) {
	tally := res.Tally
	c.emit(Event{
		Type:       EventDecisionResolved,
		DecisionID: res.DecisionID,
		Status:     res.Status,
		Tally:      &tally,
	})
}

// emit timestamps an event, hands it to subscribers, and records it in
// the journal when one is configured.
func (c *Coordinator) emit(event Event) {
	event.Timestamp = time.Now()
	c.emitter.Emit(event)
	if c.journal != nil {
		if err := c.journal.RecordEvent(event); err != nil {
			c.logger.Warn("journal write failed",
				zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
}
