package swarm

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hivegate/hivegate/internal/consensus"
	"github.com/hivegate/hivegate/internal/pool"
	"github.com/hivegate/hivegate/internal/scheduler"
	"github.com/hivegate/hivegate/pkg/models"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *pool.Manager, *scheduler.Scheduler) {
	t.Helper()
	p := pool.New(pool.Config{
		GracePeriod:       50 * time.Millisecond,
		PressureFraction:  2, // keep load flags out of these tests
		InactivityTimeout: time.Hour,
	}, zap.NewNop())
	s := scheduler.New(scheduler.Config{CompletedLogSize: 32, Retention: time.Hour}, p, zap.NewNop())
	e := consensus.New(consensus.Config{Retention: time.Hour}, zap.NewNop())
	return New(Config{EventBuffer: 64}, p, s, e), p, s
}

func addWorker(t *testing.T, c *Coordinator, p *pool.Manager, capacity int) string {
	t.Helper()
	id, err := p.Create(pool.AgentConfig{Type: models.AgentTypeWorker, Capacity: capacity})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := c.StartAgent(id); err != nil {
		t.Fatalf("StartAgent() error: %v", err)
	}
	return id
}

func submitTask(t *testing.T, c *Coordinator, id string) string {
	t.Helper()
	taskID, err := c.SubmitTask(&models.Task{ID: id, Type: "test"})
	if err != nil {
		t.Fatalf("SubmitTask(%s) error: %v", id, err)
	}
	return taskID
}

// drainEvents empties the buffered event channel without blocking.
func drainEvents(c *Coordinator) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestSubmitTask_AssignsImmediately(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	agent := addWorker(t, c, p, 1)

	taskID := submitTask(t, c, "t1")

	task, err := c.GetTask(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != models.TaskStatusAssigned || task.AssignedTo != agent {
		t.Errorf("task = %+v, want assigned to %s", task, agent)
	}

	events := drainEvents(c)
	if countEvents(events, EventTaskQueued) != 1 || countEvents(events, EventTaskAssigned) != 1 {
		t.Errorf("events = %+v, want one queued and one assigned", events)
	}
}

func TestCompleteTask_FreesSlotAndReassigns(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	agent := addWorker(t, c, p, 1)

	submitTask(t, c, "t1")
	submitTask(t, c, "t2")

	if got := c.TaskQueueDepth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1 before completion", got)
	}
	if err := c.CompleteTask("t1"); err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	if got := c.TaskQueueDepth(); got != 0 {
		t.Errorf("queue depth = %d, want 0 after slot freed", got)
	}

	a, _ := p.Get(agent)
	if a.Metrics.Completed != 1 {
		t.Errorf("agent completed count = %d, want 1", a.Metrics.Completed)
	}
	task, _ := c.GetTask("t2")
	if task.AssignedTo != agent {
		t.Errorf("t2 assigned to %q, want %s", task.AssignedTo, agent)
	}
}

// An agent holding three tasks fails: all three return to pending with
// cleared agent references, none lost or duplicated, and the surviving
// agent picks them up.
func TestAgentFailure_RequeuesAllHeldTasks(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	failing := addWorker(t, c, p, 3)

	for _, id := range []string{"t1", "t2", "t3"} {
		submitTask(t, c, id)
	}
	drainEvents(c)

	c.retireAgent(failing, "unit test failure")

	events := drainEvents(c)
	if got := countEvents(events, EventTaskRequeued); got != 3 {
		t.Errorf("requeued events = %d, want 3", got)
	}

	a, _ := p.Get(failing)
	if a.Status != models.AgentStatusTerminated || len(a.TaskIDs) != 0 {
		t.Errorf("failed agent = %+v, want terminated with empty task set", a)
	}

	seen := map[string]bool{}
	for _, taskID := range []string{"t1", "t2", "t3"} {
		task, err := c.GetTask(taskID)
		if err != nil {
			t.Fatalf("task %s lost: %v", taskID, err)
		}
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s status = %q, want pending", taskID, task.Status)
		}
		if task.AssignedTo != "" {
			t.Errorf("task %s still references agent %q", taskID, task.AssignedTo)
		}
		if seen[taskID] {
			t.Errorf("task %s duplicated", taskID)
		}
		seen[taskID] = true
	}

	// A new agent drains the requeued work.
	survivor := addWorker(t, c, p, 3)
	a, _ = p.Get(survivor)
	if len(a.TaskIDs) != 3 {
		t.Errorf("survivor holds %d tasks, want 3", len(a.TaskIDs))
	}
}

// At most one agent holds a given task at any instant.
func TestAssignment_ExclusiveOwnership(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	addWorker(t, c, p, 2)
	addWorker(t, c, p, 2)

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		submitTask(t, c, id)
	}

	holders := map[string]int{}
	for _, a := range c.AgentStates() {
		for _, taskID := range a.TaskIDs {
			holders[taskID]++
		}
	}
	for taskID, n := range holders {
		if n > 1 {
			t.Errorf("task %s held by %d agents", taskID, n)
		}
	}
	if len(holders) != 4 {
		t.Errorf("%d tasks assigned, want 4", len(holders))
	}
}

// Scale from 5 workers to 3 with one busy: two idle workers terminate,
// the busy one is untouched.
func TestScalePool_ShrinkSparesBusyAgents(t *testing.T) {
	c, p, _ := newTestCoordinator(t)

	var busy string
	for i := 0; i < 5; i++ {
		id := addWorker(t, c, p, 1)
		if i == 0 {
			busy = id
		}
	}
	submitTask(t, c, "t1") // lands on some agent; pin it to the busy one
	task, _ := c.GetTask("t1")
	busy = task.AssignedTo
	drainEvents(c)

	report, err := c.ScalePool(models.AgentTypeWorker, 3)
	if err != nil {
		t.Fatalf("ScalePool() error: %v", err)
	}
	if len(report.Terminated) != 2 {
		t.Fatalf("terminated %d agents, want 2", len(report.Terminated))
	}
	if report.ForcedBusy != 0 {
		t.Errorf("ForcedBusy = %d, want 0 (idle agents sufficed)", report.ForcedBusy)
	}
	for _, id := range report.Terminated {
		if id == busy {
			t.Error("busy agent terminated while idle agents sufficed")
		}
	}
	if got := p.CountByType(models.AgentTypeWorker); got != 3 {
		t.Errorf("worker count = %d, want 3", got)
	}

	b, _ := p.Get(busy)
	if !b.HoldsTask("t1") {
		t.Error("busy agent lost its task during scale-down")
	}
}

func TestScalePool_ShrinkRequeuesBusyVictims(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	for i := 0; i < 2; i++ {
		addWorker(t, c, p, 1)
	}
	submitTask(t, c, "t1")
	submitTask(t, c, "t2")
	drainEvents(c)

	report, err := c.ScalePool(models.AgentTypeWorker, 0)
	if err != nil {
		t.Fatalf("ScalePool() error: %v", err)
	}
	if report.ForcedBusy != 2 {
		t.Errorf("ForcedBusy = %d, want 2", report.ForcedBusy)
	}

	// Both tasks survive as pending; nothing is lost with the pool gone.
	for _, taskID := range []string{"t1", "t2"} {
		task, err := c.GetTask(taskID)
		if err != nil {
			t.Fatalf("task %s lost: %v", taskID, err)
		}
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s status = %q, want pending", taskID, task.Status)
		}
	}
	if got := c.TaskQueueDepth(); got != 2 {
		t.Errorf("queue depth = %d, want 2", got)
	}
}

func TestScalePool_Grow(t *testing.T) {
	c, p, _ := newTestCoordinator(t)

	report, err := c.ScalePool(models.AgentTypeWorker, 3)
	if err != nil {
		t.Fatalf("ScalePool() error: %v", err)
	}
	if len(report.Created) != 3 {
		t.Errorf("created %d agents, want 3", len(report.Created))
	}
	if got := p.CountByType(models.AgentTypeWorker); got != 3 {
		t.Errorf("worker count = %d, want 3", got)
	}
	for _, a := range c.AgentStates() {
		if a.Status != models.AgentStatusBusy {
			t.Errorf("agent %s status = %q, want busy (started)", a.ID, a.Status)
		}
	}
}

func TestProposeDecision_SolicitsRosterAndResolves(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	for i := 0; i < 3; i++ {
		addWorker(t, c, p, 1)
	}
	drainEvents(c)

	id, err := c.ProposeDecision("scale-up", "add workers", 50, 2, 30*time.Second)
	if err != nil {
		t.Fatalf("ProposeDecision() error: %v", err)
	}

	events := drainEvents(c)
	if got := countEvents(events, EventVoteRequested); got != 1 {
		t.Fatalf("vote_requested events = %d, want 1", got)
	}
	for _, ev := range events {
		if ev.Type == EventVoteRequested && len(ev.Roster) != 3 {
			t.Errorf("solicited roster size = %d, want 3", len(ev.Roster))
		}
	}

	agents := c.AgentStates()
	if _, err := c.CastVote(id, agents[0].ID, models.VoteAgree, 90, ""); err != nil {
		t.Fatal(err)
	}
	accepted, err := c.CastVote(id, agents[1].ID, models.VoteAgree, 70, "")
	if err != nil {
		t.Fatal(err)
	}
	if !accepted {
		t.Fatal("second vote rejected on active decision")
	}

	events = drainEvents(c)
	if got := countEvents(events, EventDecisionResolved); got != 1 {
		t.Fatalf("decision_resolved events = %d, want 1", got)
	}
	d, err := c.GetDecision(id)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != models.DecisionPassed {
		t.Errorf("decision status = %q, want passed", d.Status)
	}

	// Voting after resolution is a no-op.
	accepted, err = c.CastVote(id, agents[2].ID, models.VoteDisagree, 100, "late")
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Error("late vote accepted after resolution")
	}
}

func TestProposeDecision_EmptyRoster(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if _, err := c.ProposeDecision("noop", "", 50, 1, time.Second); err == nil {
		t.Error("ProposeDecision() with empty roster succeeded, want error")
	}
}

func TestHealthSweep_QuietOnHealthyPool(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	agent := addWorker(t, c, p, 2)
	submitTask(t, c, "t1")
	drainEvents(c)

	c.healthSweep()

	events := drainEvents(c)
	if got := countEvents(events, EventAgentHealthChanged); got != 0 {
		t.Errorf("health events on healthy pool = %d, want 0", got)
	}
	a, _ := p.Get(agent)
	if a.Status == models.AgentStatusTerminated {
		t.Error("healthy agent retired by sweep")
	}
}

func TestPauseResumeAll(t *testing.T) {
	c, p, _ := newTestCoordinator(t)
	for i := 0; i < 2; i++ {
		addWorker(t, c, p, 1)
	}

	c.PauseAll()
	for _, a := range c.AgentStates() {
		if a.Status != models.AgentStatusSuspended {
			t.Errorf("agent %s status = %q after PauseAll, want suspended", a.ID, a.Status)
		}
	}

	// Suspended pool: submissions back up silently.
	submitTask(t, c, "t1")
	if got := c.TaskQueueDepth(); got != 1 {
		t.Errorf("queue depth = %d, want 1 while pool paused", got)
	}

	c.ResumeAll()
	if got := c.TaskQueueDepth(); got != 0 {
		t.Errorf("queue depth = %d, want 0 after ResumeAll", got)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.cfg.HealthInterval = 10 * time.Millisecond
	c.cfg.ResolutionInterval = 10 * time.Millisecond
	c.cfg.MetricsInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	time.Sleep(30 * time.Millisecond)
	c.Stop()

	// The event channel closes on stop.
	for range c.Events() {
	}
}
