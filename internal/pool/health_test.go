package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/hivegate/hivegate/pkg/models"
)

func TestSweepHealth_NoFlagsNoTransition(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 2)
	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}

	// A responsive agent with no flags stays Healthy and emits nothing.
	changed := m.SweepHealth()
	if len(changed) != 0 {
		t.Errorf("SweepHealth() returned %d transitions, want 0", len(changed))
	}
	agent, _ := m.Get(id)
	if agent.Health != models.HealthHealthy {
		t.Errorf("health = %q, want healthy", agent.Health)
	}

	// Repeated identical grades must not produce an event storm.
	if changed := m.SweepHealth(); len(changed) != 0 {
		t.Errorf("second SweepHealth() returned %d transitions, want 0", len(changed))
	}
}

func TestSweepHealth_InactivityDegrades(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 2)
	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}

	// Advance the clock past the inactivity timeout.
	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }

	changed := m.SweepHealth()
	if len(changed) != 1 {
		t.Fatalf("SweepHealth() returned %d transitions, want 1", len(changed))
	}
	if changed[0].From != models.HealthHealthy || changed[0].To != models.HealthDegraded {
		t.Errorf("transition = %s -> %s, want healthy -> degraded", changed[0].From, changed[0].To)
	}

	// Same grade on the next sweep: no further transition.
	if changed := m.SweepHealth(); len(changed) != 0 {
		t.Errorf("repeat SweepHealth() returned %d transitions, want 0", len(changed))
	}
}

func TestSweepHealth_PressureFlag(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 1)
	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}
	// Load fraction 1/1 = 1.0 >= 0.9 cutoff.
	if err := m.AssignTask(id, "t1"); err != nil {
		t.Fatal(err)
	}

	changed := m.SweepHealth()
	if len(changed) != 1 || changed[0].To != models.HealthDegraded {
		t.Fatalf("SweepHealth() = %+v, want one transition to degraded", changed)
	}
}

func TestSweepHealth_SkipsTerminated(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 1)
	if err := m.Terminate(id, "test"); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	m.now = func() time.Time { return base.Add(time.Hour) }
	if changed := m.SweepHealth(); len(changed) != 0 {
		t.Errorf("SweepHealth() graded a terminated agent: %+v", changed)
	}
}

func TestRecover_Succeeds(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 2)
	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	m.agents[id].Health = models.HealthUnhealthy
	m.mu.Unlock()

	if err := m.Recover(id); err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	agent, _ := m.Get(id)
	if agent.Status != models.AgentStatusIdle || agent.Health != models.HealthHealthy {
		t.Errorf("after recover: status=%q health=%q, want idle/healthy", agent.Status, agent.Health)
	}
}

func TestRecover_FailsWhenFlagsPersist(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 1)
	if err := m.Start(id); err != nil {
		t.Fatal(err)
	}
	if err := m.AssignTask(id, "t1"); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	m.agents[id].Health = models.HealthCritical
	m.mu.Unlock()

	// Pressure flag still raised: the fresh check cannot come back clean.
	if err := m.Recover(id); !errors.Is(err, ErrRecoveryFailed) {
		t.Errorf("Recover() error = %v, want ErrRecoveryFailed", err)
	}
}

func TestRecover_RequiresUnhealthyGrade(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 1)

	if err := m.Recover(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Recover() on healthy agent error = %v, want ErrInvalidState", err)
	}
}

func TestRefreshMetrics(t *testing.T) {
	m := newTestManager(t)
	id := mustCreate(t, m, models.AgentTypeWorker, 1)

	m.mu.Lock()
	m.agents[id].Metrics.Completed = 3
	m.agents[id].Metrics.Failed = 1
	m.mu.Unlock()

	m.RefreshMetrics()

	agent, _ := m.Get(id)
	if agent.Metrics.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", agent.Metrics.SuccessRate)
	}
	if agent.Metrics.ErrorRate != 0.25 {
		t.Errorf("ErrorRate = %v, want 0.25", agent.Metrics.ErrorRate)
	}
}
