package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivegate/hivegate/pkg/models"
)

// Config contains tuning knobs for the pool manager.
type Config struct {
	// GracePeriod bounds how long a graceful stop waits for an agent's
	// task set to empty before forcing the transition.
	GracePeriod time.Duration
	// PressureFraction is the load fraction (current / capacity) at or
	// above which the resource-pressure health flag raises.
	PressureFraction float64
	// InactivityTimeout is how long an agent may go without activity
	// before the inactivity health flag raises.
	InactivityTimeout time.Duration
}

// AgentConfig describes one agent to create.
type AgentConfig struct {
	// Type is the declared role.
	Type models.AgentType
	// Priority is the scheduling rank; zero means the role default.
	Priority int
	// Capacity is the maximum number of concurrent tasks. Must be >= 1.
	Capacity int
}

// Candidate is a consistent snapshot of one agent's scheduling eligibility.
type Candidate struct {
	// ID is the agent ID.
	ID string
	// Priority is the agent's scheduling rank.
	Priority int
	// Spare is the remaining task capacity.
	Spare int
}

// Manager owns all agent records. All mutations are serialized through
// its internal lock; reads hand out copies.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	// agents maps agent IDs to their records.
	agents map[string]*models.Agent
	// mu protects agents and every record behind it.
	mu sync.RWMutex

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// New creates a pool manager with no agents.
func New(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		agents: make(map[string]*models.Agent),
		now:    time.Now,
	}
}

// defaultPriority maps an agent type to its default scheduling rank.
func defaultPriority(t models.AgentType) int {
	switch t {
	case models.AgentTypeCoordinator:
		return 1
	case models.AgentTypeSpecialist:
		return 2
	default:
		return 3
	}
}

// Create validates the config and inserts a new agent in Idle state.
// Returns the new agent's ID.
func (m *Manager) Create(ac AgentConfig) (string, error) {
	if ac.Capacity < 1 {
		return "", fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidConfig, ac.Capacity)
	}
	if !ac.Type.Valid() {
		return "", fmt.Errorf("%w: unknown agent type %q", ErrInvalidConfig, ac.Type)
	}
	priority := ac.Priority
	if priority <= 0 {
		priority = defaultPriority(ac.Type)
	}

	id := string(ac.Type) + "-" + uuid.New().String()[:8]
	now := m.now()
	agent := &models.Agent{
		ID:           id,
		Type:         ac.Type,
		Priority:     priority,
		Capacity:     ac.Capacity,
		Status:       models.AgentStatusIdle,
		Health:       models.HealthHealthy,
		LastActivity: now,
		CreatedAt:    now,
	}

	m.mu.Lock()
	m.agents[id] = agent
	m.mu.Unlock()

	m.logger.Info("agent created",
		zap.String("agent", id),
		zap.String("type", string(ac.Type)),
		zap.Int("capacity", ac.Capacity))
	return id, nil
}

// Start transitions an Idle or Suspended agent to Busy, making it
// available for work.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	switch agent.Status {
	case models.AgentStatusIdle, models.AgentStatusSuspended:
		agent.Status = models.AgentStatusBusy
		agent.LastActivity = m.now()
		return nil
	default:
		return fmt.Errorf("%w: cannot start agent in state %q", ErrInvalidState, agent.Status)
	}
}

// Stop transitions an agent to Idle. When graceful and the agent still
// holds tasks, Stop waits up to the configured grace period for the task
// set to empty before forcing the transition. The agent always ends Idle.
func (m *Manager) Stop(ctx context.Context, id string, graceful bool) error {
	m.mu.Lock()
	agent, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !graceful || len(agent.TaskIDs) == 0 {
		agent.Status = models.AgentStatusIdle
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	deadline := m.now().Add(m.cfg.GracePeriod)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		agent, err = m.lookupLocked(id)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if len(agent.TaskIDs) == 0 || !m.now().Before(deadline) {
			if n := len(agent.TaskIDs); n > 0 {
				m.logger.Warn("grace period expired, forcing stop",
					zap.String("agent", id), zap.Int("held_tasks", n))
			}
			agent.Status = models.AgentStatusIdle
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pause transitions a Busy agent to Suspended. The agent keeps its task
// set but is excluded from scheduling eligibility.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if agent.Status != models.AgentStatusBusy {
		return fmt.Errorf("%w: cannot pause agent in state %q", ErrInvalidState, agent.Status)
	}
	agent.Status = models.AgentStatusSuspended
	return nil
}

// Resume transitions a Suspended agent back to Busy.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if agent.Status != models.AgentStatusSuspended {
		return fmt.Errorf("%w: cannot resume agent in state %q", ErrInvalidState, agent.Status)
	}
	agent.Status = models.AgentStatusBusy
	agent.LastActivity = m.now()
	return nil
}

// Terminate moves an agent to its terminal state and clears its task set.
// Any orphaned tasks must already have been requeued by the caller;
// termination never requeues work itself.
func (m *Manager) Terminate(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if held := len(agent.TaskIDs); held > 0 {
		m.logger.Warn("terminating agent that still holds tasks",
			zap.String("agent", id), zap.Int("held_tasks", held))
	}
	agent.Status = models.AgentStatusTerminated
	agent.TaskIDs = nil

	m.logger.Info("agent terminated",
		zap.String("agent", id), zap.String("reason", reason))
	return nil
}

// Recover attempts to restore an Unhealthy or Critical agent. It runs a
// fresh health check; if the check comes back clean the agent returns to
// Idle and Healthy, otherwise ErrRecoveryFailed is returned and the
// caller is expected to terminate the agent.
func (m *Manager) Recover(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if agent.Health != models.HealthUnhealthy && agent.Health != models.HealthCritical {
		return fmt.Errorf("%w: recover requires unhealthy or critical grade, agent is %q", ErrInvalidState, agent.Health)
	}

	grade := m.gradeLocked(agent)
	if grade != models.HealthHealthy {
		m.logger.Warn("recovery check failed",
			zap.String("agent", id), zap.String("grade", string(grade)))
		return fmt.Errorf("%w: agent %s graded %s", ErrRecoveryFailed, id, grade)
	}

	agent.Status = models.AgentStatusIdle
	agent.Health = models.HealthHealthy
	agent.LastActivity = m.now()
	m.logger.Info("agent recovered", zap.String("agent", id))
	return nil
}

// AssignTask adds a task to an agent's current set. The agent must be
// Idle or Busy, schedulable, and have spare capacity.
func (m *Manager) AssignTask(agentID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(agentID)
	if err != nil {
		return err
	}
	if agent.Status != models.AgentStatusIdle && agent.Status != models.AgentStatusBusy {
		return fmt.Errorf("%w: cannot assign to agent in state %q", ErrInvalidState, agent.Status)
	}
	if !agent.Health.Schedulable() {
		return fmt.Errorf("%w: cannot assign to agent graded %q", ErrInvalidState, agent.Health)
	}
	if agent.SpareCapacity() < 1 {
		return fmt.Errorf("%w: agent %s is at capacity", ErrInvalidState, agentID)
	}

	agent.TaskIDs = append(agent.TaskIDs, taskID)
	agent.LastActivity = m.now()

	if len(agent.TaskIDs) > agent.Capacity {
		// Structurally unreachable given the check above.
		m.logger.DPanic("agent task count exceeds capacity",
			zap.String("agent", agentID),
			zap.Int("tasks", len(agent.TaskIDs)),
			zap.Int("capacity", agent.Capacity))
	}
	return nil
}

// ReleaseTask removes a task from an agent's set and folds the outcome
// into the agent's rolling metrics.
func (m *Manager) ReleaseTask(agentID, taskID string, success bool, latency time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(agentID)
	if err != nil {
		return err
	}
	removed := false
	for i, id := range agent.TaskIDs {
		if id == taskID {
			agent.TaskIDs = append(agent.TaskIDs[:i], agent.TaskIDs[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return fmt.Errorf("%w: agent %s does not hold task %s", ErrInvalidState, agentID, taskID)
	}

	recordOutcome(&agent.Metrics, success, latency)
	agent.LastActivity = m.now()
	return nil
}

// DrainTasks atomically empties a failed agent's task set and moves the
// agent out of Busy so no scheduling pass can observe the tasks as both
// assigned and pending. Returns the orphaned task IDs in assignment order.
func (m *Manager) DrainTasks(id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	orphaned := agent.TaskIDs
	agent.TaskIDs = nil
	if agent.Status == models.AgentStatusBusy {
		agent.Status = models.AgentStatusSuspended
	}
	return orphaned, nil
}

// Eligible returns a consistent snapshot of agents that can accept work:
// Idle or Busy with spare capacity, graded Healthy or Degraded. Sorted by
// scheduling rank ascending, ties broken by ID for determinism.
func (m *Manager) Eligible() []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Candidate
	for _, a := range m.agents {
		if a.Status != models.AgentStatusIdle && a.Status != models.AgentStatusBusy {
			continue
		}
		if !a.Health.Schedulable() {
			continue
		}
		spare := a.SpareCapacity()
		if spare < 1 {
			continue
		}
		out = append(out, Candidate{ID: a.ID, Priority: a.Priority, Spare: spare})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a copy of one agent record.
func (m *Manager) Get(id string) (models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[id]
	if !ok {
		return models.Agent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyAgent(agent), nil
}

// Snapshot returns copies of all agent records, sorted by ID.
func (m *Manager) Snapshot() []models.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RosterSize returns the number of non-terminated agents. Used by the
// facade for decision participation accounting.
func (m *Manager) RosterSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, a := range m.agents {
		if a.Status != models.AgentStatusTerminated {
			n++
		}
	}
	return n
}

// RosterIDs returns the IDs of all non-terminated agents, sorted.
func (m *Manager) RosterIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.agents))
	for _, a := range m.agents {
		if a.Status != models.AgentStatusTerminated {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// CountByType returns the number of non-terminated agents of a type.
func (m *Manager) CountByType(t models.AgentType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, a := range m.agents {
		if a.Type == t && a.Status != models.AgentStatusTerminated {
			n++
		}
	}
	return n
}

// ShrinkVictims selects up to n agents of the given type for scale-down.
// Idle agents (holding no tasks) are chosen first; busy agents are only
// drafted when idle ones do not suffice. Returns the victim IDs and how
// many of them still hold tasks.
func (m *Manager) ShrinkVictims(t models.AgentType, n int) ([]string, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*models.Agent
	for _, a := range m.agents {
		if a.Type == t && a.Status != models.AgentStatusTerminated {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := len(candidates[i].TaskIDs), len(candidates[j].TaskIDs)
		if ti != tj {
			return ti < tj
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	victims := make([]string, 0, n)
	busy := 0
	for _, a := range candidates[:n] {
		victims = append(victims, a.ID)
		if len(a.TaskIDs) > 0 {
			busy++
		}
	}
	return victims, busy
}

// PauseAll suspends every Busy agent and returns the IDs it touched.
func (m *Manager) PauseAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, a := range m.agents {
		if a.Status == models.AgentStatusBusy {
			a.Status = models.AgentStatusSuspended
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ResumeAll restarts every Suspended agent and returns the IDs it touched.
func (m *Manager) ResumeAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var ids []string
	for _, a := range m.agents {
		if a.Status == models.AgentStatusSuspended {
			a.Status = models.AgentStatusBusy
			a.LastActivity = now
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// lookupLocked fetches an agent record, rejecting unknown and terminated
// IDs. Callers must hold m.mu.
func (m *Manager) lookupLocked(id string) (*models.Agent, error) {
	agent, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if agent.Status == models.AgentStatusTerminated {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyTerminated, id)
	}
	return agent, nil
}

// copyAgent returns a deep copy of an agent record.
func copyAgent(a *models.Agent) models.Agent {
	cp := *a
	cp.TaskIDs = append([]string(nil), a.TaskIDs...)
	return cp
}
