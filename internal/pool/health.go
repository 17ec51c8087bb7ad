package pool

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hivegate/hivegate/pkg/models"
)

// Transition records a health grade change for one agent.
type Transition struct {
	// AgentID is the graded agent.
	AgentID string
	// From is the previous grade.
	From models.HealthGrade
	// To is the new grade.
	To models.HealthGrade
}

// CheckAgent runs a health check on one agent and applies the resulting
// grade. The second return value reports whether the grade actually
// changed; unchanged grades produce no transition.
func (m *Manager) CheckAgent(id string) (Transition, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, err := m.lookupLocked(id)
	if err != nil {
		return Transition{}, false, err
	}
	tr := m.applyGradeLocked(agent)
	return tr, tr.From != tr.To, nil
}

// SweepHealth grades every non-terminated agent and returns the
// transitions for grades that actually changed. Cost is proportional to
// the pool size.
func (m *Manager) SweepHealth() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []Transition
	for _, agent := range m.agents {
		if agent.Status == models.AgentStatusTerminated {
			continue
		}
		tr := m.applyGradeLocked(agent)
		if tr.From != tr.To {
			changed = append(changed, tr)
		}
	}
	return changed
}

// applyGradeLocked grades one agent and stores the result. Callers must
// hold m.mu.
func (m *Manager) applyGradeLocked(agent *models.Agent) Transition {
	from := agent.Health
	to := m.gradeLocked(agent)
	agent.Health = to
	if from != to {
		m.logger.Info("agent health changed",
			zap.String("agent", agent.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	return Transition{AgentID: agent.ID, From: from, To: to}
}

// gradeLocked evaluates the symptom flags for one agent and returns the
// resulting grade. A panic inside the evaluation grades Critical.
// Callers must hold m.mu.
func (m *Manager) gradeLocked(agent *models.Agent) (grade models.HealthGrade) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check panicked",
				zap.String("agent", agent.ID),
				zap.String("panic", fmt.Sprint(r)))
			grade = models.HealthCritical
		}
	}()

	flags := 0

	// Over capacity: structurally impossible, checked defensively.
	if len(agent.TaskIDs) > agent.Capacity {
		flags++
	}

	// Resource pressure: load fraction at or above the configured cutoff.
	if m.cfg.PressureFraction > 0 && agent.Capacity > 0 {
		load := float64(len(agent.TaskIDs)) / float64(agent.Capacity)
		if load >= m.cfg.PressureFraction {
			flags++
		}
	}

	// Inactivity beyond the timeout.
	if m.cfg.InactivityTimeout > 0 && m.now().Sub(agent.LastActivity) > m.cfg.InactivityTimeout {
		flags++
	}

	switch {
	case flags == 0:
		return models.HealthHealthy
	case flags <= 2:
		return models.HealthDegraded
	default:
		return models.HealthUnhealthy
	}
}

// RefreshMetrics recomputes the derived rate figures for every
// non-terminated agent from its raw counters.
func (m *Manager) RefreshMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, agent := range m.agents {
		if agent.Status == models.AgentStatusTerminated {
			continue
		}
		refreshRates(&agent.Metrics)
	}
}
