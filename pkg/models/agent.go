package models

import "time"

// AgentStatus represents the current lifecycle state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is created or stopped and holds no running loop.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is started and accepting work.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusSuspended indicates the agent is paused and excluded from scheduling.
	AgentStatusSuspended AgentStatus = "suspended"
	// AgentStatusTerminated indicates the agent has been permanently shut down.
	AgentStatusTerminated AgentStatus = "terminated"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusSuspended, AgentStatusTerminated:
		return true
	default:
		return false
	}
}

// HealthGrade is a coarse liveness/load classification used to gate
// scheduling eligibility.
type HealthGrade string

const (
	// HealthHealthy indicates no symptom flags were raised.
	HealthHealthy HealthGrade = "healthy"
	// HealthDegraded indicates one or two symptom flags were raised.
	HealthDegraded HealthGrade = "degraded"
	// HealthUnhealthy indicates three or more symptom flags were raised.
	HealthUnhealthy HealthGrade = "unhealthy"
	// HealthCritical indicates the health check itself failed.
	HealthCritical HealthGrade = "critical"
)

// Valid returns true if the grade is a known value.
func (g HealthGrade) Valid() bool {
	switch g {
	case HealthHealthy, HealthDegraded, HealthUnhealthy, HealthCritical:
		return true
	default:
		return false
	}
}

// Schedulable reports whether an agent with this grade may receive new work.
func (g HealthGrade) Schedulable() bool {
	return g == HealthHealthy || g == HealthDegraded
}

// AgentType classifies the role an agent plays in the swarm.
type AgentType string

const (
	// AgentTypeCoordinator is the lead role with the highest scheduling rank.
	AgentTypeCoordinator AgentType = "coordinator"
	// AgentTypeSpecialist is a domain-focused worker.
	AgentTypeSpecialist AgentType = "specialist"
	// AgentTypeWorker is a general-purpose worker.
	AgentTypeWorker AgentType = "worker"
)

// Valid returns true if the type is a known value.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeCoordinator, AgentTypeSpecialist, AgentTypeWorker:
		return true
	default:
		return false
	}
}

// Metrics holds rolling performance figures for one agent.
type Metrics struct {
	// Completed is the number of tasks finished successfully.
	Completed int64 `json:"completed"`
	// Failed is the number of tasks that ended in failure.
	Failed int64 `json:"failed"`
	// SuccessRate is Completed / (Completed + Failed), in [0, 1].
	SuccessRate float64 `json:"success_rate"`
	// AvgLatency is an exponential moving average of task latency.
	AvgLatency time.Duration `json:"avg_latency"`
	// ErrorRate is Failed / (Completed + Failed), in [0, 1].
	ErrorRate float64 `json:"error_rate"`
}

// Agent represents one pooled worker unit. The pool manager is the sole
// mutator of Agent fields; other components receive copies.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Type is the declared role of the agent.
	Type AgentType `json:"type"`
	// Priority is the scheduling rank; lower numbers are preferred.
	Priority int `json:"priority"`
	// Capacity is the maximum number of concurrent tasks.
	Capacity int `json:"capacity"`
	// TaskIDs is the set of task IDs currently assigned to this agent.
	TaskIDs []string `json:"task_ids,omitempty"`
	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`
	// Health is the current health grade.
	Health HealthGrade `json:"health"`
	// LastActivity is the time of the most recent assignment or completion.
	LastActivity time.Time `json:"last_activity"`
	// Metrics holds rolling performance figures.
	Metrics Metrics `json:"metrics"`
	// CreatedAt is when the agent was created.
	CreatedAt time.Time `json:"created_at"`
}

// SpareCapacity returns the number of additional tasks the agent can accept.
func (a *Agent) SpareCapacity() int {
	return a.Capacity - len(a.TaskIDs)
}

// HoldsTask returns true if the task is in the agent's current task set.
func (a *Agent) HoldsTask(taskID string) bool {
	for _, id := range a.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}
