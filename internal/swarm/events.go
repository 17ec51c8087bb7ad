// Package swarm wires the agent pool, task scheduler, and decision
// engine together. The coordinator is the only component that touches
// more than one engine in a single logical step, and therefore owns the
// ordering guarantee that orphaned work is requeued before its agent is
// terminated.
package swarm

import (
	"time"

	"github.com/hivegate/hivegate/pkg/models"
)

// EventType represents the kind of coordinator event.
type EventType string

const (
	// EventAgentCreated indicates a new agent joined the pool.
	EventAgentCreated EventType = "agent_created"
	// EventAgentStarted indicates an agent began accepting work.
	EventAgentStarted EventType = "agent_started"
	// EventAgentStopped indicates an agent returned to idle.
	EventAgentStopped EventType = "agent_stopped"
	// EventAgentPaused indicates an agent was suspended.
	EventAgentPaused EventType = "agent_paused"
	// EventAgentResumed indicates a suspended agent resumed.
	EventAgentResumed EventType = "agent_resumed"
	// EventAgentHealthChanged indicates an agent's health grade moved.
	EventAgentHealthChanged EventType = "agent_health_changed"
	// EventAgentFailed indicates an agent was terminated after failure.
	EventAgentFailed EventType = "agent_failed"
	// EventAgentRecovered indicates a degraded agent passed a fresh
	// health check and returned to service.
	EventAgentRecovered EventType = "agent_recovered"
	// EventTaskQueued indicates a task entered the pending queue.
	EventTaskQueued EventType = "task_queued"
	// EventTaskAssigned indicates a task was handed to an agent.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskRequeued indicates an orphaned task went back to pending.
	EventTaskRequeued EventType = "task_requeued"
	// EventTaskCompleted indicates a task finished successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task ended in failure.
	EventTaskFailed EventType = "task_failed"
	// EventVoteRequested solicits votes from the roster for a new decision.
	EventVoteRequested EventType = "vote_requested"
	// EventDecisionResolved indicates a decision reached a terminal status.
	EventDecisionResolved EventType = "decision_resolved"
)

// Event is one coordinator lifecycle notification. External collaborators
// (API, UI, logging) subscribe to these; nothing in the core depends on a
// subscriber being present.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// AgentID is the related agent, if applicable.
	AgentID string
	// TaskID is the related task, if applicable.
	TaskID string
	// DecisionID is the related decision, if applicable.
	DecisionID string
	// Grade is the new health grade for health-changed events.
	Grade models.HealthGrade
	// Status is the terminal status for decision-resolved events.
	Status models.DecisionStatus
	// Tally is the final vote summary for decision-resolved events.
	Tally *models.Tally
	// Roster lists the solicited voters for vote-requested events.
	Roster []string
	// Reason provides context for failures and terminations.
	Reason string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
