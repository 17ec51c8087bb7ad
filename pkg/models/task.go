package models

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting in the queue.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task is held by exactly one agent.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task ended in failure.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// PayloadKind tags the shape of a task payload.
type PayloadKind string

const (
	// PayloadCommand is a shell-style command invocation.
	PayloadCommand PayloadKind = "command"
	// PayloadPrompt is a natural-language work description.
	PayloadPrompt PayloadKind = "prompt"
	// PayloadOpaque is an uninterpreted blob owned by the execution layer.
	PayloadOpaque PayloadKind = "opaque"
)

// Valid returns true if the kind is a known value.
func (k PayloadKind) Valid() bool {
	switch k {
	case PayloadCommand, PayloadPrompt, PayloadOpaque:
		return true
	default:
		return false
	}
}

// Payload is the closed variant carried by a task. Exactly one of the
// typed fields is meaningful for a given Kind; Raw is the escape hatch
// for PayloadOpaque.
type Payload struct {
	// Kind selects which field below is meaningful.
	Kind PayloadKind `json:"kind"`
	// Command is the command line for PayloadCommand.
	Command string `json:"command,omitempty"`
	// Prompt is the work description for PayloadPrompt.
	Prompt string `json:"prompt,omitempty"`
	// Raw is the uninterpreted blob for PayloadOpaque.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Task represents a unit of work submitted for execution by some agent.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type is a caller-defined task category.
	Type string `json:"type"`
	// Priority orders tasks in the queue; higher values dequeue first.
	Priority int `json:"priority"`
	// DependsOn lists task IDs that must complete before this task.
	// Dependencies are tracked for the caller, not enforced here.
	DependsOn []string `json:"depends_on,omitempty"`
	// Payload is the work description.
	Payload Payload `json:"payload"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedTo is the ID of the agent holding this task, if any.
	AssignedTo string `json:"assigned_to,omitempty"`
	// RetryCount is the number of times this task was requeued after
	// its agent failed.
	RetryCount int `json:"retry_count,omitempty"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was first assigned, if applicable.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
