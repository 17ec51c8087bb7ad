// Package scheduler owns the pending-task queue. It matches tasks to
// capable, available agents through the pool manager's API, requeues
// work orphaned by agent failure, and keeps a bounded log of terminal
// tasks.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivegate/hivegate/internal/pool"
	"github.com/hivegate/hivegate/pkg/models"
)

// ErrInvalidTask indicates a submitted task that fails validation.
var ErrInvalidTask = errors.New("invalid task")

// ErrNotFound indicates the referenced task ID is unknown.
var ErrNotFound = errors.New("task not found")

// ErrInvalidState indicates the operation is not valid for the task's
// current status.
var ErrInvalidState = errors.New("operation invalid for task state")

// Config contains tuning knobs for the scheduler.
type Config struct {
	// CompletedLogSize bounds the terminal task log. Oldest entries are
	// dropped once the log is full.
	CompletedLogSize int
	// Retention is how long terminal tasks stay in the log before the
	// prune pass removes them.
	Retention time.Duration
}

// Assignment records one task handed to one agent.
type Assignment struct {
	// TaskID is the assigned task.
	TaskID string
	// AgentID is the receiving agent.
	AgentID string
}

// entry is one queue slot. Queue order is priority descending, then seq
// ascending; requeued tasks get seqs below every queued task so they
// land at the front of their priority band.
type entry struct {
	taskID   string
	priority int
	seq      int64
}

// Scheduler owns the pending queue and every non-terminal task record.
// It is the sole mutator of task state; agent records are only touched
// through the pool manager's API.
type Scheduler struct {
	cfg    Config
	pool   *pool.Manager
	logger *zap.Logger

	// mu protects all fields below.
	mu sync.Mutex
	// tasks maps task IDs to their records, pending and assigned.
	tasks map[string]*models.Task
	// queue holds one entry per pending task.
	queue []entry
	// log holds terminal tasks, newest last, bounded by CompletedLogSize.
	log []models.Task
	// backSeq grows for submissions, frontSeq shrinks for requeues.
	backSeq  int64
	frontSeq int64

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// New creates a scheduler draining into the given pool.
func New(cfg Config, p *pool.Manager, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CompletedLogSize <= 0 {
		cfg.CompletedLogSize = 256
	}
	return &Scheduler{
		cfg:    cfg,
		pool:   p,
		logger: logger,
		tasks:  make(map[string]*models.Task),
		now:    time.Now,
	}
}

// Submit validates a task and appends it to the pending queue. Returns
// the task ID. The caller should follow up with an Assign pass.
func (s *Scheduler) Submit(task *models.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("%w: nil task", ErrInvalidTask)
	}
	if task.Payload.Kind == "" {
		task.Payload.Kind = models.PayloadOpaque
	}
	if !task.Payload.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown payload kind %q", ErrInvalidTask, task.Payload.Kind)
	}
	if task.Type == "" {
		return "", fmt.Errorf("%w: missing task type", ErrInvalidTask)
	}
	if task.ID == "" {
		task.ID = "task-" + uuid.New().String()[:8]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return "", fmt.Errorf("%w: duplicate task id %s", ErrInvalidTask, task.ID)
	}

	task.Status = models.TaskStatusPending
	task.AssignedTo = ""
	task.CreatedAt = s.now()

	s.tasks[task.ID] = task
	s.backSeq++
	s.queue = append(s.queue, entry{taskID: task.ID, priority: task.Priority, seq: s.backSeq})

	s.logger.Debug("task queued",
		zap.String("task", task.ID),
		zap.String("type", task.Type),
		zap.Int("priority", task.Priority))
	return task.ID, nil
}

// Assign scans pending tasks in queue order and hands each to the
// eligible agent with the lowest scheduling rank. The pass stops at the
// first task with no eligible agent so that queue order is preserved;
// tasks behind it stay pending. Returns the assignments made.
func (s *Scheduler) Assign() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sortQueueLocked()
	candidates := s.pool.Eligible()

	var made []Assignment
	for len(s.queue) > 0 {
		e := s.queue[0]
		task := s.tasks[e.taskID]

		agentID := pickCandidate(candidates)
		if agentID == "" {
			break
		}
		if err := s.pool.AssignTask(agentID, task.ID); err != nil {
			// Candidate went stale between snapshot and assignment.
			// Exhaust it and retry the same task with the rest.
			exhaustCandidate(candidates, agentID)
			continue
		}

		now := s.now()
		task.Status = models.TaskStatusAssigned
		task.AssignedTo = agentID
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		consumeCandidate(candidates, agentID)
		s.queue = s.queue[1:]
		made = append(made, Assignment{TaskID: task.ID, AgentID: agentID})

		s.logger.Info("task assigned",
			zap.String("task", task.ID),
			zap.String("agent", agentID))
	}
	return made
}

// Withdraw removes a pending task from the queue before assignment.
// Assigned tasks cannot be withdrawn here; cancellation after assignment
// belongs to the agent-execution layer.
func (s *Scheduler) Withdraw(taskID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if task.Status != models.TaskStatusPending {
		return models.Task{}, fmt.Errorf("%w: cannot withdraw task in state %q", ErrInvalidState, task.Status)
	}

	delete(s.tasks, taskID)
	for i, e := range s.queue {
		if e.taskID == taskID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return *task, nil
}

// RequeueFront reverts orphaned tasks to pending, clears their agent
// reference, and reinserts them at the front of their priority band so
// in-flight work is not starved behind newer submissions. Relative order
// among the requeued tasks is preserved.
func (s *Scheduler) RequeueFront(taskIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(taskIDs) - 1; i >= 0; i-- {
		id := taskIDs[i]
		task, ok := s.tasks[id]
		if !ok {
			s.logger.Warn("requeue of unknown task skipped", zap.String("task", id))
			continue
		}
		if task.Status != models.TaskStatusAssigned {
			continue
		}
		task.Status = models.TaskStatusPending
		task.AssignedTo = ""
		task.RetryCount++

		s.frontSeq--
		s.queue = append(s.queue, entry{taskID: id, priority: task.Priority, seq: s.frontSeq})

		s.logger.Info("task requeued",
			zap.String("task", id),
			zap.Int("retries", task.RetryCount))
	}
}

// Complete marks an assigned task as finished and moves it to the
// terminal log. Returns the final task record with the agent reference
// still set so the caller can release the agent's slot.
func (s *Scheduler) Complete(taskID string) (models.Task, error) {
	return s.finish(taskID, models.TaskStatusCompleted, "")
}

// Fail marks an assigned task as failed and moves it to the terminal log.
func (s *Scheduler) Fail(taskID, errMsg string) (models.Task, error) {
	return s.finish(taskID, models.TaskStatusFailed, errMsg)
}

func (s *Scheduler) finish(taskID string, status models.TaskStatus, errMsg string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if task.Status != models.TaskStatusAssigned {
		return models.Task{}, fmt.Errorf("%w: cannot finish task in state %q", ErrInvalidState, task.Status)
	}

	now := s.now()
	task.Status = status
	task.Error = errMsg
	task.CompletedAt = &now

	final := *task
	delete(s.tasks, taskID)
	s.log = append(s.log, final)
	if len(s.log) > s.cfg.CompletedLogSize {
		s.log = s.log[len(s.log)-s.cfg.CompletedLogSize:]
	}
	return final, nil
}

// Get returns a copy of a task record, searching live tasks first and
// the terminal log second.
func (s *Scheduler) Get(taskID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[taskID]; ok {
		return *task, nil
	}
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ID == taskID {
			return s.log[i], nil
		}
	}
	return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
}

// Depth returns the number of pending tasks.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Pending returns copies of the pending tasks in dequeue order.
func (s *Scheduler) Pending() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sortQueueLocked()
	out := make([]models.Task, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, *s.tasks[e.taskID])
	}
	return out
}

// TerminalLog returns copies of the logged terminal tasks, oldest first.
func (s *Scheduler) TerminalLog() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task(nil), s.log...)
}

// Prune drops terminal log entries older than the retention window.
func (s *Scheduler) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	kept := s.log[:0]
	for _, task := range s.log {
		if task.CompletedAt != nil && task.CompletedAt.After(cutoff) {
			kept = append(kept, task)
		}
	}
	s.log = kept
}

// sortQueueLocked restores dequeue order: priority descending, seq
// ascending. Callers must hold s.mu.
func (s *Scheduler) sortQueueLocked() {
	sort.Slice(s.queue, func(i, j int) bool {
		if s.queue[i].priority != s.queue[j].priority {
			return s.queue[i].priority > s.queue[j].priority
		}
		return s.queue[i].seq < s.queue[j].seq
	})
}

// pickCandidate returns the first agent with spare capacity, or "".
// Candidates arrive sorted by scheduling rank ascending.
func pickCandidate(candidates []pool.Candidate) string {
	for _, c := range candidates {
		if c.Spare > 0 {
			return c.ID
		}
	}
	return ""
}

// consumeCandidate decrements a candidate's spare slot count.
func consumeCandidate(candidates []pool.Candidate, id string) {
	for i := range candidates {
		if candidates[i].ID == id {
			candidates[i].Spare--
			return
		}
	}
}

// exhaustCandidate zeroes a candidate so it is not retried this pass.
func exhaustCandidate(candidates []pool.Candidate, id string) {
	for i := range candidates {
		if candidates[i].ID == id {
			candidates[i].Spare = 0
			return
		}
	}
}
