// Package consensus owns decision rounds: quorum-gated, threshold-based
// group votes with a wall-clock timeout. It is a majority/threshold gate
// for trusted cooperating agents, not a Byzantine-fault-tolerant
// protocol.
package consensus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivegate/hivegate/pkg/models"
)

// ErrInvalidConfig indicates proposal parameters that fail validation.
var ErrInvalidConfig = errors.New("invalid decision config")

// ErrNotFound indicates the referenced decision ID is unknown.
var ErrNotFound = errors.New("decision not found")

// Config contains tuning knobs for the engine.
type Config struct {
	// Retention is how long closed decisions are kept before the sweep
	// purges them.
	Retention time.Duration
}

// Resolution records one decision leaving the Active state.
type Resolution struct {
	// DecisionID is the resolved decision.
	DecisionID string
	// Status is the terminal status.
	Status models.DecisionStatus
	// Tally is the final vote summary.
	Tally models.Tally
}

// Engine owns all decision and vote state. Votes are applied in receipt
// order under the engine's lock; a decision leaves Active exactly once.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	// mu protects decisions and every record behind it.
	mu sync.Mutex
	// decisions maps decision IDs to their records, active and closed.
	decisions map[string]*models.Decision

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// New creates an engine with no decisions.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		decisions: make(map[string]*models.Decision),
		now:       time.Now,
	}
}

// Propose opens a new decision round. rosterSize is the number of agents
// eligible to vote, captured from the actual roster at proposal time.
// Returns the decision ID and any resolution that occurred immediately
// (a round with minParticipants of zero resolves on the spot).
func (e *Engine) Propose(topic, description string, threshold float64, minParticipants int, timeout time.Duration, rosterSize int) (string, *Resolution, error) {
	if topic == "" {
		return "", nil, fmt.Errorf("%w: missing topic", ErrInvalidConfig)
	}
	if threshold < 0 || threshold > 100 {
		return "", nil, fmt.Errorf("%w: threshold %v out of [0, 100]", ErrInvalidConfig, threshold)
	}
	if rosterSize < 1 {
		return "", nil, fmt.Errorf("%w: roster size %d, need at least one eligible voter", ErrInvalidConfig, rosterSize)
	}
	if minParticipants < 0 || minParticipants > rosterSize {
		return "", nil, fmt.Errorf("%w: min participants %d out of [0, %d]", ErrInvalidConfig, minParticipants, rosterSize)
	}
	if timeout <= 0 {
		return "", nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}

	id := "dec-" + uuid.New().String()[:8]
	d := &models.Decision{
		ID:              id,
		Topic:           topic,
		Description:     description,
		Threshold:       threshold,
		MinParticipants: minParticipants,
		Timeout:         timeout,
		RosterSize:      rosterSize,
		Votes:           make(map[string]models.Vote),
		Status:          models.DecisionActive,
		StartedAt:       e.now(),
	}

	e.mu.Lock()
	e.decisions[id] = d
	res := e.resolveLocked(d)
	e.mu.Unlock()

	e.logger.Info("decision proposed",
		zap.String("decision", id),
		zap.String("topic", topic),
		zap.Float64("threshold", threshold),
		zap.Int("min_participants", minParticipants),
		zap.Int("roster", rosterSize))
	return id, res, nil
}

// Vote records one agent's position. A repeat vote from the same agent
// overwrites the earlier one; it never double-counts. Returns false with
// no state change when the decision is no longer Active, and any
// resolution the vote triggered.
func (e *Engine) Vote(decisionID, agentID string, choice models.VoteChoice, confidence int, reason string) (bool, *Resolution, error) {
	if agentID == "" {
		return false, nil, fmt.Errorf("%w: missing agent id", ErrInvalidConfig)
	}
	if !choice.Valid() {
		return false, nil, fmt.Errorf("%w: unknown vote choice %q", ErrInvalidConfig, choice)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.decisions[decisionID]
	if !ok {
		return false, nil, fmt.Errorf("%w: %s", ErrNotFound, decisionID)
	}
	if d.Status != models.DecisionActive {
		return false, nil, nil
	}

	d.Votes[agentID] = models.Vote{
		AgentID:    agentID,
		Choice:     choice,
		Confidence: models.ClampConfidence(confidence),
		Reason:     reason,
		CastAt:     e.now(),
	}
	return true, e.resolveLocked(d), nil
}

// Sweep runs the periodic resolution and timeout check across active
// decisions and purges closed decisions past the retention window. Cost
// is proportional to the number of live decisions, not to history.
func (e *Engine) Sweep() []Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var resolved []Resolution
	for id, d := range e.decisions {
		if d.Status != models.DecisionActive {
			if e.cfg.Retention > 0 && d.EndedAt != nil && now.Sub(*d.EndedAt) > e.cfg.Retention {
				delete(e.decisions, id)
			}
			continue
		}
		if res := e.resolveLocked(d); res != nil {
			resolved = append(resolved, *res)
			continue
		}
		if res := e.timeoutLocked(d, now); res != nil {
			resolved = append(resolved, *res)
		}
	}
	return resolved
}

// Get returns a copy of one decision.
func (e *Engine) Get(decisionID string) (models.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.decisions[decisionID]
	if !ok {
		return models.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, decisionID)
	}
	return copyDecision(d), nil
}

// Active returns copies of all decisions still collecting votes.
func (e *Engine) Active() []models.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.Decision
	for _, d := range e.decisions {
		if d.Status == models.DecisionActive {
			out = append(out, copyDecision(d))
		}
	}
	return out
}

// resolveLocked runs the vote-driven resolution test. It returns nil
// while the decision must stay Active. Callers must hold e.mu.
func (e *Engine) resolveLocked(d *models.Decision) *Resolution {
	tally := d.Tally()
	n := tally.Total()

	if n < d.MinParticipants {
		return nil
	}
	if tally.AgreePercent() >= d.Threshold && n > 0 {
		return e.closeLocked(d, models.DecisionPassed, tally)
	}
	if n >= d.RosterSize {
		// Everyone has voted and the threshold was not met.
		return e.closeLocked(d, models.DecisionFailed, tally)
	}
	if d.MinParticipants == 0 && n == 0 {
		// Zero votes count as zero percent agreement, never as
		// vacuous approval.
		return e.closeLocked(d, models.DecisionFailed, tally)
	}
	return nil
}

// timeoutLocked force-resolves a decision whose wall-clock budget has
// elapsed. With quorum reached the usual threshold test applies; without
// it the round times out. Callers must hold e.mu.
func (e *Engine) timeoutLocked(d *models.Decision, now time.Time) *Resolution {
	if now.Sub(d.StartedAt) <= d.Timeout {
		return nil
	}
	tally := d.Tally()
	n := tally.Total()
	if n < d.MinParticipants {
		return e.closeLocked(d, models.DecisionTimedOut, tally)
	}
	if tally.AgreePercent() >= d.Threshold && n > 0 {
		return e.closeLocked(d, models.DecisionPassed, tally)
	}
	return e.closeLocked(d, models.DecisionFailed, tally)
}

// closeLocked moves a decision out of Active exactly once.
// Callers must hold e.mu.
func (e *Engine) closeLocked(d *models.Decision, status models.DecisionStatus, tally models.Tally) *Resolution {
	now := e.now()
	d.Status = status
	d.EndedAt = &now

	e.logger.Info("decision resolved",
		zap.String("decision", d.ID),
		zap.String("status", string(status)),
		zap.Int("agree", tally.Agree),
		zap.Int("disagree", tally.Disagree),
		zap.Int("abstain", tally.Abstain))
	return &Resolution{DecisionID: d.ID, Status: status, Tally: tally}
}

// copyDecision returns a deep copy of a decision record.
func copyDecision(d *models.Decision) models.Decision {
	cp := *d
	cp.Votes = make(map[string]models.Vote, len(d.Votes))
	for k, v := range d.Votes {
		cp.Votes[k] = v
	}
	if d.EndedAt != nil {
		ended := *d.EndedAt
		cp.EndedAt = &ended
	}
	return cp
}
