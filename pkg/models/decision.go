package models

import (
	"sort"
	"time"
)

// DecisionStatus represents the state of a consensus round.
type DecisionStatus string

const (
	// DecisionActive indicates the round is still collecting votes.
	DecisionActive DecisionStatus = "active"
	// DecisionPassed indicates the agree ratio met the threshold.
	DecisionPassed DecisionStatus = "passed"
	// DecisionFailed indicates the agree ratio fell short.
	DecisionFailed DecisionStatus = "failed"
	// DecisionTimedOut indicates the timeout elapsed before quorum was reached.
	DecisionTimedOut DecisionStatus = "timed_out"
)

// Valid returns true if the status is a known value.
func (s DecisionStatus) Valid() bool {
	switch s {
	case DecisionActive, DecisionPassed, DecisionFailed, DecisionTimedOut:
		return true
	default:
		return false
	}
}

// Terminal returns true once the round can no longer change.
func (s DecisionStatus) Terminal() bool {
	return s == DecisionPassed || s == DecisionFailed || s == DecisionTimedOut
}

// VoteChoice is one agent's position on a decision.
type VoteChoice string

const (
	// VoteAgree supports the proposal.
	VoteAgree VoteChoice = "agree"
	// VoteDisagree opposes the proposal.
	VoteDisagree VoteChoice = "disagree"
	// VoteAbstain declines to take a position but counts toward quorum.
	VoteAbstain VoteChoice = "abstain"
)

// Valid returns true if the choice is a known value.
func (c VoteChoice) Valid() bool {
	switch c {
	case VoteAgree, VoteDisagree, VoteAbstain:
		return true
	default:
		return false
	}
}

// Vote is one agent's recorded position on a decision. An agent holds at
// most one vote per decision; a later cast overwrites the earlier one.
type Vote struct {
	// AgentID is the voting agent.
	AgentID string `json:"agent_id"`
	// Choice is the position taken.
	Choice VoteChoice `json:"choice"`
	// Confidence is the voter's certainty, clamped to [0, 100].
	Confidence int `json:"confidence"`
	// Reason is optional free-text context for the vote.
	Reason string `json:"reason,omitempty"`
	// CastAt is when the vote was received.
	CastAt time.Time `json:"cast_at"`
}

// ClampConfidence bounds a confidence value to [0, 100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// Tally summarizes the votes on a decision.
type Tally struct {
	// Agree is the number of agree votes.
	Agree int `json:"agree"`
	// Disagree is the number of disagree votes.
	Disagree int `json:"disagree"`
	// Abstain is the number of abstain votes.
	Abstain int `json:"abstain"`
	// AvgConfidence is the mean confidence across all votes cast.
	AvgConfidence float64 `json:"avg_confidence"`
}

// Total returns the number of votes cast.
func (t Tally) Total() int {
	return t.Agree + t.Disagree + t.Abstain
}

// AgreePercent returns the agree share of votes cast, as a percentage.
// Zero votes count as zero percent, never as vacuous approval.
func (t Tally) AgreePercent() float64 {
	n := t.Total()
	if n == 0 {
		return 0
	}
	return float64(t.Agree) / float64(n) * 100
}

// Decision is a time-boxed group vote gating a privileged action.
type Decision struct {
	// ID is the unique identifier for this decision.
	ID string `json:"id"`
	// Topic is the short subject of the vote.
	Topic string `json:"topic"`
	// Description provides detail on what is being decided.
	Description string `json:"description,omitempty"`
	// Threshold is the agree percentage (of votes cast) required to pass.
	Threshold float64 `json:"threshold"`
	// MinParticipants is the vote count required before resolution may occur.
	MinParticipants int `json:"min_participants"`
	// Timeout is the wall-clock budget for the round.
	Timeout time.Duration `json:"timeout"`
	// RosterSize is the number of agents eligible to vote, captured at
	// proposal time.
	RosterSize int `json:"roster_size"`
	// Votes maps agent ID to that agent's current vote.
	Votes map[string]Vote `json:"votes"`
	// Status is the current state of the round.
	Status DecisionStatus `json:"status"`
	// StartedAt is when the round opened.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the round closed, if it has.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// Tally computes the current vote summary.
func (d *Decision) Tally() Tally {
	var t Tally
	var confSum int
	for _, v := range d.Votes {
		switch v.Choice {
		case VoteAgree:
			t.Agree++
		case VoteDisagree:
			t.Disagree++
		case VoteAbstain:
			t.Abstain++
		}
		confSum += v.Confidence
	}
	if n := t.Total(); n > 0 {
		t.AvgConfidence = float64(confSum) / float64(n)
	}
	return t
}

// VoterIDs returns the IDs of all agents that have voted, sorted.
func (d *Decision) VoterIDs() []string {
	ids := make([]string, 0, len(d.Votes))
	for id := range d.Votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
