package models

import (
	"testing"
	"time"
)

func TestDecisionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status DecisionStatus
		want   bool
	}{
		{DecisionActive, false},
		{DecisionPassed, true},
		{DecisionFailed, true},
		{DecisionTimedOut, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("DecisionStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-10, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{250, 100},
	}

	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecision_Tally(t *testing.T) {
	d := &Decision{
		Votes: map[string]Vote{
			"a1": {AgentID: "a1", Choice: VoteAgree, Confidence: 80},
			"a2": {AgentID: "a2", Choice: VoteAgree, Confidence: 60},
			"a3": {AgentID: "a3", Choice: VoteDisagree, Confidence: 100},
			"a4": {AgentID: "a4", Choice: VoteAbstain, Confidence: 0},
		},
	}

	tally := d.Tally()
	if tally.Agree != 2 || tally.Disagree != 1 || tally.Abstain != 1 {
		t.Errorf("Tally() = %+v, want 2 agree / 1 disagree / 1 abstain", tally)
	}
	if tally.Total() != 4 {
		t.Errorf("Total() = %d, want 4", tally.Total())
	}
	if tally.AvgConfidence != 60 {
		t.Errorf("AvgConfidence = %v, want 60", tally.AvgConfidence)
	}
	if got := tally.AgreePercent(); got != 50 {
		t.Errorf("AgreePercent() = %v, want 50", got)
	}
}

func TestTally_AgreePercent_NoVotes(t *testing.T) {
	var tally Tally
	if got := tally.AgreePercent(); got != 0 {
		t.Errorf("AgreePercent() with no votes = %v, want 0", got)
	}
}

func TestDecision_VoterIDs_Sorted(t *testing.T) {
	d := &Decision{
		Votes: map[string]Vote{
			"c": {AgentID: "c", Choice: VoteAgree, CastAt: time.Now()},
			"a": {AgentID: "a", Choice: VoteAgree, CastAt: time.Now()},
			"b": {AgentID: "b", Choice: VoteDisagree, CastAt: time.Now()},
		},
	}

	ids := d.VoterIDs()
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("VoterIDs() returned %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("VoterIDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}
