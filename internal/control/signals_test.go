package control

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *SignalManager {
	t.Helper()
	sm, err := NewSignalManager(filepath.Join(t.TempDir(), "control"))
	if err != nil {
		t.Fatalf("NewSignalManager() error: %v", err)
	}
	t.Cleanup(sm.Close)
	return sm
}

func TestSignals_InitiallyClear(t *testing.T) {
	sm := newTestManager(t)

	if sm.ShouldPause() {
		t.Error("ShouldPause() = true on fresh directory")
	}
	if sm.ShouldDrain() {
		t.Error("ShouldDrain() = true on fresh directory")
	}
}

func TestPause_FollowsSignalFile(t *testing.T) {
	sm := newTestManager(t)

	if err := sm.SendPause(); err != nil {
		t.Fatalf("SendPause() error: %v", err)
	}
	if !sm.ShouldPause() {
		t.Error("ShouldPause() = false after SendPause")
	}

	if err := sm.SendResume(); err != nil {
		t.Fatalf("SendResume() error: %v", err)
	}
	if sm.ShouldPause() {
		t.Error("ShouldPause() = true after SendResume")
	}
}

func TestResume_WithoutPauseIsNoop(t *testing.T) {
	sm := newTestManager(t)

	if err := sm.SendResume(); err != nil {
		t.Errorf("SendResume() on clear state error: %v", err)
	}
}

func TestDrain_Sticky(t *testing.T) {
	sm := newTestManager(t)

	if err := sm.SendDrain(); err != nil {
		t.Fatalf("SendDrain() error: %v", err)
	}
	if !sm.ShouldDrain() {
		t.Fatal("ShouldDrain() = false after SendDrain")
	}

	// Removing the file does not reset drain; only ClearSignals does.
	if err := os.Remove(filepath.Join(sm.Dir(), SignalDrain)); err != nil {
		t.Fatal(err)
	}
	if !sm.ShouldDrain() {
		t.Error("drain signal reset by file removal, want sticky")
	}

	sm.ClearSignals()
	if sm.ShouldDrain() {
		t.Error("ShouldDrain() = true after ClearSignals")
	}
}

func TestShouldPause_PollsWithoutWatcher(t *testing.T) {
	sm := newTestManager(t)

	// Write the file directly, bypassing SendPause, to exercise the
	// stat fallback.
	path := filepath.Join(sm.Dir(), SignalPause)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !sm.ShouldPause() {
		t.Error("ShouldPause() = false with pause file present")
	}
}
