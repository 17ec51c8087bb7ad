package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hivegate/hivegate/pkg/models"
)

func TestParseRoster(t *testing.T) {
	data := []byte(`
agents:
  - type: coordinator
    count: 1
    capacity: 2
  - type: worker
    count: 3
    capacity: 1
    priority: 5
`)
	r, err := ParseRoster(data)
	if err != nil {
		t.Fatalf("ParseRoster() error: %v", err)
	}

	if len(r.Agents) != 2 {
		t.Fatalf("parsed %d entries, want 2", len(r.Agents))
	}
	if r.Agents[0].Type != models.AgentTypeCoordinator || r.Agents[0].Count != 1 {
		t.Errorf("entry 0 = %+v, want coordinator x1", r.Agents[0])
	}
	if r.Agents[1].Priority != 5 {
		t.Errorf("entry 1 priority = %d, want 5", r.Agents[1].Priority)
	}
	if r.Size() != 4 {
		t.Errorf("Size() = %d, want 4", r.Size())
	}
}

func TestParseRoster_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty roster", `agents: []`},
		{"unknown type", "agents:\n  - type: overseer\n    count: 1\n    capacity: 1"},
		{"zero count", "agents:\n  - type: worker\n    count: 0\n    capacity: 1"},
		{"zero capacity", "agents:\n  - type: worker\n    count: 1\n    capacity: 0"},
		{"negative priority", "agents:\n  - type: worker\n    count: 1\n    capacity: 1\n    priority: -1"},
		{"malformed yaml", `agents: {{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRoster([]byte(tt.data)); err == nil {
				t.Errorf("ParseRoster(%q) succeeded, want error", tt.name)
			}
		})
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	content := "agents:\n  - type: specialist\n    count: 2\n    capacity: 1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster() error: %v", err)
	}
	if r.Size() != 2 {
		t.Errorf("Size() = %d, want 2", r.Size())
	}
}

func TestLoadRoster_MissingFile(t *testing.T) {
	if _, err := LoadRoster("/nonexistent/roster.yaml"); err == nil {
		t.Error("expected error for missing roster file")
	}
}

func TestDefaultRoster(t *testing.T) {
	r := DefaultRoster()
	if r.Size() != 3 {
		t.Errorf("default roster size = %d, want 3", r.Size())
	}
	for i, e := range r.Agents {
		if !e.Type.Valid() {
			t.Errorf("entry %d has invalid type %q", i, e.Type)
		}
	}
}
