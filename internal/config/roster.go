package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hivegate/hivegate/pkg/models"
)

// RosterEntry describes one group of agents to provision at startup.
type RosterEntry struct {
	// Type is the agent type (coordinator, specialist, worker).
	Type models.AgentType `yaml:"type"`
	// Count is how many agents of this type to create.
	Count int `yaml:"count"`
	// Capacity is the per-agent concurrent task limit.
	Capacity int `yaml:"capacity"`
	// Priority overrides the type's default scheduling rank when non-zero.
	Priority int `yaml:"priority"`
}

// Roster is the startup agent population loaded from YAML.
type Roster struct {
	Agents []RosterEntry `yaml:"agents"`
}

// Size returns the total number of agents the roster provisions.
func (r *Roster) Size() int {
	total := 0
	for _, e := range r.Agents {
		total += e.Count
	}
	return total
}

// DefaultRoster returns the roster used when no roster file is given:
// one coordinator and two workers.
func DefaultRoster() *Roster {
	return &Roster{Agents: []RosterEntry{
		{Type: models.AgentTypeCoordinator, Count: 1, Capacity: 2},
		{Type: models.AgentTypeWorker, Count: 2, Capacity: 1},
	}}
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster parses and validates roster YAML.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}

	if len(r.Agents) == 0 {
		return nil, fmt.Errorf("roster has no agent entries")
	}
	for i, e := range r.Agents {
		if !e.Type.Valid() {
			return nil, fmt.Errorf("roster entry %d: unknown agent type %q", i, e.Type)
		}
		if e.Count < 1 {
			return nil, fmt.Errorf("roster entry %d: count must be at least 1, got %d", i, e.Count)
		}
		if e.Capacity < 1 {
			return nil, fmt.Errorf("roster entry %d: capacity must be at least 1, got %d", i, e.Capacity)
		}
		if e.Priority < 0 {
			return nil, fmt.Errorf("roster entry %d: negative priority %d", i, e.Priority)
		}
	}
	return &r, nil
}
