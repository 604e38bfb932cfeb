package quest

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRegistryFrozen is returned by Register once the registry is in service
var ErrRegistryFrozen = errors.New("quest registry is frozen")

// Registry holds all loaded quest definitions. It is filled during content
// load, then frozen; after Freeze it is read-only and safe for concurrent
// readers without locking.
type Registry struct {
	quests      map[string]*Definition
	questsByNPC map[string][]*Definition
	frozen      bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		quests:      make(map[string]*Definition),
		questsByNPC: make(map[string][]*Definition),
	}
}

// Register validates and adds a definition
func (r *Registry) Register(def *Definition) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := r.quests[def.ID]; exists {
		return fmt.Errorf("duplicate quest %q", def.ID)
	}
	r.quests[def.ID] = def
	if def.GiverNPC != "" {
		r.questsByNPC[def.GiverNPC] = append(r.questsByNPC[def.GiverNPC], def)
	}
	return nil
}

// Freeze ends the load phase
func (r *Registry) Freeze() {
	r.frozen = true
}

// Get returns a definition by quest type
func (r *Registry) Get(id string) (*Definition, bool) {
	def, ok := r.quests[id]
	return def, ok
}

// Count returns the number of definitions
func (r *Registry) Count() int {
	return len(r.quests)
}

// IDs returns all quest types in sorted order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.quests))
	for id := range r.quests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ForNPC returns the quests an NPC gives
func (r *Registry) ForNPC(npcID string) []*Definition {
	quests := r.questsByNPC[npcID]
	result := make([]*Definition, len(quests))
	copy(result, quests)
	return result
}

// AvailableFor returns the quests npcID gives that the player qualifies for
func (r *Registry) AvailableFor(npcID string, p PlayerInfo, log *PlayerQuestLog) []*Definition {
	var available []*Definition
	for _, def := range r.questsByNPC[npcID] {
		if def.Qualify(p, log) == Qualified {
			available = append(available, def)
		}
	}
	return available
}
