// Package content loads quest definitions, behavior rules and NPCs from YAML
// into an immutable Set, and reloads it when the content directory changes.
package content

import (
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/npc"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// Set is one loaded generation of content. Its registries are frozen, so a
// Set may be shared by every player session without locking.
type Set struct {
	Quests *quest.Registry
	Rules  *behavior.Registry
	NPCs   *npc.Directory

	// Vars are content-defined values exposed to custom predicates.
	Vars map[string]string

	// Digest identifies the source files the set was built from.
	Digest   string
	LoadedAt time.Time
}

// NewSet freezes the registries and wraps them in a Set. Nil arguments are
// replaced by empty registries.
func NewSet(quests *quest.Registry, rules *behavior.Registry, npcs *npc.Directory, vars map[string]string) *Set {
	if quests == nil {
		quests = quest.NewRegistry()
	}
	if rules == nil {
		rules = behavior.NewRegistry()
	}
	if npcs == nil {
		npcs = npc.NewDirectory()
	}
	quests.Freeze()
	rules.Freeze()

	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Set{
		Quests:   quests,
		Rules:    rules,
		NPCs:     npcs,
		Vars:     copied,
		LoadedAt: time.Now(),
	}
}

// Var returns a content variable
func (s *Set) Var(name string) (string, bool) {
	v, ok := s.Vars[name]
	return v, ok
}
