package npc

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// NPC is a quest-relevant non-player character. Identity and quest lists are
// fixed at load time; the observer list is the only state mutated at runtime
// and has its own lock because many players talk to the same NPC.
type NPC struct {
	ID           string
	Name         string
	Description  string
	Location     string
	Dialogue     []string // Lines spoken on a plain interaction
	GivesQuests  []string // Quest IDs this NPC offers
	TurnInQuests []string // Quest IDs that can be turned in to this NPC

	observerMu sync.Mutex
	observers  map[string]time.Time // player id -> when the offer was made
}

// New creates an NPC with no quests
func New(id, name string) *NPC {
	return &NPC{ID: id, Name: name, observers: make(map[string]time.Time)}
}

func (n *NPC) String() string {
	return fmt.Sprintf("%s (%s)", n.Name, n.ID)
}

// GetDialogue returns a random dialogue line, or empty string if no dialogue
func (n *NPC) GetDialogue() string {
	if len(n.Dialogue) == 0 {
		return ""
	}
	return n.Dialogue[rand.Intn(len(n.Dialogue))]
}

// CanGiveQuest returns true if this NPC can give a specific quest
func (n *NPC) CanGiveQuest(questID string) bool {
	for _, id := range n.GivesQuests {
		if id == questID {
			return true
		}
	}
	return false
}

// CanTurnInQuest returns true if a specific quest can be turned in to this NPC
func (n *NPC) CanTurnInQuest(questID string) bool {
	for _, id := range n.TurnInQuests {
		if id == questID {
			return true
		}
	}
	return false
}

// HasQuestInteraction returns true if this NPC has any quest-related interactions
func (n *NPC) HasQuestInteraction() bool {
	return len(n.GivesQuests) > 0 || len(n.TurnInQuests) > 0
}

// AddObserver records that playerID has an open offer dialog with this NPC.
// It reports false if the player was already observing.
func (n *NPC) AddObserver(playerID string) bool {
	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	if n.observers == nil {
		n.observers = make(map[string]time.Time)
	}
	if _, ok := n.observers[playerID]; ok {
		return false
	}
	n.observers[playerID] = time.Now()
	return true
}

// RemoveObserver closes the player's offer dialog, reporting whether one was open
func (n *NPC) RemoveObserver(playerID string) bool {
	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	if _, ok := n.observers[playerID]; !ok {
		return false
	}
	delete(n.observers, playerID)
	return true
}

// IsObserving reports whether playerID has an open offer dialog
func (n *NPC) IsObserving(playerID string) bool {
	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	_, ok := n.observers[playerID]
	return ok
}

// Observers returns the observing player ids, sorted
func (n *NPC) Observers() []string {
	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	out := make([]string, 0, len(n.observers))
	for id := range n.observers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PruneObservers drops offers older than maxAge and returns how many were dropped
func (n *NPC) PruneObservers(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	dropped := 0
	for id, since := range n.observers {
		if since.Before(cutoff) {
			delete(n.observers, id)
			dropped++
		}
	}
	return dropped
}

func (n *NPC) copyObservers(from *NPC) {
	from.observerMu.Lock()
	snapshot := make(map[string]time.Time, len(from.observers))
	for id, since := range from.observers {
		snapshot[id] = since
	}
	from.observerMu.Unlock()

	n.observerMu.Lock()
	defer n.observerMu.Unlock()
	if n.observers == nil {
		n.observers = make(map[string]time.Time)
	}
	for id, since := range snapshot {
		n.observers[id] = since
	}
}

// Directory indexes NPCs by id. It is filled during content load and
// read-only afterwards.
type Directory struct {
	npcs map[string]*NPC
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{npcs: make(map[string]*NPC)}
}

// Add registers n, rejecting duplicate ids
func (d *Directory) Add(n *NPC) error {
	if n.ID == "" {
		return fmt.Errorf("npc %q has no id", n.Name)
	}
	if _, ok := d.npcs[n.ID]; ok {
		return fmt.Errorf("duplicate npc id %q", n.ID)
	}
	d.npcs[n.ID] = n
	return nil
}

// Get returns the NPC with id
func (d *Directory) Get(id string) (*NPC, bool) {
	n, ok := d.npcs[id]
	return n, ok
}

// Len returns the number of NPCs
func (d *Directory) Len() int {
	return len(d.npcs)
}

// IDs returns every NPC id, sorted
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.npcs))
	for id := range d.npcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GiversOf returns the ids of NPCs offering questID
func (d *Directory) GiversOf(questID string) []string {
	var out []string
	for _, id := range d.IDs() {
		if d.npcs[id].CanGiveQuest(questID) {
			out = append(out, id)
		}
	}
	return out
}

// CarryObservers copies open offers from a previous directory into NPCs with
// the same id, so a content reload does not drop pending dialogs.
func (d *Directory) CarryObservers(prev *Directory) {
	if prev == nil {
		return
	}
	for id, n := range d.npcs {
		if old, ok := prev.npcs[id]; ok && old != n {
			n.copyObservers(old)
		}
	}
}
