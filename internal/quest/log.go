package quest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAlreadyActive is returned when starting a quest the player already has active
var ErrAlreadyActive = errors.New("quest already active")

// history is what is remembered about a quest type once no instance is active
type history struct {
	count int
	last  Record // newest terminal record
}

// PlayerQuestLog tracks a player's active instances and completed quest types
type PlayerQuestLog struct {
	mu        sync.RWMutex
	playerID  string
	active    map[string]*Instance
	completed map[string]*history
}

// NewPlayerQuestLog creates an empty quest log
func NewPlayerQuestLog(playerID string) *PlayerQuestLog {
	return &PlayerQuestLog{
		playerID:  playerID,
		active:    make(map[string]*Instance),
		completed: make(map[string]*history),
	}
}

// PlayerID returns the owning player
func (l *PlayerQuestLog) PlayerID() string {
	return l.playerID
}

// Active returns the active instance for questType
func (l *PlayerQuestLog) Active(questType string) (*Instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.active[questType]
	return inst, ok
}

// ActiveInstances returns active instances ordered by quest type
func (l *PlayerQuestLog) ActiveInstances() []*Instance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Instance, 0, len(l.active))
	for _, inst := range l.active {
		out = append(out, inst)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].questType < out[b].questType })
	return out
}

// HasCompleted reports whether the player has ever finished questType
func (l *PlayerQuestLog) HasCompleted(questType string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.completed[questType]
	return ok && h.count > 0
}

// CompletedCount returns how many times questType was finished
func (l *PlayerQuestLog) CompletedCount(questType string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if h, ok := l.completed[questType]; ok {
		return h.count
	}
	return 0
}

// Start creates and registers a new Active instance for def.
// It does not check qualification; callers use Definition.Qualify first.
func (l *PlayerQuestLog) Start(def *Definition) (*Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[def.ID]; ok {
		return nil, ErrAlreadyActive
	}

	var base uint64
	var count int
	if h, ok := l.completed[def.ID]; ok {
		base = h.last.Revision
		count = h.count
	}
	inst := NewInstance(l.playerID, def, base)
	inst.completedCount = count
	l.active[def.ID] = inst
	return inst, nil
}

// Close removes a Finished or Aborted instance from the active set and folds
// it into the history.
func (l *PlayerQuestLog) Close(inst *Instance) error {
	rec := inst.Snapshot()
	if rec.Status != StatusFinished && rec.Status != StatusAborted {
		return fmt.Errorf("%w: close %s quest", ErrInvalidTransition, rec.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.active[rec.QuestType]; ok && cur == inst {
		delete(l.active, rec.QuestType)
	}
	l.remember(rec)
	return nil
}

// remember folds a terminal record into the history. Caller holds l.mu.
func (l *PlayerQuestLog) remember(rec Record) {
	h, ok := l.completed[rec.QuestType]
	if !ok {
		h = &history{}
		l.completed[rec.QuestType] = h
	}
	if rec.CompletedCount > h.count {
		h.count = rec.CompletedCount
	}
	if !ok || rec.Revision >= h.last.Revision {
		h.last = rec.clone()
	}
}

// Load folds persisted records into the log. Active records become live
// instances, terminal records become history.
func (l *PlayerQuestLog) Load(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range records {
		if rec.PlayerID != l.playerID {
			continue
		}
		if rec.Status == StatusActive {
			l.active[rec.QuestType] = Restore(rec)
			continue
		}
		l.remember(rec)
	}
}

// Records snapshots every active instance and history entry
func (l *PlayerQuestLog) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.active)+len(l.completed))
	for _, inst := range l.active {
		out = append(out, inst.Snapshot())
	}
	for questType, h := range l.completed {
		if _, live := l.active[questType]; live {
			continue
		}
		rec := h.last.clone()
		rec.PlayerID = l.playerID
		rec.CompletedCount = h.count
		out = append(out, rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QuestType < out[b].QuestType })
	return out
}

type questLogJSON struct {
	PlayerID string   `json:"player_id"`
	Records  []Record `json:"records"`
}

// ToJSON serializes the quest log
func (l *PlayerQuestLog) ToJSON() (string, error) {
	data, err := json.Marshal(questLogJSON{PlayerID: l.playerID, Records: l.Records()})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PlayerQuestLogFromJSON deserializes a quest log
func PlayerQuestLogFromJSON(data string) (*PlayerQuestLog, error) {
	var raw questLogJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quest log: %w", err)
	}
	log := NewPlayerQuestLog(raw.PlayerID)
	log.Load(raw.Records)
	return log, nil
}
