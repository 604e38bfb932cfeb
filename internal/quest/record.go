package quest

import (
	"time"

	"github.com/google/uuid"
)

// Record is the persisted form of a player's state for one quest type.
// One record exists per (player, quest type); finished records are kept so
// prerequisite and repeatability checks survive restarts.
type Record struct {
	PlayerID       string         `json:"player_id"`
	QuestType      string         `json:"quest_type"`
	InstanceID     uuid.UUID      `json:"instance_id"`
	Step           int            `json:"step"`
	Status         Status         `json:"status"`
	Goals          []GoalProgress `json:"goals"`
	GrantedItems   []string       `json:"granted_items,omitempty"`
	AwaitingReward bool           `json:"awaiting_reward,omitempty"`
	CompletedCount int            `json:"completed_count"`
	Revision       uint64         `json:"revision"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Key returns the store key fields
func (r Record) Key() (playerID, questType string) {
	return r.PlayerID, r.QuestType
}

// clone copies r without sharing its slices
func (r Record) clone() Record {
	r.Goals = append([]GoalProgress(nil), r.Goals...)
	if len(r.GrantedItems) > 0 {
		r.GrantedItems = append([]string(nil), r.GrantedItems...)
	}
	return r
}

// Snapshot captures the instance state as a Record
func (i *Instance) Snapshot() Record {
	i.mu.Lock()
	defer i.mu.Unlock()

	goals := make([]GoalProgress, len(i.goals))
	copy(goals, i.goals)
	var items []string
	if len(i.grantedItems) > 0 {
		items = make([]string, len(i.grantedItems))
		copy(items, i.grantedItems)
	}

	return Record{
		PlayerID:       i.playerID,
		QuestType:      i.questType,
		InstanceID:     i.id,
		Step:           i.step,
		Status:         i.status,
		Goals:          goals,
		GrantedItems:   items,
		AwaitingReward: i.awaitingReward,
		CompletedCount: i.completedCount,
		Revision:       i.revision,
		UpdatedAt:      i.updatedAt,
	}
}

// Restore rebuilds an instance from a persisted record
func Restore(r Record) *Instance {
	goals := make([]GoalProgress, len(r.Goals))
	copy(goals, r.Goals)
	items := make([]string, len(r.GrantedItems))
	copy(items, r.GrantedItems)

	id := r.InstanceID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Instance{
		id:             id,
		playerID:       r.PlayerID,
		questType:      r.QuestType,
		step:           r.Step,
		status:         r.Status,
		goals:          goals,
		grantedItems:   items,
		awaitingReward: r.AwaitingReward,
		completedCount: r.CompletedCount,
		revision:       r.Revision,
		updatedAt:      r.UpdatedAt,
	}
}
