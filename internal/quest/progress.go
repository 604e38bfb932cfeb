package quest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when a lifecycle change is not allowed
	// from the instance's current status.
	ErrInvalidTransition = errors.New("invalid quest transition")

	// ErrGoalsNotAchieved is returned when finishing before every goal is met.
	ErrGoalsNotAchieved = errors.New("quest goals not achieved")

	// ErrNoSuchGoal is returned for an out of range goal index.
	ErrNoSuchGoal = errors.New("no such goal")
)

// Status is the lifecycle state of a quest instance
type Status string

const (
	// StatusOffered is transient; offered quests are never persisted.
	StatusOffered  Status = "offered"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

const (
	StepNotStarted = 0
	StepFirst      = 1
	StepAborted    = -1
)

// GoalProgress tracks one goal for one player
type GoalProgress struct {
	Current int `json:"current"`
	Target  int `json:"target"`
}

// Advance adds one to the counter, clamped at the target.
// It reports whether the counter changed.
func (g *GoalProgress) Advance() bool {
	if g.Current >= g.Target {
		return false
	}
	g.Current++
	return true
}

// IsAchieved reports whether the goal has reached its target
func (g GoalProgress) IsAchieved() bool {
	return g.Current >= g.Target
}

// Instance is one player's live progress through a quest.
// All methods are safe for concurrent use.
type Instance struct {
	mu sync.Mutex

	id        uuid.UUID
	playerID  string
	questType string
	step      int
	status    Status
	goals     []GoalProgress

	grantedItems   []string
	awaitingReward bool
	completedCount int

	revision  uint64
	updatedAt time.Time
}

// NewInstance creates an Active instance at step 1 with zeroed goals.
// baseRevision is the last revision persisted for this player and quest type.
func NewInstance(playerID string, def *Definition, baseRevision uint64) *Instance {
	goals := make([]GoalProgress, len(def.Goals))
	for i, g := range def.Goals {
		goals[i] = GoalProgress{Target: g.Required}
	}
	return &Instance{
		id:        uuid.New(),
		playerID:  playerID,
		questType: def.ID,
		step:      StepFirst,
		status:    StatusActive,
		goals:     goals,
		revision:  baseRevision + 1,
		updatedAt: time.Now(),
	}
}

func (i *Instance) ID() uuid.UUID     { return i.id }
func (i *Instance) PlayerID() string  { return i.playerID }
func (i *Instance) QuestType() string { return i.questType }

// Step returns the current step cursor
func (i *Instance) Step() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.step
}

// Status returns the current lifecycle status
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Revision returns the save revision of the current state
func (i *Instance) Revision() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.revision
}

// Goal returns a copy of the progress for goal index
func (i *Instance) Goal(index int) (GoalProgress, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if index < 0 || index >= len(i.goals) {
		return GoalProgress{}, fmt.Errorf("%w: %d", ErrNoSuchGoal, index)
	}
	return i.goals[index], nil
}

// AllGoalsAchieved reports whether every goal has reached its target
func (i *Instance) AllGoalsAchieved() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.allGoalsAchievedLocked()
}

func (i *Instance) allGoalsAchievedLocked() bool {
	for _, g := range i.goals {
		if !g.IsAchieved() {
			return false
		}
	}
	return true
}

// AwaitingReward reports whether a reward choice dialog is outstanding
func (i *Instance) AwaitingReward() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.awaitingReward
}

// GrantedItems returns the quest-prop items granted during this instance
func (i *Instance) GrantedItems() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.grantedItems))
	copy(out, i.grantedItems)
	return out
}

// CompletedCount is how many times the player had finished this quest type
// when the instance was created, plus one once it finishes.
func (i *Instance) CompletedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.completedCount
}

func (i *Instance) touchLocked() {
	i.revision++
	i.updatedAt = time.Now()
}

// IncStep moves the step cursor forward by exactly one
func (i *Instance) IncStep() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusActive {
		return fmt.Errorf("%w: step on %s quest", ErrInvalidTransition, i.status)
	}
	i.step++
	i.touchLocked()
	return nil
}

// AdvanceGoal advances goal index by one. Advancing an achieved goal is a no-op
// and reports changed=false.
func (i *Instance) AdvanceGoal(index int) (changed bool, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusActive {
		return false, fmt.Errorf("%w: advance on %s quest", ErrInvalidTransition, i.status)
	}
	if index < 0 || index >= len(i.goals) {
		return false, fmt.Errorf("%w: %d", ErrNoSuchGoal, index)
	}
	if !i.goals[index].Advance() {
		return false, nil
	}
	i.touchLocked()
	return true, nil
}

// RecordGrantedItem notes a quest-prop item handed to the player so abort can take it back
func (i *Instance) RecordGrantedItem(itemID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.grantedItems = append(i.grantedItems, itemID)
	i.touchLocked()
}

// ForgetGrantedItem drops one recorded grant of itemID, used when the item is taken back by a rule
func (i *Instance) ForgetGrantedItem(itemID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, id := range i.grantedItems {
		if id == itemID {
			i.grantedItems = append(i.grantedItems[:idx], i.grantedItems[idx+1:]...)
			i.touchLocked()
			return
		}
	}
}

// MarkAwaitingReward records that the reward choice dialog was sent
func (i *Instance) MarkAwaitingReward() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusActive {
		return fmt.Errorf("%w: reward dialog on %s quest", ErrInvalidTransition, i.status)
	}
	if !i.allGoalsAchievedLocked() {
		return ErrGoalsNotAchieved
	}
	if !i.awaitingReward {
		i.awaitingReward = true
		i.touchLocked()
	}
	return nil
}

// Finish transitions an Active instance with all goals achieved to Finished
func (i *Instance) Finish() error {
	return i.FinishWith(nil)
}

// FinishWith runs commit while holding the instance lock, after checking that
// the instance is Active and every goal is achieved. The instance becomes
// Finished only if commit succeeds; otherwise it is left untouched.
func (i *Instance) FinishWith(commit func() error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusActive {
		return fmt.Errorf("%w: finish on %s quest", ErrInvalidTransition, i.status)
	}
	if !i.allGoalsAchievedLocked() {
		return ErrGoalsNotAchieved
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	i.status = StatusFinished
	i.awaitingReward = false
	i.grantedItems = nil
	i.completedCount++
	i.touchLocked()
	return nil
}

// Abort transitions an Active instance to Aborted and returns the quest-prop
// items that were granted during it
func (i *Instance) Abort() ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusActive {
		return nil, fmt.Errorf("%w: abort on %s quest", ErrInvalidTransition, i.status)
	}
	items := i.grantedItems
	i.grantedItems = nil
	i.status = StatusAborted
	i.step = StepAborted
	i.awaitingReward = false
	i.touchLocked()
	return items, nil
}
