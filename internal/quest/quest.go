package quest

import (
	"errors"
	"fmt"
	"strings"
)

// GoalKind represents the type of quest goal
type GoalKind string

const (
	GoalKill    GoalKind = "kill"    // KillTask: defeat N enemies whose name contains Target
	GoalScout   GoalKind = "scout"   // ScoutMission: enter the area Target
	GoalCollect GoalKind = "collect" // CollectItem: hand over N of item Target
)

// Goal is a quantifiable sub-objective of a quest
type Goal struct {
	Kind        GoalKind
	Target      string // enemy name fragment, area id, or item id
	Required    int
	Description string

	// Manual goals only advance through AdvanceGoal actions, never from
	// kill, area or hand-over events directly.
	Manual bool
}

// Matches reports whether an occurrence of kind involving subject counts toward the goal.
// Kill goals match on a case-insensitive name substring, the others on exact id.
func (g Goal) Matches(kind GoalKind, subject string) bool {
	if g.Kind != kind || subject == "" {
		return false
	}
	if g.Target == "" {
		return true
	}
	if kind == GoalKill {
		return strings.Contains(strings.ToLower(subject), strings.ToLower(g.Target))
	}
	return g.Target == subject
}

// RewardOption is one entry in a quest's optional reward list
type RewardOption struct {
	ItemID      string
	Description string
}

// Definition is the immutable template shared by every player's instance of a quest
type Definition struct {
	ID          string
	Name        string
	Description string
	GiverNPC    string
	TurnInNPC   string

	// Qualification
	MinLevel   int
	MaxLevel   int // 0 means no upper bound
	Classes    []string
	Prereqs    []string
	Repeatable bool

	Goals []Goal

	// Rewards
	BaseXP      int
	BaseGold    int
	Options     []RewardOption
	ChooseCount int

	// QuestItems are quest-prop items that are taken back on abort or turn-in
	QuestItems []string
}

// HasOptionalRewards reports whether finishing requires a reward choice
func (d *Definition) HasOptionalRewards() bool {
	return len(d.Options) > 0 && d.ChooseCount > 0
}

// IsQuestItem reports whether itemID is one of the quest's props
func (d *Definition) IsQuestItem(itemID string) bool {
	for _, id := range d.QuestItems {
		if id == itemID {
			return true
		}
	}
	return false
}

// Validate checks the definition for authoring errors
func (d *Definition) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("quest id is required"))
	}
	if d.MinLevel < 0 {
		errs = append(errs, fmt.Errorf("quest %s: min_level %d is negative", d.ID, d.MinLevel))
	}
	if d.MaxLevel != 0 && d.MaxLevel < d.MinLevel {
		errs = append(errs, fmt.Errorf("quest %s: max_level %d below min_level %d", d.ID, d.MaxLevel, d.MinLevel))
	}
	for i, g := range d.Goals {
		if g.Required <= 0 {
			errs = append(errs, fmt.Errorf("quest %s: goal %d requires a positive count", d.ID, i))
		}
		switch g.Kind {
		case GoalKill, GoalScout, GoalCollect:
		default:
			errs = append(errs, fmt.Errorf("quest %s: goal %d has unknown kind %q", d.ID, i, g.Kind))
		}
	}
	if d.ChooseCount < 0 || d.ChooseCount > len(d.Options) {
		errs = append(errs, fmt.Errorf("quest %s: choose %d of %d options", d.ID, d.ChooseCount, len(d.Options)))
	}
	if d.BaseXP < 0 || d.BaseGold < 0 {
		errs = append(errs, fmt.Errorf("quest %s: base rewards must not be negative", d.ID))
	}
	return errors.Join(errs...)
}

// PlayerInfo is the slice of player state qualification depends on
type PlayerInfo struct {
	Level int
	Class string
}

// Qualification is the outcome of checking whether a player may accept a quest
type Qualification int

const (
	Qualified Qualification = iota
	LevelTooLow
	LevelTooHigh
	WrongClass
	MissingPrereq
	AlreadyActive
	AlreadyFinished
)

func (q Qualification) String() string {
	switch q {
	case Qualified:
		return "qualified"
	case LevelTooLow:
		return "level too low"
	case LevelTooHigh:
		return "level too high"
	case WrongClass:
		return "wrong class"
	case MissingPrereq:
		return "missing prerequisite"
	case AlreadyActive:
		return "already active"
	case AlreadyFinished:
		return "already finished"
	default:
		return "unknown"
	}
}

// Qualify checks whether a player with the given info and quest log may accept the quest
func (d *Definition) Qualify(p PlayerInfo, log *PlayerQuestLog) Qualification {
	if log != nil {
		if _, ok := log.Active(d.ID); ok {
			return AlreadyActive
		}
		if !d.Repeatable && log.HasCompleted(d.ID) {
			return AlreadyFinished
		}
	}
	if p.Level < d.MinLevel {
		return LevelTooLow
	}
	if d.MaxLevel > 0 && p.Level > d.MaxLevel {
		return LevelTooHigh
	}
	if len(d.Classes) > 0 {
		ok := false
		for _, c := range d.Classes {
			if strings.EqualFold(c, p.Class) {
				ok = true
				break
			}
		}
		if !ok {
			return WrongClass
		}
	}
	for _, prereq := range d.Prereqs {
		if log == nil || !log.HasCompleted(prereq) {
			return MissingPrereq
		}
	}
	return Qualified
}
