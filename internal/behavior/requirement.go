package behavior

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
)

// ErrUnsupportedComparator is returned when a boolean requirement is given an
// ordering comparator
var ErrUnsupportedComparator = errors.New("comparator not supported for requirement")

// Comparator is the operator a requirement applies to its expected value
type Comparator int

const (
	Equal Comparator = iota
	NotEqual
	Less
	Greater
	LessOrEqual
	GreaterOrEqual
)

// ParseComparator accepts symbols and names
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "==", "=", "eq", "equal":
		return Equal, nil
	case "!=", "<>", "ne", "not_equal":
		return NotEqual, nil
	case "<", "lt", "less":
		return Less, nil
	case ">", "gt", "greater":
		return Greater, nil
	case "<=", "le", "less_or_equal":
		return LessOrEqual, nil
	case ">=", "ge", "greater_or_equal":
		return GreaterOrEqual, nil
	default:
		return Equal, fmt.Errorf("unknown comparator %q", s)
	}
}

func (c Comparator) String() string {
	switch c {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case Less:
		return "<"
	case Greater:
		return ">"
	case LessOrEqual:
		return "<="
	case GreaterOrEqual:
		return ">="
	default:
		return "?"
	}
}

// Compare applies the comparator as "actual <op> expected"
func (c Comparator) Compare(actual, expected int) bool {
	switch c {
	case Equal:
		return actual == expected
	case NotEqual:
		return actual != expected
	case Less:
		return actual < expected
	case Greater:
		return actual > expected
	case LessOrEqual:
		return actual <= expected
	case GreaterOrEqual:
		return actual >= expected
	default:
		return false
	}
}

// boolean applies Equal/NotEqual to a yes/no fact
func (c Comparator) boolean(fact bool) (bool, error) {
	switch c {
	case Equal:
		return fact, nil
	case NotEqual:
		return !fact, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedComparator, c)
	}
}

// RequirementKind discriminates requirements
type RequirementKind int

const (
	ReqQuestGivable RequirementKind = iota + 1
	ReqQuestPending
	ReqQuestStep
	ReqQuestGoalAchieved
	ReqPlayerLevel
	ReqClassIs
	ReqCustom
)

var requirementNames = map[RequirementKind]string{
	ReqQuestGivable:      "quest_givable",
	ReqQuestPending:      "quest_pending",
	ReqQuestStep:         "quest_step",
	ReqQuestGoalAchieved: "quest_goal_achieved",
	ReqPlayerLevel:       "player_level",
	ReqClassIs:           "class_is",
	ReqCustom:            "custom",
}

func (k RequirementKind) String() string {
	if name, ok := requirementNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseRequirementKind converts a content keyword to a RequirementKind
func ParseRequirementKind(s string) (RequirementKind, error) {
	s = strings.ToLower(s)
	for k, name := range requirementNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown requirement %q", s)
}

// AllGoals selects every goal in a QuestGoalAchieved requirement
const AllGoals = -1

// Predicate is a content-supplied custom check. Implementations must not
// mutate state.
type Predicate interface {
	Name() string
	Eval(st State) (bool, error)
}

// Requirement is a pure predicate gating whether a matched rule fires
type Requirement struct {
	Kind       RequirementKind
	Comparator Comparator

	// QuestType defaults to the owning rule's quest when empty.
	QuestType string

	// Value is the expected step or level.
	Value int

	// Goal is the goal index for QuestGoalAchieved, or AllGoals.
	Goal int

	Class     string
	Predicate Predicate
}

// State is the read-only view requirements evaluate against
type State interface {
	Event() event.Event
	PlayerLevel() int
	PlayerClass() string

	// QuestStep returns the step of the active instance, and false when the
	// player has no active instance of questType.
	QuestStep(questType string) (int, bool)

	// GoalAchieved reports whether goal (or AllGoals) of the active instance
	// is achieved. ok is false when no instance is active.
	GoalAchieved(questType string, goal int) (achieved, ok bool, err error)

	// QuestGivable reports whether the player qualifies to accept questType.
	QuestGivable(questType string) (bool, error)

	// Var exposes content-defined values to custom predicates.
	Var(name string) (string, bool)
}

// Evaluate checks one requirement. It never changes state and is safe to call
// speculatively. An error means the requirement could not be evaluated.
//
// Quest step and goal requirements are false when the quest is not active:
// "no instance" is distinct from every step value, including 0.
func Evaluate(req Requirement, questType string, st State) (bool, error) {
	qt := req.QuestType
	if qt == "" {
		qt = questType
	}

	switch req.Kind {
	case ReqQuestGivable:
		givable, err := st.QuestGivable(qt)
		if err != nil {
			return false, err
		}
		return req.Comparator.boolean(givable)

	case ReqQuestPending:
		_, active := st.QuestStep(qt)
		return req.Comparator.boolean(active)

	case ReqQuestStep:
		step, active := st.QuestStep(qt)
		if !active {
			return false, nil
		}
		return req.Comparator.Compare(step, req.Value), nil

	case ReqQuestGoalAchieved:
		achieved, ok, err := st.GoalAchieved(qt, req.Goal)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		return req.Comparator.boolean(achieved)

	case ReqPlayerLevel:
		return req.Comparator.Compare(st.PlayerLevel(), req.Value), nil

	case ReqClassIs:
		return req.Comparator.boolean(strings.EqualFold(st.PlayerClass(), req.Class))

	case ReqCustom:
		if req.Predicate == nil {
			return false, errors.New("custom requirement has no predicate")
		}
		ok, err := req.Predicate.Eval(st)
		if err != nil {
			return false, fmt.Errorf("predicate %s: %w", req.Predicate.Name(), err)
		}
		return req.Comparator.boolean(ok)

	default:
		return false, fmt.Errorf("unknown requirement kind %d", req.Kind)
	}
}

// EvaluateAll ANDs the requirements, stopping at the first false or error
func EvaluateAll(reqs []Requirement, questType string, st State) (bool, error) {
	for i, req := range reqs {
		ok, err := Evaluate(req, questType, st)
		if err != nil {
			return false, fmt.Errorf("requirement %d (%s): %w", i, req.Kind, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
