package engine

import (
	"errors"
	"fmt"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/reward"
)

// FailureKind classifies what went wrong while handling an event
type FailureKind int

const (
	// FailQualification: the player may not take the quest. Silent.
	FailQualification FailureKind = iota + 1
	// FailRuleEvaluation: a requirement could not be evaluated. The rule is
	// treated as not matching.
	FailRuleEvaluation
	// FailAction: an action failed. The rest of the rule is skipped and the
	// player is told.
	FailAction
	// FailInvalidTransition: the quest was not in a state that allows the change. No-op.
	FailInvalidTransition
	// FailPersistence: a record could not be loaded or queued for saving.
	FailPersistence
)

func (k FailureKind) String() string {
	switch k {
	case FailQualification:
		return "qualification"
	case FailRuleEvaluation:
		return "rule_evaluation"
	case FailAction:
		return "action"
	case FailInvalidTransition:
		return "invalid_transition"
	case FailPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned once the engine has been shut down
	ErrClosed = errors.New("engine closed")

	// ErrUnknownQuest is returned for quest types missing from the loaded content
	ErrUnknownQuest = errors.New("unknown quest")

	// ErrNotQualified wraps a failed qualification check
	ErrNotQualified = errors.New("not qualified")

	// ErrNoActiveQuest is returned when an action needs an active instance
	ErrNoActiveQuest = errors.New("no active quest")

	// ErrInsufficientFunds is returned by TakeGold
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMissingItem is returned by RemoveItem when the player lacks the item
	ErrMissingItem = errors.New("item not in inventory")
)

// Failure records one failed step of event handling
type Failure struct {
	Kind   FailureKind
	Player string
	Rule   string
	Quest  string
	Err    error
}

func (f *Failure) Error() string {
	if f.Rule != "" {
		return fmt.Sprintf("%s failure in rule %s: %v", f.Kind, f.Rule, f.Err)
	}
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// classify maps an action or reward error onto the failure taxonomy
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNotQualified):
		return FailQualification
	case errors.Is(err, quest.ErrInvalidTransition), errors.Is(err, ErrNoActiveQuest):
		return FailInvalidTransition
	default:
		return FailAction
	}
}

// playerMessage is the text an action failure is reported with
func playerMessage(err error) string {
	switch {
	case errors.Is(err, reward.ErrInventoryFull):
		return "Your inventory is full."
	case errors.Is(err, reward.ErrInvalidChoice):
		return "That is not a valid reward choice."
	case errors.Is(err, reward.ErrChoiceRequired):
		return "You must choose a reward first."
	case errors.Is(err, quest.ErrGoalsNotAchieved):
		return "You have not finished everything yet."
	case errors.Is(err, ErrInsufficientFunds):
		return "You cannot afford that."
	case errors.Is(err, ErrMissingItem):
		return "You do not have the required item."
	default:
		return "Something went wrong."
	}
}
