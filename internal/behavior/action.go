package behavior

import (
	"fmt"
	"strings"
)

// ActionKind discriminates actions
type ActionKind int

const (
	ActTalk ActionKind = iota + 1
	ActGiveItem
	ActRemoveItem
	ActGiveGold
	ActTakeGold
	ActGiveXP
	ActOfferQuest
	ActGiveQuest
	ActIncQuestStep
	ActAdvanceGoal
	ActFinishQuest
	ActAbortQuest
	ActTeleport
)

var actionNames = map[ActionKind]string{
	ActTalk:         "talk",
	ActGiveItem:     "give_item",
	ActRemoveItem:   "remove_item",
	ActGiveGold:     "give_gold",
	ActTakeGold:     "take_gold",
	ActGiveXP:       "give_xp",
	ActOfferQuest:   "offer_quest",
	ActGiveQuest:    "give_quest",
	ActIncQuestStep: "inc_quest_step",
	ActAdvanceGoal:  "advance_goal",
	ActFinishQuest:  "finish_quest",
	ActAbortQuest:   "abort_quest",
	ActTeleport:     "teleport",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseActionKind converts a content keyword to an ActionKind
func ParseActionKind(s string) (ActionKind, error) {
	s = strings.ToLower(s)
	for k, name := range actionNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Action is one ordered step executed when a rule fires
type Action struct {
	Kind ActionKind

	// Text is the line spoken by Talk, the prompt shown by OfferQuest,
	// or the notice sent by AbortQuest.
	Text string

	ItemID string
	Amount int

	// QuestType defaults to the owning rule's quest when empty.
	QuestType string

	// Goal is the goal index advanced by AdvanceGoal.
	Goal int

	// QuestProp marks a GiveItem as a quest item that abort takes back.
	QuestProp bool

	Location string
}

// mutatesQuest reports whether the action needs an active quest instance
func (a Action) mutatesQuest() bool {
	switch a.Kind {
	case ActIncQuestStep, ActAdvanceGoal, ActFinishQuest, ActAbortQuest:
		return true
	}
	return false
}

func (a Action) String() string {
	switch a.Kind {
	case ActTalk, ActOfferQuest:
		return fmt.Sprintf("%s(%q)", a.Kind, a.Text)
	case ActGiveItem, ActRemoveItem:
		return fmt.Sprintf("%s(%s)", a.Kind, a.ItemID)
	case ActGiveGold, ActTakeGold, ActGiveXP:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Amount)
	case ActAdvanceGoal:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Goal)
	case ActTeleport:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Location)
	default:
		return a.Kind.String()
	}
}
