package behavior

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
)

// ErrRegistryFrozen is returned by Register once the registry is in service
var ErrRegistryFrozen = errors.New("behavior registry is frozen")

// Rule binds a trigger to ordered requirements and actions.
// Owner is the NPC the rule belongs to, empty for global rules.
// QuestType names the quest by value; quest requirements and actions
// without an explicit quest type act on it.
type Rule struct {
	ID           string
	Owner        string
	QuestType    string
	Trigger      Trigger
	Requirements []Requirement
	Actions      []Action
}

// ValidationError collects every problem found in a rule set
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// HasErrors reports whether any errors were collected
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// QuestLookup reports whether a quest type is defined
type QuestLookup func(questType string) bool

// Validate checks a rule, appending findings to ve. knownQuest may be nil.
func Validate(r Rule, knownQuest QuestLookup, ve *ValidationError) {
	name := r.ID
	if name == "" {
		name = fmt.Sprintf("%s rule", r.Trigger)
	}
	errorf := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, name+": "+fmt.Sprintf(format, args...))
	}
	warnf := func(format string, args ...any) {
		ve.Warnings = append(ve.Warnings, name+": "+fmt.Sprintf(format, args...))
	}

	if r.Trigger.Kind == event.KindUnknown {
		errorf("trigger kind is required")
	}
	switch r.Trigger.Kind {
	case event.KindWhisper:
		if strings.TrimSpace(r.Trigger.Payload) == "" {
			errorf("whisper trigger needs a keyword")
		}
	case event.KindGiveItem, event.KindUseSlot:
		if r.Trigger.Payload == "" {
			errorf("%s trigger needs an item id", r.Trigger.Kind)
		}
	}

	checkQuest := func(where, qt string) {
		if qt == "" {
			qt = r.QuestType
		}
		if qt == "" {
			errorf("%s needs a quest type", where)
			return
		}
		if knownQuest != nil && !knownQuest(qt) {
			errorf("%s refers to unknown quest %q", where, qt)
		}
	}

	for i, req := range r.Requirements {
		where := fmt.Sprintf("requirement %d (%s)", i, req.Kind)
		switch req.Kind {
		case ReqQuestGivable, ReqQuestPending, ReqQuestGoalAchieved:
			checkQuest(where, req.QuestType)
			if req.Comparator != Equal && req.Comparator != NotEqual {
				errorf("%s only supports == and !=", where)
			}
		case ReqQuestStep:
			checkQuest(where, req.QuestType)
			if req.Value < 0 {
				errorf("%s expects a non-negative step", where)
			}
		case ReqPlayerLevel:
		case ReqClassIs:
			if req.Class == "" {
				errorf("%s needs a class", where)
			}
		case ReqCustom:
			if req.Predicate == nil {
				errorf("%s has no predicate", where)
			}
		default:
			errorf("%s is unknown", where)
		}
	}

	finished := -1
	for i, act := range r.Actions {
		where := fmt.Sprintf("action %d (%s)", i, act.Kind)
		if finished >= 0 {
			warnf("%s follows finish_quest at action %d and is unreachable", where, finished)
		}
		if act.mutatesQuest() || act.Kind == ActOfferQuest || act.Kind == ActGiveQuest {
			checkQuest(where, act.QuestType)
		}
		switch act.Kind {
		case ActGiveItem, ActRemoveItem:
			if act.ItemID == "" {
				errorf("%s needs an item", where)
			}
		case ActGiveGold, ActTakeGold, ActGiveXP:
			if act.Amount <= 0 {
				errorf("%s needs a positive amount", where)
			}
		case ActTeleport:
			if act.Location == "" {
				errorf("%s needs a location", where)
			}
		case ActAdvanceGoal:
			if act.Goal < 0 {
				errorf("%s has a negative goal index", where)
			}
		case ActFinishQuest:
			if finished < 0 {
				finished = i
			}
		case ActTalk, ActOfferQuest, ActGiveQuest, ActIncQuestStep, ActAbortQuest:
		default:
			errorf("%s is unknown", where)
		}
	}

	if len(r.Actions) == 0 {
		warnf("rule has no actions")
	}
}

// Registry holds all behavior rules. Rules are registered during content
// load; after Freeze the registry is read-only and safe for concurrent readers.
type Registry struct {
	rules  []*Rule
	byKind map[event.Kind][]*Rule
	frozen bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[event.Kind][]*Rule)}
}

// Register validates and adds a copy of r. NPC-scoped triggers without an
// explicit source are bound to the rule's owner.
func (reg *Registry) Register(r Rule) error {
	if reg.frozen {
		return ErrRegistryFrozen
	}

	ve := &ValidationError{}
	Validate(r, nil, ve)
	if ve.HasErrors() {
		return ve
	}

	if r.Trigger.Source == "" && r.Owner != "" && npcScoped(r.Trigger.Kind) {
		r.Trigger.Source = r.Owner
	}
	r.Requirements = append([]Requirement(nil), r.Requirements...)
	r.Actions = append([]Action(nil), r.Actions...)
	if r.ID == "" {
		r.ID = fmt.Sprintf("rule-%d", len(reg.rules)+1)
	}

	rule := &r
	reg.rules = append(reg.rules, rule)
	reg.byKind[r.Trigger.Kind] = append(reg.byKind[r.Trigger.Kind], rule)
	return nil
}

// Freeze ends the load phase
func (reg *Registry) Freeze() {
	reg.frozen = true
}

// Len returns the number of registered rules
func (reg *Registry) Len() int {
	return len(reg.rules)
}

// Rules returns every rule in registration order
func (reg *Registry) Rules() []*Rule {
	out := make([]*Rule, len(reg.rules))
	copy(out, reg.rules)
	return out
}

// Candidates returns the rules whose trigger matches ev, in registration order
func (reg *Registry) Candidates(ev event.Event) []*Rule {
	var out []*Rule
	for _, r := range reg.byKind[ev.Kind] {
		if r.Trigger.Matches(ev) {
			out = append(out, r)
		}
	}
	return out
}
