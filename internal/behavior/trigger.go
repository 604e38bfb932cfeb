// Package behavior holds the event-condition-action vocabulary: triggers,
// requirements and actions composed into rules, and the registry that
// selects candidate rules for an event.
package behavior

import (
	"fmt"
	"strings"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
)

// MatchMode controls how a trigger's payload is compared with an event's
type MatchMode int

const (
	// MatchDefault picks the mode appropriate for the trigger kind.
	MatchDefault MatchMode = iota
	MatchAny
	MatchExact
	// MatchExactFold compares case-insensitively.
	MatchExactFold
	// MatchSubstring tests for a case-insensitive substring.
	MatchSubstring
)

// ParseMatchMode converts a content keyword to a MatchMode
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return MatchDefault, nil
	case "any":
		return MatchAny, nil
	case "exact":
		return MatchExact, nil
	case "exact_fold", "fold":
		return MatchExactFold, nil
	case "substring", "contains":
		return MatchSubstring, nil
	default:
		return MatchDefault, fmt.Errorf("unknown match mode %q", s)
	}
}

// defaultMatch is the match mode used when a trigger leaves it unset.
// Whispers ignore case, kills match on a name fragment, ids match exactly.
func defaultMatch(kind event.Kind) MatchMode {
	switch kind {
	case event.KindWhisper:
		return MatchExactFold
	case event.KindEnemyKilled:
		return MatchSubstring
	case event.KindInteract, event.KindAreaEnter:
		return MatchAny
	default:
		return MatchExact
	}
}

// Trigger is the event shape a rule listens for
type Trigger struct {
	Kind event.Kind

	// Source scopes the trigger to one entity. Empty matches any source.
	Source string

	// Payload is the keyword, enemy name fragment, item id or quest type.
	// An empty payload matches any event payload.
	Payload string
	Match   MatchMode
}

// Mode returns the effective match mode
func (t Trigger) Mode() MatchMode {
	if t.Match == MatchDefault {
		return defaultMatch(t.Kind)
	}
	return t.Match
}

// Matches reports whether ev has the trigger's kind, source and payload
func (t Trigger) Matches(ev event.Event) bool {
	if t.Kind != ev.Kind {
		return false
	}
	if t.Source != "" && t.Source != ev.SourceID {
		return false
	}
	if t.Payload == "" {
		return true
	}

	switch t.Mode() {
	case MatchAny:
		return true
	case MatchExactFold:
		return strings.EqualFold(strings.TrimSpace(ev.Payload), t.Payload)
	case MatchSubstring:
		return strings.Contains(strings.ToLower(ev.Payload), strings.ToLower(t.Payload))
	default:
		return ev.Payload == t.Payload
	}
}

// npcScoped reports whether triggers of kind are naturally bound to the
// owning NPC when no explicit source is given
func npcScoped(kind event.Kind) bool {
	switch kind {
	case event.KindInteract, event.KindWhisper, event.KindGiveItem,
		event.KindAcceptQuest, event.KindDeclineQuest, event.KindChooseReward:
		return true
	default:
		return false
	}
}

func (t Trigger) String() string {
	var b strings.Builder
	b.WriteString(t.Kind.String())
	if t.Source != "" {
		b.WriteString("@")
		b.WriteString(t.Source)
	}
	if t.Payload != "" {
		fmt.Fprintf(&b, "(%q)", t.Payload)
	}
	return b.String()
}
