// Package event defines the world events the quest engine consumes and the
// bus that delivers them.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the shape of a world event.
type Kind int

const (
	KindUnknown Kind = iota
	KindInteract
	KindWhisper
	KindEnemyKilled
	KindGiveItem
	KindAcceptQuest
	KindDeclineQuest
	KindAreaEnter
	KindUseSlot
	// KindChooseReward carries the player's answer to a reward choice dialog.
	KindChooseReward
)

var kindNames = map[Kind]string{
	KindInteract:     "interact",
	KindWhisper:      "whisper",
	KindEnemyKilled:  "enemy_killed",
	KindGiveItem:     "give_item",
	KindAcceptQuest:  "accept_quest",
	KindDeclineQuest: "decline_quest",
	KindAreaEnter:    "area_enter",
	KindUseSlot:      "use_slot",
	KindChooseReward: "choose_reward",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown event kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if k == KindUnknown {
		return nil, errors.New("cannot marshal unknown event kind")
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single world occurrence attributed to one player.
//
// SourceID is the entity the event is scoped to: the NPC spoken to, the area
// entered, or the enemy killed. Payload carries the kind-specific string:
// the whispered keyword, the killed enemy's name, the item id handed over or
// used, the quest type being accepted or declined, or the chosen reward index.
type Event struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	PlayerID string    `json:"player_id"`
	SourceID string    `json:"source_id,omitempty"`
	Payload  string    `json:"payload,omitempty"`
	Time     time.Time `json:"time"`
}

// New creates an event with a fresh id and the current time.
func New(kind Kind, playerID, sourceID, payload string) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		PlayerID: playerID,
		SourceID: sourceID,
		Payload:  payload,
		Time:     time.Now(),
	}
}

// Validate checks the fields every event must carry.
func (e Event) Validate() error {
	if e.Kind == KindUnknown {
		return errors.New("event kind is required")
	}
	if e.PlayerID == "" {
		return errors.New("event player_id is required")
	}
	switch e.Kind {
	case KindWhisper, KindGiveItem, KindUseSlot, KindAcceptQuest, KindDeclineQuest, KindChooseReward:
		if e.Payload == "" {
			return fmt.Errorf("%s event requires a payload", e.Kind)
		}
	}
	return nil
}
