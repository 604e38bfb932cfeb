// Package reward grants quest completion rewards. Optional item rewards are
// granted together with the instance's Finished transition: either the player
// receives every chosen item and the quest finishes, or nothing changes.
package reward

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

var (
	// ErrInvalidChoice is returned for an out of range, duplicate or
	// over-the-cap reward selection.
	ErrInvalidChoice = errors.New("invalid reward choice")

	// ErrInventoryFull is returned when a chosen item cannot be placed.
	ErrInventoryFull = errors.New("inventory full")

	// ErrChoiceRequired is returned by Complete for quests with optional rewards.
	ErrChoiceRequired = errors.New("quest requires a reward choice")
)

// Granter is the part of the inventory and economy collaborator rewards need
type Granter interface {
	GrantItem(playerID, itemID string) bool
	RemoveItem(playerID, itemID string) bool
	AddMoney(playerID string, amount int)
	GrantXP(playerID string, amount int)
}

// Granted describes what a completed quest gave the player
type Granted struct {
	QuestType string
	Items     []string
	XP        int
	Gold      int
}

// ResolveChoice finishes inst granting the optional reward at index
func ResolveChoice(inst *quest.Instance, def *quest.Definition, index int, g Granter) (Granted, error) {
	return ResolveChoices(inst, def, []int{index}, g)
}

// ResolveChoices finishes inst granting the optional rewards at indices plus
// the base experience and gold. Errors are checked in this order:
// quest.ErrInvalidTransition, quest.ErrGoalsNotAchieved, ErrInvalidChoice,
// ErrInventoryFull. On any error the player and the instance are unchanged.
func ResolveChoices(inst *quest.Instance, def *quest.Definition, indices []int, g Granter) (Granted, error) {
	granted := Granted{QuestType: def.ID}
	player := inst.PlayerID()

	err := inst.FinishWith(func() error {
		if err := checkChoices(def, indices); err != nil {
			return err
		}

		items := make([]string, 0, len(indices))
		for _, idx := range indices {
			itemID := def.Options[idx].ItemID
			if !g.GrantItem(player, itemID) {
				rollback(g, player, items)
				return fmt.Errorf("%w: cannot place %s", ErrInventoryFull, itemID)
			}
			items = append(items, itemID)
		}

		grantBase(g, player, def)
		granted.Items = items
		granted.XP = def.BaseXP
		granted.Gold = def.BaseGold
		return nil
	})
	if err != nil {
		return Granted{}, err
	}
	return granted, nil
}

// Complete finishes a quest without optional rewards, granting base experience and gold
func Complete(inst *quest.Instance, def *quest.Definition, g Granter) (Granted, error) {
	if def.HasOptionalRewards() {
		return Granted{}, ErrChoiceRequired
	}
	err := inst.FinishWith(func() error {
		grantBase(g, inst.PlayerID(), def)
		return nil
	})
	if err != nil {
		return Granted{}, err
	}
	return Granted{QuestType: def.ID, XP: def.BaseXP, Gold: def.BaseGold}, nil
}

// Options returns the reward options offered by def, or nil
func Options(def *quest.Definition) []quest.RewardOption {
	if !def.HasOptionalRewards() {
		return nil
	}
	out := make([]quest.RewardOption, len(def.Options))
	copy(out, def.Options)
	return out
}

func checkChoices(def *quest.Definition, indices []int) error {
	if !def.HasOptionalRewards() {
		return fmt.Errorf("%w: quest %s has no optional rewards", ErrInvalidChoice, def.ID)
	}
	if len(indices) == 0 || len(indices) > def.ChooseCount {
		return fmt.Errorf("%w: choose between 1 and %d, got %d", ErrInvalidChoice, def.ChooseCount, len(indices))
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	for i, idx := range sorted {
		if idx < 0 || idx >= len(def.Options) {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidChoice, idx, len(def.Options))
		}
		if i > 0 && sorted[i-1] == idx {
			return fmt.Errorf("%w: index %d chosen twice", ErrInvalidChoice, idx)
		}
	}
	return nil
}

func rollback(g Granter, player string, items []string) {
	for i := len(items) - 1; i >= 0; i-- {
		g.RemoveItem(player, items[i])
	}
}

func grantBase(g Granter, player string, def *quest.Definition) {
	if def.BaseXP > 0 {
		g.GrantXP(player, def.BaseXP)
	}
	if def.BaseGold > 0 {
		g.AddMoney(player, def.BaseGold)
	}
}
