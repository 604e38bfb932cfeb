package engine

import (
	"context"
	"log/slog"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/reward"
)

// Inventory is the item and economy collaborator
type Inventory interface {
	reward.Granter
	RemoveMoney(playerID string, amount int) bool
}

// Dialogue delivers text to players. Calls are fire-and-forget.
type Dialogue interface {
	SendTalk(npcID, playerID, text string)
	SendQuestOffer(npcID, playerID, questType, text string)
	SendRewardChoice(playerID, questType string, options []quest.RewardOption, choose int)
	SendSystemMessage(playerID, text string)
}

// Movement moves players between locations
type Movement interface {
	Teleport(playerID, location string)
}

// Players looks up the player facts requirements depend on
type Players interface {
	PlayerInfo(playerID string) (quest.PlayerInfo, bool)
}

// Loader reads a player's persisted quest records
type Loader interface {
	LoadAll(ctx context.Context, playerID string) ([]quest.Record, error)
}

// Persister queues quest records for saving
type Persister interface {
	Enqueue(ctx context.Context, rec quest.Record) error
}

// flusher is implemented by persisters that can wait for queued saves
type flusher interface {
	Flush(ctx context.Context) error
}

// LogDialogue writes dialogue to a logger. questd uses it when no gateway
// connection is registered for a player.
type LogDialogue struct {
	Logger *slog.Logger
}

func (d LogDialogue) SendTalk(npcID, playerID, text string) {
	d.Logger.Info("Talk", "npc_id", npcID, "player_id", playerID, "text", text)
}

func (d LogDialogue) SendQuestOffer(npcID, playerID, questType, text string) {
	d.Logger.Info("Quest offer", "npc_id", npcID, "player_id", playerID, "quest", questType, "text", text)
}

func (d LogDialogue) SendRewardChoice(playerID, questType string, options []quest.RewardOption, choose int) {
	items := make([]string, len(options))
	for i, o := range options {
		items[i] = o.ItemID
	}
	d.Logger.Info("Reward choice", "player_id", playerID, "quest", questType, "options", items, "choose", choose)
}

func (d LogDialogue) SendSystemMessage(playerID, text string) {
	d.Logger.Info("System message", "player_id", playerID, "text", text)
}
