package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/content"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/reward"
)

// dispatch is the handling of one event (or one direct API call) for one
// player. It runs on the player's session goroutine.
type dispatch struct {
	e      *Engine
	set    *content.Set
	log    *quest.PlayerQuestLog
	ev     event.Event
	player string
	report *Report

	dirty      map[*quest.Instance]bool
	dirtyOrder []*quest.Instance
}

// touch marks inst for saving once the event is handled
func (d *dispatch) touch(inst *quest.Instance) {
	if d.dirty[inst] {
		return
	}
	d.dirty[inst] = true
	d.dirtyOrder = append(d.dirtyOrder, inst)
}

// fail records a failure and logs it at the level its kind deserves
func (d *dispatch) fail(kind FailureKind, ruleID, questType string, err error) {
	f := &Failure{Kind: kind, Player: d.player, Rule: ruleID, Quest: questType, Err: err}
	d.report.Failures = append(d.report.Failures, f)

	args := []any{"player_id", d.player, "rule", ruleID, "quest", questType, "error", err}
	switch kind {
	case FailQualification, FailInvalidTransition:
		d.e.logger.Debug("Quest change skipped", append(args, "kind", kind.String())...)
	case FailRuleEvaluation:
		d.e.logger.Warn("Rule evaluation failed", args...)
	case FailAction:
		d.e.logger.Warn("Action failed", args...)
	case FailPersistence:
		d.e.logger.Error("Persistence failure", args...)
	}
}

// info fetches the player's current level and class
func (d *dispatch) info() quest.PlayerInfo {
	if d.e.players == nil {
		return quest.PlayerInfo{}
	}
	info, ok := d.e.players.PlayerInfo(d.player)
	if !ok {
		d.e.logger.Debug("Player info unavailable", "player_id", d.player)
	}
	return info
}

// persistDirty queues a save for every instance changed by this dispatch
func (d *dispatch) persistDirty() {
	if d.e.persist == nil {
		return
	}
	for _, inst := range d.dirtyOrder {
		rec := inst.Snapshot()
		if err := d.e.persist.Enqueue(d.e.ctx, rec); err != nil {
			d.fail(FailPersistence, "", rec.QuestType, err)
		}
	}
	d.dirty = make(map[*quest.Instance]bool)
	d.dirtyOrder = nil
}

// builtin handles quest acceptance, reward choices and direct goal tracking
// before any rule runs
func (d *dispatch) builtin() {
	switch d.ev.Kind {
	case event.KindAcceptQuest:
		d.accept(d.ev.Payload, d.ev.SourceID)
	case event.KindDeclineQuest:
		d.unobserve(d.ev.SourceID)
	case event.KindChooseReward:
		d.choose(d.ev.Payload)
	case event.KindEnemyKilled:
		d.track(quest.GoalKill, d.ev.Payload)
	case event.KindGiveItem:
		d.track(quest.GoalCollect, d.ev.Payload)
	case event.KindAreaEnter:
		area := d.ev.SourceID
		if area == "" {
			area = d.ev.Payload
		}
		d.track(quest.GoalScout, area)
	}
}

func (d *dispatch) unobserve(npcID string) {
	if n, ok := d.set.NPCs.Get(npcID); ok {
		n.RemoveObserver(d.player)
	}
}

func (d *dispatch) accept(questType, npcID string) {
	def, err := d.qualify(questType)
	if err != nil {
		d.fail(classify(err), "", questType, err)
		return
	}
	if !d.offeredBy(def, npcID) {
		d.fail(FailQualification, "", questType, fmt.Errorf("%w: %q does not give %s", ErrNotQualified, npcID, questType))
		return
	}
	if err := d.start(def, npcID); err != nil {
		d.fail(classify(err), "", questType, err)
	}
}

// offeredBy reports whether npcID may hand out def. A quest with a giver can
// only be accepted from a known NPC that gives it.
func (d *dispatch) offeredBy(def *quest.Definition, npcID string) bool {
	n, ok := d.set.NPCs.Get(npcID)
	if !ok {
		return def.GiverNPC == ""
	}
	return def.GiverNPC == npcID || n.CanGiveQuest(def.ID)
}

// track advances every non-manual goal of every active quest that subject satisfies
func (d *dispatch) track(kind quest.GoalKind, subject string) {
	if subject == "" {
		return
	}
	for _, inst := range d.log.ActiveInstances() {
		def, ok := d.set.Quests.Get(inst.QuestType())
		if !ok {
			continue
		}
		for i, g := range def.Goals {
			if g.Manual || !g.Matches(kind, subject) {
				continue
			}
			changed, err := inst.AdvanceGoal(i)
			if err != nil {
				d.fail(classify(err), "", def.ID, err)
				continue
			}
			if changed {
				d.touch(inst)
				goal, _ := inst.Goal(i)
				d.e.logger.Debug("Quest goal advanced",
					"player_id", d.player,
					"quest", def.ID,
					"goal", i,
					"current", goal.Current,
					"target", goal.Target)
			}
		}
	}
}

// choose handles a reward choice event. The payload is "<index>" for the
// quest awaiting a choice, or "<quest>:<index>[,<index>...]".
func (d *dispatch) choose(payload string) {
	questType, indices, err := parseChoice(payload)
	if err != nil {
		d.fail(FailAction, "", "", err)
		d.e.dialogue.SendSystemMessage(d.player, playerMessage(err))
		return
	}

	if questType == "" {
		for _, inst := range d.log.ActiveInstances() {
			if inst.AwaitingReward() {
				questType = inst.QuestType()
				break
			}
		}
	}
	if questType == "" {
		d.fail(FailInvalidTransition, "", "", fmt.Errorf("%w: no quest awaits a reward choice", quest.ErrInvalidTransition))
		return
	}

	if _, err := d.resolve(questType, indices); err != nil {
		kind := classify(err)
		d.fail(kind, "", questType, err)
		if kind == FailAction {
			d.e.dialogue.SendSystemMessage(d.player, playerMessage(err))
		}
	}
}

func parseChoice(payload string) (string, []int, error) {
	questType, list := "", payload
	if i := strings.LastIndex(payload, ":"); i >= 0 {
		questType, list = payload[:i], payload[i+1:]
	}
	var indices []int
	for _, part := range strings.Split(list, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q", reward.ErrInvalidChoice, payload)
		}
		indices = append(indices, n)
	}
	return questType, indices, nil
}

// resolve grants the chosen rewards and finishes the quest. Only a quest
// whose finish_quest action has sent the reward dialog can be resolved.
func (d *dispatch) resolve(questType string, indices []int) (reward.Granted, error) {
	inst, ok := d.log.Active(questType)
	if !ok {
		return reward.Granted{}, fmt.Errorf("%w: %s is not active", quest.ErrInvalidTransition, questType)
	}
	if !inst.AwaitingReward() {
		return reward.Granted{}, fmt.Errorf("%w: %s has not been turned in", quest.ErrInvalidTransition, questType)
	}
	def, ok := d.set.Quests.Get(questType)
	if !ok {
		return reward.Granted{}, fmt.Errorf("%w: %s", ErrUnknownQuest, questType)
	}

	granted, err := reward.ResolveChoices(inst, def, indices, d.e.inventory)
	if err != nil {
		return reward.Granted{}, err
	}
	d.completed(inst, def, granted)
	return granted, nil
}

// fire evaluates r and, when every requirement holds, runs its actions.
// It reports whether the rule fired.
func (d *dispatch) fire(r *behavior.Rule) bool {
	st := &ruleState{d: d, info: d.info()}
	ok, err := behavior.EvaluateAll(r.Requirements, r.QuestType, st)
	if err != nil {
		d.fail(FailRuleEvaluation, r.ID, r.QuestType, err)
		return false
	}
	if !ok {
		return false
	}
	d.execute(r)
	return true
}

// execute runs r's actions in order. The first failure stops the rule;
// changes made by earlier actions stay.
func (d *dispatch) execute(r *behavior.Rule) {
	for i, a := range r.Actions {
		stop, err := d.apply(r, a)
		if err != nil {
			kind := classify(err)
			d.fail(kind, r.ID, questOf(r, a), fmt.Errorf("action %d (%s): %w", i, a.Kind, err))
			if kind == FailAction {
				d.e.dialogue.SendSystemMessage(d.player, playerMessage(err))
			}
			return
		}
		if stop {
			return
		}
	}
}

func questOf(r *behavior.Rule, a behavior.Action) string {
	if a.QuestType != "" {
		return a.QuestType
	}
	return r.QuestType
}

// apply runs one action. stop is true for actions that end the rule.
func (d *dispatch) apply(r *behavior.Rule, a behavior.Action) (stop bool, err error) {
	qt := questOf(r, a)
	npcID := r.Owner
	if npcID == "" {
		npcID = d.ev.SourceID
	}
	inv := d.e.inventory

	switch a.Kind {
	case behavior.ActTalk:
		d.e.dialogue.SendTalk(npcID, d.player, d.expand(a.Text))

	case behavior.ActGiveItem:
		if !inv.GrantItem(d.player, a.ItemID) {
			return false, fmt.Errorf("%w: cannot place %s", reward.ErrInventoryFull, a.ItemID)
		}
		if a.QuestProp {
			if inst, ok := d.log.Active(qt); ok {
				inst.RecordGrantedItem(a.ItemID)
				d.touch(inst)
			}
		}

	case behavior.ActRemoveItem:
		if !inv.RemoveItem(d.player, a.ItemID) {
			return false, fmt.Errorf("%w: %s", ErrMissingItem, a.ItemID)
		}
		if inst, ok := d.log.Active(qt); ok {
			before := inst.Revision()
			inst.ForgetGrantedItem(a.ItemID)
			if inst.Revision() != before {
				d.touch(inst)
			}
		}

	case behavior.ActGiveGold:
		inv.AddMoney(d.player, a.Amount)

	case behavior.ActTakeGold:
		if !inv.RemoveMoney(d.player, a.Amount) {
			return false, fmt.Errorf("%w: need %d", ErrInsufficientFunds, a.Amount)
		}

	case behavior.ActGiveXP:
		inv.GrantXP(d.player, a.Amount)

	case behavior.ActOfferQuest:
		def, err := d.qualify(qt)
		if err != nil {
			return false, err
		}
		if n, ok := d.set.NPCs.Get(npcID); ok {
			n.AddObserver(d.player)
		}
		text := a.Text
		if text == "" {
			text = def.Description
		}
		d.e.dialogue.SendQuestOffer(npcID, d.player, qt, d.expand(text))

	case behavior.ActGiveQuest:
		def, err := d.qualify(qt)
		if err != nil {
			return false, err
		}
		return false, d.start(def, npcID)

	case behavior.ActIncQuestStep:
		inst, err := d.active(qt)
		if err != nil {
			return false, err
		}
		if err := inst.IncStep(); err != nil {
			return false, err
		}
		d.touch(inst)

	case behavior.ActAdvanceGoal:
		inst, err := d.active(qt)
		if err != nil {
			return false, err
		}
		changed, err := inst.AdvanceGoal(a.Goal)
		if err != nil {
			return false, err
		}
		if changed {
			d.touch(inst)
		}

	case behavior.ActFinishQuest:
		return true, d.finish(qt)

	case behavior.ActAbortQuest:
		return false, d.abort(qt, a.Text)

	case behavior.ActTeleport:
		if d.e.movement != nil {
			d.e.movement.Teleport(d.player, a.Location)
		}

	default:
		return false, fmt.Errorf("unknown action %s", a.Kind)
	}
	return false, nil
}

// expand fills the {player} placeholder in dialogue text
func (d *dispatch) expand(text string) string {
	return strings.ReplaceAll(text, "{player}", d.player)
}

// qualify checks that the player may take questType
func (d *dispatch) qualify(questType string) (*quest.Definition, error) {
	def, ok := d.set.Quests.Get(questType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuest, questType)
	}
	if q := def.Qualify(d.info(), d.log); q != quest.Qualified {
		return def, fmt.Errorf("%w: %s: %s", ErrNotQualified, questType, q)
	}
	return def, nil
}

func (d *dispatch) active(questType string) (*quest.Instance, error) {
	inst, ok := d.log.Active(questType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveQuest, questType)
	}
	return inst, nil
}

// start creates a new active instance of def
func (d *dispatch) start(def *quest.Definition, npcID string) error {
	inst, err := d.log.Start(def)
	if err != nil {
		if errors.Is(err, quest.ErrAlreadyActive) {
			return fmt.Errorf("%w: %v", quest.ErrInvalidTransition, err)
		}
		return err
	}
	d.touch(inst)
	d.unobserve(npcID)
	d.e.logger.Info("Quest accepted",
		"player_id", d.player,
		"quest", def.ID,
		"instance_id", inst.ID(),
		"npc_id", npcID)
	return nil
}

// finish completes a quest. Quests with optional rewards stay active and
// await the player's choice; the rest finish immediately.
func (d *dispatch) finish(questType string) error {
	inst, err := d.active(questType)
	if err != nil {
		return err
	}
	def, ok := d.set.Quests.Get(questType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuest, questType)
	}

	if def.HasOptionalRewards() {
		wasAwaiting := inst.AwaitingReward()
		if err := inst.MarkAwaitingReward(); err != nil {
			return err
		}
		if !wasAwaiting {
			d.touch(inst)
		}
		d.e.dialogue.SendRewardChoice(d.player, def.ID, reward.Options(def), def.ChooseCount)
		return nil
	}

	granted, err := reward.Complete(inst, def, d.e.inventory)
	if err != nil {
		return err
	}
	d.completed(inst, def, granted)
	return nil
}

// completed files a finished instance and takes back the quest's props
func (d *dispatch) completed(inst *quest.Instance, def *quest.Definition, granted reward.Granted) {
	d.touch(inst)
	if err := d.log.Close(inst); err != nil {
		d.fail(classify(err), "", def.ID, err)
	}
	for _, item := range def.QuestItems {
		d.e.inventory.RemoveItem(d.player, item)
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}
	d.e.dialogue.SendSystemMessage(d.player, fmt.Sprintf("Quest complete: %s", name))
	logger.Audit("Quest finished",
		"player_id", d.player,
		"quest", def.ID,
		"instance_id", inst.ID(),
		"items", granted.Items,
		"xp", granted.XP,
		"gold", granted.Gold,
		"completions", inst.CompletedCount())
}

// abort abandons questType, taking back the props granted during it.
// Money and experience already given are kept.
func (d *dispatch) abort(questType, text string) error {
	inst, err := d.active(questType)
	if err != nil {
		return err
	}
	items, err := inst.Abort()
	if err != nil {
		return err
	}
	d.touch(inst)

	sort.Strings(items)
	for _, item := range items {
		if !d.e.inventory.RemoveItem(d.player, item) {
			d.e.logger.Debug("Quest item already gone", "player_id", d.player, "quest", questType, "item", item)
		}
	}
	if err := d.log.Close(inst); err != nil {
		return err
	}

	if text == "" {
		name := questType
		if def, ok := d.set.Quests.Get(questType); ok && def.Name != "" {
			name = def.Name
		}
		text = fmt.Sprintf("You abandon %s.", name)
	}
	d.e.dialogue.SendSystemMessage(d.player, d.expand(text))
	d.e.logger.Info("Quest aborted", "player_id", d.player, "quest", questType, "items_removed", len(items))
	return nil
}
