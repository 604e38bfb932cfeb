package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/config"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/content"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/ledger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/reward"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/store"
)

const graveyard = `npcs:
  warden:
    name: Warden Hollis
    gives_quests: [bone_collector, lantern_run]
    turn_in_quests: [bone_collector]
vars:
  season: winter
quests:
  bone_collector:
    name: Bone Collector
    giver_npc: warden
    turn_in_npc: warden
    min_level: 1
    max_level: 5
    goals:
      - {kind: kill, target: skeleton, required: 2}
    rewards:
      experience: 50
      gold: 10
      choose: 1
      options:
        - {item: iron_sword}
        - {item: oak_shield}
        - {item: healing_draught}
    quest_items: [warden_token]
    rules:
      - id: offer
        trigger: {kind: interact}
        requirements:
          - {kind: quest_givable}
        actions:
          - {kind: offer_quest, text: "The dead walk, {player}."}
      - id: briefing
        trigger: {kind: whisper, payload: bones}
        requirements:
          - {kind: quest_step, value: 1}
        actions:
          - {kind: talk, text: "Bring me proof."}
          - {kind: inc_quest_step}
      - id: proof
        trigger: {kind: enemy_killed, payload: skeleton}
        requirements:
          - {kind: quest_step, value: 2}
          - {kind: quest_goal_achieved}
        actions:
          - {kind: give_item, item: warden_token, quest_prop: true}
          - {kind: inc_quest_step}
      - id: turn_in
        trigger: {kind: give_item, payload: warden_token}
        requirements:
          - {kind: quest_step, value: 3}
          - {kind: quest_goal_achieved}
        actions:
          - {kind: remove_item, item: warden_token}
          - {kind: finish_quest}
  lantern_run:
    name: Lantern Run
    giver_npc: warden
    goals:
      - {kind: scout, target: crypt, required: 1}
    rewards:
      experience: 20
    quest_items: [lantern]
    rules:
      - id: lantern_start
        trigger: {kind: whisper, payload: lantern}
        requirements:
          - {kind: quest_givable}
        actions:
          - {kind: give_quest}
          - {kind: give_item, item: lantern, quest_prop: true}
          - {kind: give_gold, amount: 5}
          - {kind: give_xp, amount: 10}
      - id: lantern_done
        trigger: {kind: area_enter, source: crypt}
        requirements:
          - {kind: quest_goal_achieved}
        actions:
          - {kind: finish_quest}
      - id: lantern_abandon
        trigger: {kind: whisper, payload: abandon}
        requirements:
          - {kind: quest_pending}
        actions:
          - {kind: abort_quest}
rules:
  - id: toll
    trigger: {kind: interact, source: gatekeeper}
    actions:
      - {kind: take_gold, amount: 1000}
      - {kind: talk, text: "You may pass."}
  - id: greet
    trigger: {kind: interact, source: gatekeeper}
    actions:
      - {kind: talk, text: "Halt."}
  - id: shrine
    trigger: {kind: interact, source: shrine}
    requirements:
      - {kind: custom, script: 'ctx.var("season") == "winter" and ctx.level >= 2'}
    actions:
      - {kind: talk, text: "The shrine glows."}
  - id: altar
    trigger: {kind: interact, source: altar}
    requirements:
      - {kind: custom, script: "ctx.missing.field == 1"}
    actions:
      - {kind: talk, text: "unreachable"}
  - id: well
    trigger: {kind: interact, source: well}
    requirements:
      - {kind: custom, script: "visits = (visits or 0) + 1 return visits == 1"}
    actions:
      - {kind: talk, text: "The well is still."}
`

type choiceMsg struct {
	player  string
	quest   string
	options []quest.RewardOption
	choose  int
}

// recorder is a Dialogue that keeps everything it is asked to send
type recorder struct {
	mu      sync.Mutex
	talks   []string
	offers  []string
	choices []choiceMsg
	system  []string
}

func (r *recorder) SendTalk(npcID, playerID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.talks = append(r.talks, text)
}

func (r *recorder) SendQuestOffer(npcID, playerID, questType, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, questType+": "+text)
}

func (r *recorder) SendRewardChoice(playerID, questType string, options []quest.RewardOption, choose int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choices = append(r.choices, choiceMsg{playerID, questType, options, choose})
}

func (r *recorder) SendSystemMessage(playerID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system = append(r.system, text)
}

func (r *recorder) Talks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.talks...)
}

func (r *recorder) System() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.system...)
}

type harness struct {
	engine   *Engine
	ledger   *ledger.Ledger
	store    *store.MemoryStore
	dialogue *recorder
}

type harnessOption func(*Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	set, _, err := content.Parse([]byte(graveyard))
	require.NoError(t, err)

	h := &harness{
		ledger:   ledger.New(),
		store:    store.NewMemoryStore(),
		dialogue: &recorder{},
	}
	saver := store.NewSaver(h.store, config.SaverConfig{Workers: 2, QueueSize: 32, MaxRetries: 1}, logger.Default())

	o := Options{
		Content:   set,
		Loader:    h.store,
		Persister: saver,
		Inventory: h.ledger,
		Dialogue:  h.dialogue,
		Movement:  h.ledger,
		Players:   h.ledger,
		Config:    config.DispatchConfig{MailboxSize: 8},
		Logger:    logger.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	h.engine, err = New(o)
	require.NoError(t, err)
	t.Cleanup(func() {
		h.engine.Close()
		saver.Close()
	})
	return h
}

func (h *harness) send(t *testing.T, kind event.Kind, player, source, payload string) Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := h.engine.Dispatch(ctx, event.New(kind, player, source, payload))
	require.NoError(t, err)
	return rep
}

func (h *harness) record(t *testing.T, player, questType string) (quest.Record, bool) {
	t.Helper()
	records, err := h.engine.QuestLog(context.Background(), player)
	require.NoError(t, err)
	for _, rec := range records {
		if rec.QuestType == questType {
			return rec, true
		}
	}
	return quest.Record{}, false
}

func TestScenarioAcceptAndIgnoreUnrelatedWhisper(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	rep := h.send(t, event.KindInteract, "aria", "warden", "")
	assert.Equal(t, []string{"offer"}, rep.Fired)
	warden, _ := h.engine.Content().NPCs.Get("warden")
	assert.True(t, warden.IsObserving("aria"))

	rep = h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	assert.Empty(t, rep.Failures)
	assert.False(t, warden.IsObserving("aria"))

	rec, ok := h.record(t, "aria", "bone_collector")
	require.True(t, ok)
	assert.Equal(t, quest.StatusActive, rec.Status)
	assert.Equal(t, 1, rec.Step)
	assert.Equal(t, []quest.GoalProgress{{Current: 0, Target: 2}}, rec.Goals)

	rep = h.send(t, event.KindWhisper, "aria", "warden", "weather")
	assert.Empty(t, rep.Fired)
	rec, _ = h.record(t, "aria", "bone_collector")
	assert.Equal(t, 1, rec.Step)
}

func TestScenarioKillGrantsQuestProp(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	rep := h.send(t, event.KindWhisper, "aria", "warden", "BONES")
	assert.Equal(t, []string{"briefing"}, rep.Fired)
	assert.Contains(t, h.dialogue.Talks(), "Bring me proof.")

	rep = h.send(t, event.KindEnemyKilled, "aria", "mob-1", "Skeleton Warrior")
	assert.Empty(t, rep.Fired)
	rec, _ := h.record(t, "aria", "bone_collector")
	assert.Equal(t, 1, rec.Goals[0].Current)

	rep = h.send(t, event.KindEnemyKilled, "aria", "mob-2", "skeleton archer")
	assert.Equal(t, []string{"proof"}, rep.Fired)
	rec, _ = h.record(t, "aria", "bone_collector")
	assert.Equal(t, 2, rec.Goals[0].Current)
	assert.Equal(t, 3, rec.Step)
	assert.Equal(t, []string{"warden_token"}, rec.GrantedItems)
	assert.Equal(t, 1, h.ledger.CountItem("aria", "warden_token"))

	// Further kills are clamped and the proof rule does not fire again.
	rep = h.send(t, event.KindEnemyKilled, "aria", "mob-3", "Skeleton")
	assert.Empty(t, rep.Fired)
	rec, _ = h.record(t, "aria", "bone_collector")
	assert.Equal(t, 2, rec.Goals[0].Current)
	assert.Equal(t, 1, h.ledger.CountItem("aria", "warden_token"))
}

func TestScenarioTurnInAndChooseReward(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindWhisper, "aria", "warden", "bones")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")

	rep := h.send(t, event.KindGiveItem, "aria", "warden", "warden_token")
	assert.Equal(t, []string{"turn_in"}, rep.Fired)
	assert.Empty(t, rep.Failures)
	require.Len(t, h.dialogue.choices, 1)
	assert.Len(t, h.dialogue.choices[0].options, 3)
	assert.Equal(t, 1, h.dialogue.choices[0].choose)
	assert.Equal(t, 0, h.ledger.CountItem("aria", "warden_token"))

	rec, _ := h.record(t, "aria", "bone_collector")
	assert.Equal(t, quest.StatusActive, rec.Status)
	assert.True(t, rec.AwaitingReward)

	rep = h.send(t, event.KindChooseReward, "aria", "warden", "1")
	assert.Empty(t, rep.Failures)
	assert.Equal(t, 1, h.ledger.CountItem("aria", "oak_shield"))
	assert.Equal(t, 0, h.ledger.CountItem("aria", "iron_sword"))
	p, _ := h.ledger.Player("aria")
	assert.Equal(t, ledger.XPForLevel(3)+50, p.XP)
	assert.Equal(t, 10, p.Gold)

	rec, _ = h.record(t, "aria", "bone_collector")
	assert.Equal(t, quest.StatusFinished, rec.Status)
	assert.Equal(t, 1, rec.CompletedCount)

	rep = h.send(t, event.KindChooseReward, "aria", "warden", "1")
	assert.True(t, rep.Failed(FailInvalidTransition))
	assert.Equal(t, 1, h.ledger.CountItem("aria", "oak_shield"))

	_, err := h.engine.ResolveChoice(context.Background(), "aria", "bone_collector", 1)
	assert.ErrorIs(t, err, quest.ErrInvalidTransition)

	// Finished and not repeatable: the giver no longer offers it.
	rep = h.send(t, event.KindInteract, "aria", "warden", "")
	assert.Empty(t, rep.Fired)
}

func TestChooseRewardInvalidIndex(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindWhisper, "aria", "warden", "bones")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	h.send(t, event.KindGiveItem, "aria", "warden", "warden_token")

	_, err := h.engine.ResolveChoice(context.Background(), "aria", "bone_collector", 7)
	assert.ErrorIs(t, err, reward.ErrInvalidChoice)

	rep := h.send(t, event.KindChooseReward, "aria", "warden", "bone_collector:x")
	assert.True(t, rep.Failed(FailAction))
	assert.Contains(t, h.dialogue.System(), "That is not a valid reward choice.")

	granted, err := h.engine.ResolveChoice(context.Background(), "aria", "bone_collector", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"healing_draught"}, granted.Items)
}

func TestChooseRewardBeforeTurnIn(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	// Goals met, but the briefing and turn-in rules never ran.
	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")

	rep := h.send(t, event.KindChooseReward, "aria", "warden", "bone_collector:0")
	assert.Empty(t, rep.Fired)
	assert.True(t, rep.Failed(FailInvalidTransition))

	_, err := h.engine.ResolveChoice(context.Background(), "aria", "bone_collector", 0)
	assert.ErrorIs(t, err, quest.ErrInvalidTransition)

	rec, ok := h.record(t, "aria", "bone_collector")
	require.True(t, ok)
	assert.Equal(t, quest.StatusActive, rec.Status)
	assert.Equal(t, 1, rec.Step)
	assert.False(t, rec.AwaitingReward)
	assert.Equal(t, 0, h.ledger.CountItem("aria", "iron_sword"))
	p, _ := h.ledger.Player("aria")
	assert.Equal(t, ledger.XPForLevel(3), p.XP)
	assert.Empty(t, h.dialogue.System())
}

// resident reports whether the engine holds a session or quest log for player
func resident(e *Engine, player string) (session, log bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, session = e.sessions[player]
	_, log = e.logs[player]
	return session, log
}

func TestIdleSessionReleasesQuestLog(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.IdleSeconds = 1 })
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	_, log := resident(h.engine, "aria")
	require.True(t, log)

	assert.Eventually(t, func() bool {
		session, log := resident(h.engine, "aria")
		return !session && !log
	}, 5*time.Second, 50*time.Millisecond)

	// Saves were flushed before the log was dropped.
	stored, ok, err := h.store.Load(context.Background(), "aria", "bone_collector")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, stored.Goals[0].Current)

	// The next event hydrates from the store and carries on.
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	rec, ok := h.record(t, "aria", "bone_collector")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Goals[0].Current)
	assert.Greater(t, rec.Revision, stored.Revision)
}

// reorderingPersister saves queued records newest first on Flush, the worst
// order an async save path can produce
type reorderingPersister struct {
	mu     sync.Mutex
	store  *store.MemoryStore
	queued []quest.Record
	stale  int
}

func (p *reorderingPersister) Enqueue(ctx context.Context, rec quest.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, rec)
	return nil
}

func (p *reorderingPersister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.queued) - 1; i >= 0; i-- {
		err := p.store.Save(ctx, p.queued[i])
		if errors.Is(err, store.ErrStaleRevision) {
			p.stale++
			continue
		}
		if err != nil {
			return err
		}
	}
	p.queued = nil
	return nil
}

func TestScenarioOutOfOrderSaves(t *testing.T) {
	mem := store.NewMemoryStore()
	persister := &reorderingPersister{store: mem}
	h := newHarness(t, func(o *Options) {
		o.Loader = mem
		o.Persister = persister
	})
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")
	h.send(t, event.KindEnemyKilled, "aria", "", "skeleton")

	require.NoError(t, h.engine.Evict(context.Background(), "aria"))
	assert.Equal(t, 2, persister.stale)

	stored, ok, err := mem.Load(context.Background(), "aria", "bone_collector")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, stored.Goals[0].Current)
	assert.Equal(t, uint64(3), stored.Revision)

	// The reloaded log sees the same progress.
	rec, ok := h.record(t, "aria", "bone_collector")
	require.True(t, ok)
	assert.Equal(t, 2, rec.Goals[0].Current)
}

func TestConcurrentSaverKeepsNewestProgress(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	for i := 0; i < 2; i++ {
		require.NoError(t, h.engine.Submit(event.New(event.KindEnemyKilled, "aria", "", "skeleton")))
	}
	require.NoError(t, h.engine.Evict(context.Background(), "aria"))

	stored, ok, err := h.store.Load(context.Background(), "aria", "bone_collector")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, stored.Goals[0].Current)
}

func TestAcceptActiveQuestIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	h.send(t, event.KindWhisper, "aria", "warden", "bones")
	before, _ := h.record(t, "aria", "bone_collector")

	rep := h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	assert.True(t, rep.Failed(FailQualification))

	after, _ := h.record(t, "aria", "bone_collector")
	assert.Equal(t, before.InstanceID, after.InstanceID)
	assert.Equal(t, before.Step, after.Step)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestQualificationIsSilent(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("veteran", 9, "warrior")

	rep := h.send(t, event.KindAcceptQuest, "veteran", "warden", "bone_collector")
	assert.True(t, rep.Failed(FailQualification))
	assert.Empty(t, h.dialogue.System())
	_, ok := h.record(t, "veteran", "bone_collector")
	assert.False(t, ok)

	rep = h.send(t, event.KindInteract, "veteran", "warden", "")
	assert.Empty(t, rep.Fired)
}

func TestAcceptRequiresGiver(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	for _, source := range []string{"", "mimic", "gatekeeper"} {
		rep := h.send(t, event.KindAcceptQuest, "aria", source, "bone_collector")
		assert.True(t, rep.Failed(FailQualification), "source %q", source)
		_, ok := h.record(t, "aria", "bone_collector")
		assert.False(t, ok, "accepted from %q", source)
	}
	assert.Empty(t, h.dialogue.System())

	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")
	rec, ok := h.record(t, "aria", "bone_collector")
	require.True(t, ok)
	assert.Equal(t, quest.StatusActive, rec.Status)
}

func TestStepIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")
	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")

	rng := rand.New(rand.NewSource(7))
	events := []struct {
		kind    event.Kind
		source  string
		payload string
	}{
		{event.KindWhisper, "warden", "bones"},
		{event.KindWhisper, "warden", "hello"},
		{event.KindEnemyKilled, "", "skeleton"},
		{event.KindEnemyKilled, "", "wolf"},
		{event.KindInteract, "warden", ""},
		{event.KindAreaEnter, "crypt", ""},
	}

	last := 1
	for i := 0; i < 40; i++ {
		ev := events[rng.Intn(len(events))]
		h.send(t, ev.kind, "aria", ev.source, ev.payload)
		rec, ok := h.record(t, "aria", "bone_collector")
		require.True(t, ok)
		if rec.Status != quest.StatusActive {
			break
		}
		require.GreaterOrEqual(t, rec.Step, last, "step went backwards after %s", ev.kind)
		last = rec.Step
	}
}

func TestAbortKeepsMoneyAndExperience(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	rep := h.send(t, event.KindWhisper, "aria", "warden", "lantern")
	assert.Equal(t, []string{"lantern_start"}, rep.Fired)
	assert.Equal(t, 1, h.ledger.CountItem("aria", "lantern"))

	rep = h.send(t, event.KindWhisper, "aria", "warden", "abandon")
	assert.Equal(t, []string{"lantern_abandon"}, rep.Fired)
	assert.Equal(t, 0, h.ledger.CountItem("aria", "lantern"))
	p, _ := h.ledger.Player("aria")
	assert.Equal(t, 5, p.Gold)
	assert.Equal(t, ledger.XPForLevel(3)+10, p.XP)
	assert.Contains(t, h.dialogue.System(), "You abandon Lantern Run.")

	rec, _ := h.record(t, "aria", "lantern_run")
	assert.Equal(t, quest.StatusAborted, rec.Status)

	// An aborted quest may be taken again.
	rep = h.send(t, event.KindWhisper, "aria", "warden", "lantern")
	assert.Equal(t, []string{"lantern_start"}, rep.Fired)
	again, _ := h.record(t, "aria", "lantern_run")
	assert.Equal(t, quest.StatusActive, again.Status)
	assert.Greater(t, again.Revision, rec.Revision)
}

func TestFinishWithoutOptionalRewards(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	h.send(t, event.KindWhisper, "aria", "warden", "lantern")
	rep := h.send(t, event.KindAreaEnter, "aria", "crypt", "")
	assert.Equal(t, []string{"lantern_done"}, rep.Fired)

	rec, _ := h.record(t, "aria", "lantern_run")
	assert.Equal(t, quest.StatusFinished, rec.Status)
	assert.Equal(t, 0, h.ledger.CountItem("aria", "lantern"))
	p, _ := h.ledger.Player("aria")
	assert.Equal(t, ledger.XPForLevel(3)+30, p.XP)
	assert.Contains(t, h.dialogue.System(), "Quest complete: Lantern Run")

	rep = h.send(t, event.KindWhisper, "aria", "warden", "lantern")
	assert.Empty(t, rep.Fired)
}

func TestFailingActionStopsOnlyItsRule(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	rep := h.send(t, event.KindInteract, "aria", "gatekeeper", "")
	assert.Equal(t, []string{"toll", "greet"}, rep.Fired)
	require.True(t, rep.Failed(FailAction))
	assert.ErrorIs(t, rep.Failures[0], ErrInsufficientFunds)

	talks := h.dialogue.Talks()
	assert.Contains(t, talks, "Halt.")
	assert.NotContains(t, talks, "You may pass.")
	assert.Contains(t, h.dialogue.System(), "You cannot afford that.")
}

func TestStrictDispatch(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.Strict = true })
	h.ledger.AddPlayer("aria", 3, "warrior")
	h.ledger.AddMoney("aria", 2000)

	rep := h.send(t, event.KindInteract, "aria", "gatekeeper", "")
	assert.Equal(t, []string{"toll"}, rep.Fired)
	assert.Equal(t, []string{"You may pass."}, h.dialogue.Talks())
}

func TestCustomPredicates(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("novice", 1, "mage")
	h.ledger.AddPlayer("adept", 4, "mage")

	rep := h.send(t, event.KindInteract, "novice", "shrine", "")
	assert.Empty(t, rep.Fired)
	rep = h.send(t, event.KindInteract, "adept", "shrine", "")
	assert.Equal(t, []string{"shrine"}, rep.Fired)

	rep = h.send(t, event.KindInteract, "adept", "altar", "")
	assert.Empty(t, rep.Fired)
	assert.True(t, rep.Failed(FailRuleEvaluation))
}

func TestCustomPredicatesKeepNoState(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")
	h.ledger.AddPlayer("bram", 3, "warrior")

	for _, player := range []string{"aria", "aria", "bram", "aria"} {
		rep := h.send(t, event.KindInteract, player, "well", "")
		assert.Equal(t, []string{"well"}, rep.Fired, "player %s", player)
		assert.Empty(t, rep.Failures)
	}
}

func TestDuplicateEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")
	h.send(t, event.KindAcceptQuest, "aria", "warden", "bone_collector")

	ev := event.New(event.KindEnemyKilled, "aria", "", "skeleton")
	_, err := h.engine.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	rep, err := h.engine.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, rep.Duplicate)

	rec, _ := h.record(t, "aria", "bone_collector")
	assert.Equal(t, 1, rec.Goals[0].Current)
}

type failingLoader struct{ calls int }

func (l *failingLoader) LoadAll(ctx context.Context, playerID string) ([]quest.Record, error) {
	l.calls++
	if l.calls == 1 {
		return nil, errors.New("connection refused")
	}
	return nil, nil
}

func TestHydrationFailureRetried(t *testing.T) {
	loader := &failingLoader{}
	h := newHarness(t, func(o *Options) { o.Loader = loader })
	h.ledger.AddPlayer("aria", 3, "warrior")

	ev := event.New(event.KindAcceptQuest, "aria", "warden", "bone_collector")
	rep, err := h.engine.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, rep.Failed(FailPersistence))

	rep, err = h.engine.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, rep.Duplicate)
	assert.Empty(t, rep.Failures)
	_, ok := h.record(t, "aria", "bone_collector")
	assert.True(t, ok)
}

func TestManyPlayersConcurrently(t *testing.T) {
	h := newHarness(t)
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	for _, p := range players {
		h.ledger.AddPlayer(p, 2, "warrior")
	}

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for _, ev := range []event.Event{
				event.New(event.KindAcceptQuest, p, "warden", "bone_collector"),
				event.New(event.KindWhisper, p, "warden", "bones"),
				event.New(event.KindEnemyKilled, p, "", "skeleton"),
				event.New(event.KindEnemyKilled, p, "", "skeleton"),
			} {
				_, err := h.engine.Dispatch(context.Background(), ev)
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	for _, p := range players {
		rec, ok := h.record(t, p, "bone_collector")
		require.True(t, ok)
		assert.Equal(t, 3, rec.Step, p)
		assert.Equal(t, 1, h.ledger.CountItem(p, "warden_token"), p)
	}
}

func TestSubmitAndClose(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	require.NoError(t, h.engine.Submit(event.New(event.KindAcceptQuest, "aria", "warden", "bone_collector")))
	require.NoError(t, h.engine.Close())

	_, ok, err := h.store.Load(context.Background(), "aria", "bone_collector")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, h.engine.Submit(event.New(event.KindInteract, "aria", "warden", "")), ErrClosed)
	_, err = h.engine.QuestLog(context.Background(), "aria")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.engine.Close())
}

func TestRunConsumesBus(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")

	bus := event.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, bus) }()

	// Publishing before Run subscribes reaches nobody, so keep publishing.
	require.Eventually(t, func() bool {
		if err := bus.Publish(context.Background(), event.New(event.KindAcceptQuest, "aria", "warden", "bone_collector")); err != nil {
			return false
		}
		records, err := h.engine.QuestLog(context.Background(), "aria")
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSetContentCarriesOffers(t *testing.T) {
	h := newHarness(t)
	h.ledger.AddPlayer("aria", 3, "warrior")
	h.send(t, event.KindInteract, "aria", "warden", "")

	next, _, err := content.Parse([]byte(graveyard))
	require.NoError(t, err)
	h.engine.SetContent(next)

	warden, _ := h.engine.Content().NPCs.Get("warden")
	assert.True(t, warden.IsObserving("aria"))
}

func TestNewRequiresInventory(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
