package content

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
)

const npcsYAML = `npcs:
  warden:
    name: Warden Hollis
    location: graveyard_gate
    gives_quests: [bone_collector]
    turn_in_quests: [bone_collector]
vars:
  realm: albion
`

const questsYAML = `quests:
  bone_collector:
    name: Bone Collector
    giver_npc: warden
    turn_in_npc: warden
    min_level: 1
    max_level: 5
    goals:
      - kind: kill
        target: skeleton
        required: 2
    rewards:
      experience: 100
      gold: 25
      options:
        - item: iron_sword
        - item: oak_shield
    quest_items: [warden_token]
    rules:
      - trigger: {kind: interact}
        requirements:
          - {kind: quest_givable}
        actions:
          - {kind: offer_quest, text: "Will you help?"}
      - trigger: {kind: give_item, payload: warden_token}
        requirements:
          - {kind: quest_goal_achieved}
          - {kind: custom, script: "ctx.level >= 1"}
        actions:
          - {kind: finish_quest}
rules:
  - trigger: {kind: area_enter, source: crypt}
    actions:
      - {kind: talk, text: "A chill runs down your spine."}
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"npcs.yaml":            npcsYAML,
		"quests/graveyard.yml": questsYAML,
		"quests/notes.txt":     "ignored",
	})

	set, ve, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(ve.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", ve.Warnings)
	}

	if set.Quests.Count() != 1 || set.Rules.Len() != 3 || set.NPCs.Len() != 1 {
		t.Fatalf("counts quests=%d rules=%d npcs=%d", set.Quests.Count(), set.Rules.Len(), set.NPCs.Len())
	}
	if v, ok := set.Var("realm"); !ok || v != "albion" {
		t.Errorf("Var(realm) = %q, %v", v, ok)
	}
	if set.Digest == "" {
		t.Error("Digest not set")
	}

	rules := set.Rules.Rules()
	if rules[0].ID != "bone_collector.1" || rules[0].Owner != "warden" || rules[0].QuestType != "bone_collector" {
		t.Errorf("quest rule defaults not applied: %+v", rules[0])
	}
	if rules[0].Trigger.Source != "warden" {
		t.Errorf("interact trigger not bound to owner: %q", rules[0].Trigger.Source)
	}
	if !strings.HasPrefix(rules[2].ID, "graveyard.global.") {
		t.Errorf("global rule id = %q", rules[2].ID)
	}

	ev := event.New(event.KindGiveItem, "aria", "warden", "warden_token")
	if got := set.Rules.Candidates(ev); len(got) != 1 || got[0].ID != "bone_collector.2" {
		t.Errorf("Candidates(give_item) = %v", got)
	}
	if got := set.Rules.Candidates(ev); got[0].Requirements[1].Predicate == nil {
		t.Error("custom requirement not compiled")
	}
}

func TestLoadDirValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown giver",
			yaml: `npcs:
  priest: {name: Priest}
quests:
  q: {giver_npc: warden}
`,
			wantErr: `giver "warden" is not a known npc`,
		},
		{
			name: "npc gives unknown quest",
			yaml: `npcs:
  warden: {gives_quests: [missing]}
`,
			wantErr: `quest "missing" is not defined`,
		},
		{
			name: "rule refers to unknown quest",
			yaml: `rules:
  - id: r
    trigger: {kind: interact}
    actions:
      - {kind: give_quest, quest: nowhere}
`,
			wantErr: `unknown quest "nowhere"`,
		},
		{
			name: "whisper without keyword",
			yaml: `rules:
  - id: r
    trigger: {kind: whisper}
    actions:
      - {kind: talk, text: hi}
`,
			wantErr: "whisper trigger needs a keyword",
		},
		{
			name: "choose above options",
			yaml: `quests:
  q:
    rewards:
      choose: 3
      options: [{item: a}]
`,
			wantErr: "choose 3 of 1 options",
		},
		{
			name: "bad script",
			yaml: `rules:
  - id: r
    trigger: {kind: interact}
    requirements:
      - {kind: custom, script: "ctx.level >="}
    actions:
      - {kind: talk, text: hi}
`,
			wantErr: "requirement 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, ve, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if set != nil {
				t.Error("set returned alongside errors")
			}
			if ve == nil || !strings.Contains(strings.Join(ve.Errors, "\n"), tt.wantErr) {
				t.Errorf("errors %v do not mention %q", ve, tt.wantErr)
			}
		})
	}
}

func TestParseWarnings(t *testing.T) {
	_, ve, err := Parse([]byte(`quests:
  q:
    goals:
      - {kind: scout, target: crypt, required: 1}
    rules:
      - trigger: {kind: area_enter, source: crypt}
        actions:
          - {kind: finish_quest}
          - {kind: talk, text: "too late"}
`), []byte(`quests:
  r:
    goals:
      - {kind: kill, required: 1}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	warnings := strings.Join(ve.Warnings, "\n")
	if !strings.Contains(warnings, "unreachable") {
		t.Errorf("missing unreachable warning: %v", ve.Warnings)
	}
	if !strings.Contains(warnings, "quest r: no rule finishes it") {
		t.Errorf("missing finisher warning: %v", ve.Warnings)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, _, err := Parse([]byte("quests: [")); err == nil {
		t.Error("invalid YAML accepted")
	}
}

func TestDigestChanges(t *testing.T) {
	dir := writeFiles(t, map[string]string{"npcs.yaml": npcsYAML})

	first, err := Digest(dir)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := Digest(dir)
	if first != again {
		t.Error("digest is not stable")
	}

	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("vars: {a: b}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, _ := Digest(dir)
	if changed == first {
		t.Error("digest did not change after adding a file")
	}
}

type recordingSink struct {
	mu   sync.Mutex
	sets []*Set
}

func (s *recordingSink) SetContent(set *Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, set)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

func TestReloaderCheck(t *testing.T) {
	dir := writeFiles(t, map[string]string{"npcs.yaml": npcsYAML, "quests.yaml": questsYAML})
	initial, _, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	r := NewReloader(dir, time.Hour, sink, initial.Digest, logger.Default())

	if changed, err := r.Check(); err != nil || changed {
		t.Fatalf("unchanged dir: changed=%v err=%v", changed, err)
	}

	// A broken edit is reported and the sink keeps its content.
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("npcs:\n  ghost: {gives_quests: [nope]}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if changed, err := r.Check(); err == nil || changed {
		t.Fatalf("broken dir: changed=%v err=%v", changed, err)
	}
	if sink.count() != 0 {
		t.Fatal("broken content installed")
	}

	if err := os.Remove(filepath.Join(dir, "broken.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vars.yaml"), []byte("vars: {season: winter}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := r.Check()
	if err != nil || !changed {
		t.Fatalf("edited dir: changed=%v err=%v", changed, err)
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d sets, want 1", sink.count())
	}
	if v, _ := sink.sets[0].Var("season"); v != "winter" {
		t.Errorf("reloaded set missing new var, got %q", v)
	}
}

func TestNewSetDefaults(t *testing.T) {
	set := NewSet(nil, nil, nil, nil)
	if set.Quests.Count() != 0 || set.Rules.Len() != 0 || set.NPCs.Len() != 0 {
		t.Error("empty set is not empty")
	}
	if err := set.Rules.Register(behavior.Rule{}); err != behavior.ErrRegistryFrozen {
		t.Errorf("Register on frozen set = %v", err)
	}
}

func TestShippedContentLoads(t *testing.T) {
	set, ve, err := LoadDir(filepath.Join("..", "..", "data", "content"))
	if err != nil {
		t.Fatalf("shipped content invalid: %v", err)
	}
	if ve != nil && len(ve.Warnings) > 0 {
		t.Errorf("shipped content warnings: %v", ve.Warnings)
	}
	for _, id := range []string{"bone_collector", "lantern_run", "grave_goods"} {
		if _, ok := set.Quests.Get(id); !ok {
			t.Errorf("quest %s missing", id)
		}
	}
}
