package npc

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestQuestLists(t *testing.T) {
	n := New("warden", "Warden Hollis")
	n.GivesQuests = []string{"bone_collector"}
	n.TurnInQuests = []string{"bone_collector", "crypt_lord"}

	tests := []struct {
		name   string
		check  func(string) bool
		quest  string
		expect bool
	}{
		{"gives listed quest", n.CanGiveQuest, "bone_collector", true},
		{"does not give turn-in only quest", n.CanGiveQuest, "crypt_lord", false},
		{"accepts turn-in", n.CanTurnInQuest, "crypt_lord", true},
		{"rejects unknown turn-in", n.CanTurnInQuest, "wolf_pelts", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.quest); got != tt.expect {
				t.Errorf("got %v, want %v", got, tt.expect)
			}
		})
	}

	if !n.HasQuestInteraction() {
		t.Error("HasQuestInteraction() = false")
	}
	if New("bard", "Bard").HasQuestInteraction() {
		t.Error("NPC without quests reports interaction")
	}
}

func TestObservers(t *testing.T) {
	n := New("warden", "Warden Hollis")

	if !n.AddObserver("aria") {
		t.Fatal("first AddObserver returned false")
	}
	if n.AddObserver("aria") {
		t.Error("second AddObserver returned true")
	}
	n.AddObserver("brom")

	if got := n.Observers(); len(got) != 2 || got[0] != "aria" || got[1] != "brom" {
		t.Errorf("Observers() = %v", got)
	}
	if !n.RemoveObserver("aria") {
		t.Error("RemoveObserver of observer returned false")
	}
	if n.RemoveObserver("aria") {
		t.Error("RemoveObserver twice returned true")
	}
	if n.IsObserving("aria") || !n.IsObserving("brom") {
		t.Error("IsObserving out of sync")
	}
}

func TestObserversZeroValue(t *testing.T) {
	var n NPC
	if !n.AddObserver("aria") {
		t.Error("AddObserver on zero NPC failed")
	}
}

func TestPruneObservers(t *testing.T) {
	n := New("warden", "Warden Hollis")
	n.AddObserver("aria")
	n.observers["stale"] = time.Now().Add(-time.Hour)

	if dropped := n.PruneObservers(time.Minute); dropped != 1 {
		t.Errorf("PruneObservers dropped %d, want 1", dropped)
	}
	if n.IsObserving("stale") || !n.IsObserving("aria") {
		t.Error("wrong observer pruned")
	}
}

func TestConcurrentObservers(t *testing.T) {
	n := New("stable_master", "Stable Master")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := string(rune('A' + i%26))
			n.AddObserver(player)
			n.IsObserving(player)
			n.RemoveObserver(player)
			n.AddObserver(player)
		}(i)
	}
	wg.Wait()

	if got := len(n.Observers()); got != 26 {
		t.Errorf("len(Observers()) = %d, want 26", got)
	}
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	a := New("warden", "Warden Hollis")
	a.GivesQuests = []string{"bone_collector"}
	b := New("priest", "Priest Ana")
	b.GivesQuests = []string{"bone_collector", "crypt_lord"}

	if err := d.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(New("warden", "Other")); err == nil {
		t.Error("duplicate id accepted")
	}
	if err := d.Add(New("", "Nameless")); err == nil {
		t.Error("empty id accepted")
	}

	if got := d.GiversOf("bone_collector"); len(got) != 2 || got[0] != "priest" {
		t.Errorf("GiversOf = %v", got)
	}
	if _, ok := d.Get("warden"); !ok || d.Len() != 2 {
		t.Error("Get/Len mismatch")
	}
}

func TestCarryObservers(t *testing.T) {
	prev := NewDirectory()
	old := New("warden", "Warden Hollis")
	old.AddObserver("aria")
	prev.Add(old)

	next := NewDirectory()
	fresh := New("warden", "Warden Hollis")
	next.Add(fresh)
	next.Add(New("priest", "Priest Ana"))

	next.CarryObservers(prev)
	next.CarryObservers(nil)

	if !fresh.IsObserving("aria") {
		t.Error("observer not carried over")
	}
}

func TestLoadNPCsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npcs.yaml")
	data := `npcs:
  warden:
    name: Warden Hollis
    location: graveyard_gate
    dialogue:
      - "The dead do not rest here."
    gives_quests: [bone_collector]
    turn_in_quests: [bone_collector]
  priest:
    quest_giver: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadNPCsFromYAML(path)
	if err != nil {
		t.Fatalf("LoadNPCsFromYAML: %v", err)
	}
	if cfg.NPCs["priest"].Name != "priest" {
		t.Errorf("missing name not defaulted: %q", cfg.NPCs["priest"].Name)
	}

	d := NewDirectory()
	if err := cfg.AddToDirectory(d); err != nil {
		t.Fatal(err)
	}
	w, ok := d.Get("warden")
	if !ok {
		t.Fatal("warden not loaded")
	}
	if w.Location != "graveyard_gate" || !w.CanGiveQuest("bone_collector") {
		t.Errorf("warden = %+v", w)
	}
	if w.GetDialogue() != "The dead do not rest here." {
		t.Errorf("GetDialogue() = %q", w.GetDialogue())
	}
}

func TestLoadNPCsFromYAMLErrors(t *testing.T) {
	if _, err := LoadNPCsFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := ParseNPCs([]byte("npcs: [")); err == nil {
		t.Error("invalid YAML accepted")
	}
}
