package ledger

import (
	"sync"
	"testing"
)

func TestXPForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{0, 0},
		{1, 0},
		{2, 282},
		{3, 519},
		{5, 1118},
	}
	for _, tt := range tests {
		if got := XPForLevel(tt.level); got != tt.want {
			t.Errorf("XPForLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestGrantXPLevelsUp(t *testing.T) {
	l := New()
	l.AddPlayer("aria", 1, "cleric")

	l.GrantXP("aria", 281)
	if lvl, _, _ := l.Level("aria"); lvl != 1 {
		t.Errorf("level = %d, want 1", lvl)
	}
	l.GrantXP("aria", 1)
	if lvl, _, _ := l.Level("aria"); lvl != 2 {
		t.Errorf("level = %d, want 2", lvl)
	}
	l.GrantXP("aria", 10_000_000)
	if lvl, _, _ := l.Level("aria"); lvl != MaxPlayerLevel {
		t.Errorf("level = %d, want cap %d", lvl, MaxPlayerLevel)
	}
}

func TestAddPlayerStartsAtLevelXP(t *testing.T) {
	l := New()
	l.AddPlayer("brom", 4, "fighter")
	p, ok := l.Player("brom")
	if !ok {
		t.Fatal("player missing")
	}
	if p.XP != XPForLevel(4) || p.Level != 4 {
		t.Errorf("player = %+v", p)
	}

	// A small grant must not drop the level back to what the XP alone implies.
	l.GrantXP("brom", 1)
	if lvl, _, _ := l.Level("brom"); lvl != 4 {
		t.Errorf("level = %d, want 4", lvl)
	}
}

func TestInventoryCapacity(t *testing.T) {
	l := New()
	l.AddPlayer("aria", 1, "cleric")
	if err := l.SetCapacity("aria", 2); err != nil {
		t.Fatal(err)
	}

	if !l.GrantItem("aria", "bone") || !l.GrantItem("aria", "bone") {
		t.Fatal("grant into free slots failed")
	}
	if l.GrantItem("aria", "sword") {
		t.Error("grant into full inventory succeeded")
	}
	if got := l.CountItem("aria", "bone"); got != 2 {
		t.Errorf("CountItem = %d, want 2", got)
	}
	if !l.RemoveItem("aria", "bone") {
		t.Error("RemoveItem of held item failed")
	}
	if l.RemoveItem("aria", "sword") {
		t.Error("RemoveItem of missing item succeeded")
	}
	if !l.GrantItem("aria", "sword") {
		t.Error("grant after removal failed")
	}
}

func TestUnknownPlayer(t *testing.T) {
	l := New()
	if l.GrantItem("ghost", "bone") {
		t.Error("GrantItem for unknown player succeeded")
	}
	if l.RemoveMoney("ghost", 0) {
		t.Error("RemoveMoney for unknown player succeeded")
	}
	if err := l.SetCapacity("ghost", 3); err != ErrUnknownPlayer {
		t.Errorf("SetCapacity error = %v", err)
	}
	if _, ok := l.Player("ghost"); ok {
		t.Error("Player found unknown id")
	}
}

func TestMoney(t *testing.T) {
	l := New()
	l.AddPlayer("aria", 1, "cleric")
	l.AddMoney("aria", 50)
	l.AddMoney("aria", -10)

	if l.RemoveMoney("aria", 60) {
		t.Error("overdraw succeeded")
	}
	if !l.RemoveMoney("aria", 20) {
		t.Error("RemoveMoney failed with enough funds")
	}
	if p, _ := l.Player("aria"); p.Gold != 30 {
		t.Errorf("gold = %d, want 30", p.Gold)
	}
}

func TestTeleportAndIDs(t *testing.T) {
	l := New()
	l.AddPlayer("cade", 1, "mage")
	l.AddPlayer("aria", 1, "cleric")
	l.Teleport("aria", "crypt_gate")

	if p, _ := l.Player("aria"); p.Location != "crypt_gate" {
		t.Errorf("location = %q", p.Location)
	}
	ids := l.IDs()
	if len(ids) != 2 || ids[0] != "aria" || ids[1] != "cade" {
		t.Errorf("IDs = %v", ids)
	}
}

func TestConcurrentGrants(t *testing.T) {
	l := New()
	l.AddPlayer("aria", 1, "cleric")
	l.SetCapacity("aria", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.GrantItem("aria", "bone")
			l.AddMoney("aria", 2)
		}()
	}
	wg.Wait()

	p, _ := l.Player("aria")
	if len(p.Items) != 50 || p.Gold != 100 {
		t.Errorf("items=%d gold=%d, want 50 and 100", len(p.Items), p.Gold)
	}
}
