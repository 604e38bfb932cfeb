// Package ledger is an in-memory player, inventory and economy collaborator.
// questd uses it when no world server owns player state, and tests use it as
// the engine's inventory, movement and player lookup.
package ledger

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// MaxPlayerLevel caps level gains from experience
const MaxPlayerLevel = 50

// DefaultCapacity is the number of inventory slots a new player gets
const DefaultCapacity = 20

// ErrUnknownPlayer is returned for ids that were never added
var ErrUnknownPlayer = errors.New("unknown player")

// XPForLevel returns the total experience required to reach level.
// Uses the curve 100 * level^1.5.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return int(100 * math.Pow(float64(level), 1.5))
}

// levelForXP returns the highest level reachable with xp, never below floor
func levelForXP(xp, floor int) int {
	level := floor
	for level < MaxPlayerLevel && xp >= XPForLevel(level+1) {
		level++
	}
	return level
}

// Player is a snapshot of one player's state
type Player struct {
	ID       string
	Level    int
	Class    string
	Gold     int
	XP       int
	Items    []string
	Capacity int
	Location string
}

type account struct {
	level    int
	class    string
	gold     int
	xp       int
	items    []string
	capacity int
	location string
}

// Ledger holds player state. All methods are safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	players map[string]*account
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{players: make(map[string]*account)}
}

// AddPlayer registers a player with DefaultCapacity slots, replacing any
// existing state for id.
func (l *Ledger) AddPlayer(id string, level int, class string) {
	if level < 1 {
		level = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[id] = &account{
		level:    level,
		class:    class,
		xp:       XPForLevel(level),
		capacity: DefaultCapacity,
	}
}

// SetCapacity changes the number of inventory slots
func (l *Ledger) SetCapacity(id string, slots int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	a.capacity = slots
	return nil
}

// Player returns a snapshot of id
func (l *Ledger) Player(id string) (Player, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.players[id]
	if !ok {
		return Player{}, false
	}
	return Player{
		ID:       id,
		Level:    a.level,
		Class:    a.class,
		Gold:     a.gold,
		XP:       a.xp,
		Items:    append([]string(nil), a.items...),
		Capacity: a.capacity,
		Location: a.location,
	}, true
}

// IDs returns every registered player id, sorted
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Level returns the player's level and class
func (l *Ledger) Level(id string) (level int, class string, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.players[id]
	if !ok {
		return 0, "", false
	}
	return a.level, a.class, true
}

// GrantItem places itemID in a free slot. It returns false when the
// inventory is full or the player is unknown.
func (l *Ledger) GrantItem(id, itemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.players[id]
	if !ok || len(a.items) >= a.capacity {
		return false
	}
	a.items = append(a.items, itemID)
	return true
}

// RemoveItem removes one copy of itemID, reporting whether one was held
func (l *Ledger) RemoveItem(id, itemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.players[id]
	if !ok {
		return false
	}
	for i, it := range a.items {
		if it == itemID {
			a.items = append(a.items[:i], a.items[i+1:]...)
			return true
		}
	}
	return false
}

// CountItem returns how many copies of itemID the player holds
func (l *Ledger) CountItem(id, itemID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.players[id]
	if !ok {
		return 0
	}
	n := 0
	for _, it := range a.items {
		if it == itemID {
			n++
		}
	}
	return n
}

// AddMoney credits gold
func (l *Ledger) AddMoney(id string, amount int) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.players[id]; ok {
		a.gold += amount
	}
}

// RemoveMoney debits gold, returning false without change when funds are short
func (l *Ledger) RemoveMoney(id string, amount int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.players[id]
	if !ok || amount < 0 || a.gold < amount {
		return false
	}
	a.gold -= amount
	return true
}

// GrantXP adds experience and applies any level gained
func (l *Ledger) GrantXP(id string, amount int) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.players[id]; ok {
		a.xp += amount
		a.level = levelForXP(a.xp, a.level)
	}
}

// Teleport moves the player to location
func (l *Ledger) Teleport(id, location string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.players[id]; ok {
		a.location = location
	}
}

// PlayerInfo returns the level and class quest qualification checks use
func (l *Ledger) PlayerInfo(id string) (quest.PlayerInfo, bool) {
	level, class, ok := l.Level(id)
	if !ok {
		return quest.PlayerInfo{}, false
	}
	return quest.PlayerInfo{Level: level, Class: class}, true
}
