package quest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GoalYAML for YAML parsing
type GoalYAML struct {
	Kind        string `yaml:"kind"`   // kill, scout, collect
	Target      string `yaml:"target"` // name fragment, area id, item id (empty = any)
	Required    int    `yaml:"required"`
	Description string `yaml:"description"`
	Manual      bool   `yaml:"manual"` // advanced only by advance_goal actions
}

// RewardOptionYAML for YAML parsing
type RewardOptionYAML struct {
	Item        string `yaml:"item"`
	Description string `yaml:"description"`
}

// RewardsYAML for YAML parsing
type RewardsYAML struct {
	Experience int                `yaml:"experience"`
	Gold       int                `yaml:"gold"`
	Choose     int                `yaml:"choose"`
	Options    []RewardOptionYAML `yaml:"options"`
}

// DefinitionYAML is the YAML form of a quest definition
type DefinitionYAML struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	GiverNPC    string      `yaml:"giver_npc"`
	TurnInNPC   string      `yaml:"turn_in_npc"`
	MinLevel    int         `yaml:"min_level"`
	MaxLevel    int         `yaml:"max_level"`
	Classes     []string    `yaml:"classes"`
	Prereqs     []string    `yaml:"prereqs"`
	Repeatable  bool        `yaml:"repeatable"`
	Goals       []GoalYAML  `yaml:"goals"`
	Rewards     RewardsYAML `yaml:"rewards"`
	QuestItems  []string    `yaml:"quest_items"`
}

// DefinitionsConfig represents a definitions-only YAML file
type DefinitionsConfig struct {
	Quests map[string]DefinitionYAML `yaml:"quests"`
}

// LoadDefinitionsFromYAML loads quest definitions from a YAML file
func LoadDefinitionsFromYAML(filename string) (*DefinitionsConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read quests file: %w", err)
	}

	var config DefinitionsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse quests YAML: %w", err)
	}

	return &config, nil
}

// Build converts the YAML form into a Definition with the given id
func (y *DefinitionYAML) Build(id string) (*Definition, error) {
	goals := make([]Goal, len(y.Goals))
	for i, g := range y.Goals {
		kind, err := ParseGoalKind(g.Kind)
		if err != nil {
			return nil, fmt.Errorf("quest %s goal %d: %w", id, i, err)
		}
		goals[i] = Goal{
			Kind:        kind,
			Target:      g.Target,
			Required:    g.Required,
			Description: g.Description,
			Manual:      g.Manual,
		}
	}

	options := make([]RewardOption, len(y.Rewards.Options))
	for i, o := range y.Rewards.Options {
		options[i] = RewardOption{ItemID: o.Item, Description: o.Description}
	}

	choose := y.Rewards.Choose
	if choose == 0 && len(options) > 0 {
		choose = 1
	}

	return &Definition{
		ID:          id,
		Name:        y.Name,
		Description: y.Description,
		GiverNPC:    y.GiverNPC,
		TurnInNPC:   y.TurnInNPC,
		MinLevel:    y.MinLevel,
		MaxLevel:    y.MaxLevel,
		Classes:     y.Classes,
		Prereqs:     y.Prereqs,
		Repeatable:  y.Repeatable,
		Goals:       goals,
		BaseXP:      y.Rewards.Experience,
		BaseGold:    y.Rewards.Gold,
		Options:     options,
		ChooseCount: choose,
		QuestItems:  y.QuestItems,
	}, nil
}

// ParseGoalKind converts a YAML goal kind, accepting the long names as aliases
func ParseGoalKind(s string) (GoalKind, error) {
	switch strings.ToLower(s) {
	case "kill", "kill_task":
		return GoalKill, nil
	case "scout", "scout_mission":
		return GoalScout, nil
	case "collect", "collect_item":
		return GoalCollect, nil
	default:
		return "", fmt.Errorf("unknown goal kind %q", s)
	}
}
