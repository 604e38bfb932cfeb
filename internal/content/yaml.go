package content

import (
	"fmt"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/npc"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/script"
)

// File is the top-level structure of a content YAML file. A file may carry
// any mix of quests, NPCs, global rules and variables.
type File struct {
	Quests map[string]QuestYAML         `yaml:"quests"`
	NPCs   map[string]npc.NPCDefinition `yaml:"npcs"`
	Rules  []RuleYAML                   `yaml:"rules"`
	Vars   map[string]string            `yaml:"vars"`
}

// QuestYAML is a quest definition together with the rules that drive it
type QuestYAML struct {
	quest.DefinitionYAML `yaml:",inline"`
	Rules                []RuleYAML `yaml:"rules"`
}

// TriggerYAML for YAML parsing
type TriggerYAML struct {
	Kind    string `yaml:"kind"`    // interact, whisper, enemy_killed, give_item, ...
	Source  string `yaml:"source"`  // entity id, defaults to the owner for NPC triggers
	Payload string `yaml:"payload"` // keyword, name fragment, item id or quest type
	Match   string `yaml:"match"`   // any, exact, fold, substring
}

// RequirementYAML for YAML parsing
type RequirementYAML struct {
	Kind   string `yaml:"kind"`
	Op     string `yaml:"op"` // ==, !=, <, >, <=, >= (default ==)
	Quest  string `yaml:"quest"`
	Value  int    `yaml:"value"`
	Goal   *int   `yaml:"goal"` // quest_goal_achieved; omitted means every goal
	Class  string `yaml:"class"`
	Script string `yaml:"script"` // Lua expression for custom requirements
}

// ActionYAML for YAML parsing
type ActionYAML struct {
	Kind      string `yaml:"kind"`
	Text      string `yaml:"text"`
	Item      string `yaml:"item"`
	Amount    int    `yaml:"amount"`
	Quest     string `yaml:"quest"`
	Goal      int    `yaml:"goal"`
	QuestProp bool   `yaml:"quest_prop"`
	Location  string `yaml:"location"`
}

// RuleYAML for YAML parsing
type RuleYAML struct {
	ID           string            `yaml:"id"`
	Owner        string            `yaml:"owner"`
	Quest        string            `yaml:"quest"`
	Trigger      TriggerYAML       `yaml:"trigger"`
	Requirements []RequirementYAML `yaml:"requirements"`
	Actions      []ActionYAML      `yaml:"actions"`
}

// Build converts the YAML form into a rule. Custom requirement scripts are
// compiled here so syntax errors surface at load time.
func (y *RuleYAML) Build() (behavior.Rule, error) {
	kind, err := event.ParseKind(y.Trigger.Kind)
	if err != nil {
		return behavior.Rule{}, fmt.Errorf("rule %s trigger: %w", y.ID, err)
	}
	match, err := behavior.ParseMatchMode(y.Trigger.Match)
	if err != nil {
		return behavior.Rule{}, fmt.Errorf("rule %s trigger: %w", y.ID, err)
	}

	payload := y.Trigger.Payload
	if payload == "" && y.Quest != "" && (kind == event.KindAcceptQuest || kind == event.KindDeclineQuest) {
		payload = y.Quest
	}

	r := behavior.Rule{
		ID:        y.ID,
		Owner:     y.Owner,
		QuestType: y.Quest,
		Trigger: behavior.Trigger{
			Kind:    kind,
			Source:  y.Trigger.Source,
			Payload: payload,
			Match:   match,
		},
	}

	for i, ry := range y.Requirements {
		req, err := ry.build(fmt.Sprintf("%s#%d", y.ID, i))
		if err != nil {
			return behavior.Rule{}, fmt.Errorf("rule %s requirement %d: %w", y.ID, i, err)
		}
		r.Requirements = append(r.Requirements, req)
	}
	for i, ay := range y.Actions {
		act, err := ay.build()
		if err != nil {
			return behavior.Rule{}, fmt.Errorf("rule %s action %d: %w", y.ID, i, err)
		}
		r.Actions = append(r.Actions, act)
	}
	return r, nil
}

func (y *RequirementYAML) build(name string) (behavior.Requirement, error) {
	kind, err := behavior.ParseRequirementKind(y.Kind)
	if err != nil {
		return behavior.Requirement{}, err
	}
	cmp, err := behavior.ParseComparator(y.Op)
	if err != nil {
		return behavior.Requirement{}, err
	}

	req := behavior.Requirement{
		Kind:       kind,
		Comparator: cmp,
		QuestType:  y.Quest,
		Value:      y.Value,
		Goal:       behavior.AllGoals,
		Class:      y.Class,
	}
	if y.Goal != nil {
		req.Goal = *y.Goal
	}
	if kind == behavior.ReqCustom {
		p, err := script.Compile(name, y.Script)
		if err != nil {
			return behavior.Requirement{}, err
		}
		req.Predicate = p
	}
	return req, nil
}

func (y *ActionYAML) build() (behavior.Action, error) {
	kind, err := behavior.ParseActionKind(y.Kind)
	if err != nil {
		return behavior.Action{}, err
	}
	return behavior.Action{
		Kind:      kind,
		Text:      y.Text,
		ItemID:    y.Item,
		Amount:    y.Amount,
		QuestType: y.Quest,
		Goal:      y.Goal,
		QuestProp: y.QuestProp,
		Location:  y.Location,
	}, nil
}
