package npc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/logger"
)

// NPCDefinition represents an NPC definition from a YAML file
type NPCDefinition struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Location     string   `yaml:"location"`
	Dialogue     []string `yaml:"dialogue"`
	QuestGiver   bool     `yaml:"quest_giver"`    // Legacy flag, implied by gives_quests
	GivesQuests  []string `yaml:"gives_quests"`   // Quest IDs this NPC can give
	TurnInQuests []string `yaml:"turn_in_quests"` // Quest IDs that can be turned in to this NPC
}

// NPCsConfig represents the structure of an npcs YAML file
type NPCsConfig struct {
	NPCs map[string]NPCDefinition `yaml:"npcs"`
}

// LoadNPCsFromYAML loads NPC definitions from a YAML file
func LoadNPCsFromYAML(filename string) (*NPCsConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read NPCs file: %w", err)
	}
	return ParseNPCs(data)
}

// ParseNPCs decodes NPC definitions
func ParseNPCs(data []byte) (*NPCsConfig, error) {
	var config NPCsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse NPCs YAML: %w", err)
	}

	for npcID, def := range config.NPCs {
		if def.QuestGiver && len(def.GivesQuests) == 0 {
			logger.Warning("NPC marked quest_giver without quests",
				"npc_id", npcID,
				"npc_name", def.Name,
				"action", "ignored")
		}
		if def.Name == "" {
			def.Name = npcID
			config.NPCs[npcID] = def
		}
	}
	return &config, nil
}

// CreateNPCFromDefinition creates an NPC from an NPCDefinition
func CreateNPCFromDefinition(id string, def NPCDefinition) *NPC {
	n := New(id, def.Name)
	n.Description = def.Description
	n.Location = def.Location
	n.Dialogue = append([]string(nil), def.Dialogue...)
	n.GivesQuests = append([]string(nil), def.GivesQuests...)
	n.TurnInQuests = append([]string(nil), def.TurnInQuests...)
	return n
}

// AddToDirectory creates every NPC in cfg and adds it to d
func (cfg *NPCsConfig) AddToDirectory(d *Directory) error {
	for id, def := range cfg.NPCs {
		if err := d.Add(CreateNPCFromDefinition(id, def)); err != nil {
			return err
		}
	}
	return nil
}
