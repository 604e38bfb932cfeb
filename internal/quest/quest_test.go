package quest

import (
	"testing"
)

func boneCollector() *Definition {
	return &Definition{
		ID:       "bone_collector",
		Name:     "The Bone Collector",
		GiverNPC: "warden",
		MinLevel: 1,
		MaxLevel: 5,
		Goals: []Goal{
			{Kind: GoalKill, Target: "skeleton", Required: 2},
		},
		BaseXP:   100,
		BaseGold: 25,
		Options: []RewardOption{
			{ItemID: "bone_shield"},
			{ItemID: "grave_cloak"},
			{ItemID: "ossuary_ring"},
		},
		ChooseCount: 1,
		QuestItems:  []string{"bone_charm"},
	}
}

func TestGoalMatches(t *testing.T) {
	tests := []struct {
		name    string
		goal    Goal
		kind    GoalKind
		subject string
		want    bool
	}{
		{"kill substring", Goal{Kind: GoalKill, Target: "skeleton"}, GoalKill, "Restless Skeleton", true},
		{"kill no match", Goal{Kind: GoalKill, Target: "skeleton"}, GoalKill, "Ghoul", false},
		{"kind mismatch", Goal{Kind: GoalKill, Target: "skeleton"}, GoalCollect, "skeleton", false},
		{"collect exact", Goal{Kind: GoalCollect, Target: "wolf_pelt"}, GoalCollect, "wolf_pelt", true},
		{"collect not substring", Goal{Kind: GoalCollect, Target: "pelt"}, GoalCollect, "wolf_pelt", false},
		{"scout exact", Goal{Kind: GoalScout, Target: "crypt"}, GoalScout, "crypt", true},
		{"empty target matches any", Goal{Kind: GoalKill}, GoalKill, "rat", true},
		{"empty subject never matches", Goal{Kind: GoalKill}, GoalKill, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.goal.Matches(tt.kind, tt.subject); got != tt.want {
				t.Errorf("Matches(%s, %q) = %v, want %v", tt.kind, tt.subject, got, tt.want)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	if err := boneCollector().Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(d *Definition)
	}{
		{"missing id", func(d *Definition) { d.ID = "" }},
		{"inverted levels", func(d *Definition) { d.MinLevel, d.MaxLevel = 10, 5 }},
		{"zero goal", func(d *Definition) { d.Goals[0].Required = 0 }},
		{"unknown goal kind", func(d *Definition) { d.Goals[0].Kind = "escort" }},
		{"choose more than offered", func(d *Definition) { d.ChooseCount = 4 }},
		{"negative xp", func(d *Definition) { d.BaseXP = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := boneCollector()
			tt.mutate(def)
			if err := def.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestQualify(t *testing.T) {
	def := boneCollector()

	tests := []struct {
		name   string
		player PlayerInfo
		setup  func(log *PlayerQuestLog)
		def    func() *Definition
		want   Qualification
	}{
		{"level inside range", PlayerInfo{Level: 3}, nil, nil, Qualified},
		{"level below", PlayerInfo{Level: 0}, nil, nil, LevelTooLow},
		{"level above", PlayerInfo{Level: 6}, nil, nil, LevelTooHigh},
		{
			"class filter", PlayerInfo{Level: 3, Class: "mage"}, nil,
			func() *Definition { d := boneCollector(); d.Classes = []string{"Cleric"}; return d },
			WrongClass,
		},
		{
			"class filter case insensitive", PlayerInfo{Level: 3, Class: "cleric"}, nil,
			func() *Definition { d := boneCollector(); d.Classes = []string{"Cleric"}; return d },
			Qualified,
		},
		{
			"missing prereq", PlayerInfo{Level: 3}, nil,
			func() *Definition { d := boneCollector(); d.Prereqs = []string{"rat_problem"}; return d },
			MissingPrereq,
		},
		{
			"already active", PlayerInfo{Level: 3},
			func(log *PlayerQuestLog) { log.Start(def) },
			nil, AlreadyActive,
		},
		{
			"finished non repeatable", PlayerInfo{Level: 3},
			func(log *PlayerQuestLog) { finishInLog(t, log, def) },
			nil, AlreadyFinished,
		},
		{
			"finished repeatable", PlayerInfo{Level: 3},
			func(log *PlayerQuestLog) { finishInLog(t, log, def) },
			func() *Definition { d := boneCollector(); d.Repeatable = true; return d },
			Qualified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewPlayerQuestLog("p1")
			if tt.setup != nil {
				tt.setup(log)
			}
			d := def
			if tt.def != nil {
				d = tt.def()
			}
			if got := d.Qualify(tt.player, log); got != tt.want {
				t.Errorf("Qualify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQualifyPrereqSatisfied(t *testing.T) {
	log := NewPlayerQuestLog("p1")
	rats := &Definition{ID: "rat_problem", Goals: []Goal{{Kind: GoalKill, Target: "rat", Required: 1}}}
	finishInLog(t, log, rats)

	def := boneCollector()
	def.Prereqs = []string{"rat_problem"}
	if got := def.Qualify(PlayerInfo{Level: 2}, log); got != Qualified {
		t.Errorf("Qualify() = %v, want qualified", got)
	}
}

// finishInLog starts def, completes every goal, finishes and closes it
func finishInLog(t *testing.T, log *PlayerQuestLog, def *Definition) {
	t.Helper()
	inst, err := log.Start(def)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i, g := range def.Goals {
		for n := 0; n < g.Required; n++ {
			if _, err := inst.AdvanceGoal(i); err != nil {
				t.Fatalf("AdvanceGoal: %v", err)
			}
		}
	}
	if err := inst.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := log.Close(inst); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
