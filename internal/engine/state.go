package engine

import (
	"fmt"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// ruleState is the read-only view requirements see. Player facts are read
// once per rule so a level gained from an earlier rule's reward counts.
type ruleState struct {
	d    *dispatch
	info quest.PlayerInfo
}

var _ behavior.State = (*ruleState)(nil)

func (st *ruleState) Event() event.Event  { return st.d.ev }
func (st *ruleState) PlayerLevel() int    { return st.info.Level }
func (st *ruleState) PlayerClass() string { return st.info.Class }

func (st *ruleState) QuestStep(questType string) (int, bool) {
	inst, ok := st.d.log.Active(questType)
	if !ok {
		return 0, false
	}
	return inst.Step(), true
}

func (st *ruleState) GoalAchieved(questType string, goal int) (bool, bool, error) {
	inst, ok := st.d.log.Active(questType)
	if !ok {
		return false, false, nil
	}
	if goal == behavior.AllGoals {
		return inst.AllGoalsAchieved(), true, nil
	}
	g, err := inst.Goal(goal)
	if err != nil {
		return false, true, err
	}
	return g.IsAchieved(), true, nil
}

func (st *ruleState) QuestGivable(questType string) (bool, error) {
	def, ok := st.d.set.Quests.Get(questType)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownQuest, questType)
	}
	return def.Qualify(st.info, st.d.log) == quest.Qualified, nil
}

func (st *ruleState) Var(name string) (string, bool) {
	return st.d.set.Var(name)
}
