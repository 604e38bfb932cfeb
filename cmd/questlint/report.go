package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/content"
)

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("34"))

	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// result is the outcome of linting one content directory.
type result struct {
	Dir      string
	Set      *content.Set
	Errors   []string
	Warnings []string
}

func lint(dir string) result {
	res := result{Dir: dir}
	set, ve, err := content.LoadDir(dir)
	if ve != nil {
		res.Errors = append(res.Errors, ve.Errors...)
		res.Warnings = append(res.Warnings, ve.Warnings...)
	}
	if err != nil && ve == nil {
		res.Errors = append(res.Errors, err.Error())
	}
	res.Set = set
	return res
}

// failed reports whether the result should produce a non-zero exit.
func (r result) failed(strict bool) bool {
	return len(r.Errors) > 0 || (strict && len(r.Warnings) > 0)
}

func render(w io.Writer, r result) {
	var b strings.Builder
	b.WriteString(styleTitle.Render("questlint " + r.Dir))
	b.WriteString("\n")

	if r.Set != nil {
		b.WriteString(styleBox.Render(summary(r.Set)))
		b.WriteString("\n")
	}

	for _, e := range r.Errors {
		b.WriteString(styleError.Render("error   ") + e + "\n")
	}
	for _, wn := range r.Warnings {
		b.WriteString(styleWarn.Render("warning ") + wn + "\n")
	}

	switch {
	case len(r.Errors) > 0:
		b.WriteString(styleError.Render(fmt.Sprintf("%d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))))
	case len(r.Warnings) > 0:
		b.WriteString(styleWarn.Render(fmt.Sprintf("ok with %d warning(s)", len(r.Warnings))))
	default:
		b.WriteString(styleOK.Render("ok"))
	}
	b.WriteString("\n")

	fmt.Fprint(w, b.String())
}

func summary(set *content.Set) string {
	perQuest := make(map[string]int)
	global := 0
	for _, rule := range set.Rules.Rules() {
		if rule.QuestType == "" {
			global++
			continue
		}
		perQuest[rule.QuestType]++
	}

	lines := []string{
		fmt.Sprintf("%d quests, %d rules, %d npcs, %d vars",
			set.Quests.Count(), set.Rules.Len(), set.NPCs.Len(), len(set.Vars)),
	}
	for _, id := range set.Quests.IDs() {
		def, _ := set.Quests.Get(id)
		lines = append(lines, fmt.Sprintf("  %-24s %s", id,
			styleDim.Render(fmt.Sprintf("%d goals, %d rules, giver %s", len(def.Goals), perQuest[id], orNone(def.GiverNPC)))))
	}
	if global > 0 {
		lines = append(lines, fmt.Sprintf("  %-24s %s", "(global)", styleDim.Render(fmt.Sprintf("%d rules", global))))
	}
	if set.Digest != "" {
		lines = append(lines, styleDim.Render("digest "+shortDigest(set.Digest)))
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
