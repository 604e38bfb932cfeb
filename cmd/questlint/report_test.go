package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cleanContent = `
npcs:
  warden:
    name: Warden
    gives_quests: [lantern_run]
quests:
  lantern_run:
    name: Lantern Run
    giver_npc: warden
    goals:
      - kind: scout
        target: crypt
    rules:
      - trigger: {kind: area_enter, source: crypt}
        actions:
          - {kind: finish_quest}
rules:
  - owner: warden
    trigger: {kind: interact}
    actions:
      - {kind: talk, text: "Halt."}
`

func writeContent(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "content.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLintClean(t *testing.T) {
	res := lint(writeContent(t, cleanContent))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.failed(true) {
		t.Fatalf("clean content failed strict lint: %v", res.Warnings)
	}

	var buf bytes.Buffer
	render(&buf, res)
	out := buf.String()
	for _, want := range []string{"lantern_run", "(global)", "ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestLintErrors(t *testing.T) {
	doc := strings.Replace(cleanContent, "giver_npc: warden", "giver_npc: nobody", 1)
	res := lint(writeContent(t, doc))
	if !res.failed(false) {
		t.Fatal("expected lint to fail")
	}

	var buf bytes.Buffer
	render(&buf, res)
	if !strings.Contains(buf.String(), "nobody") {
		t.Errorf("report does not name the unknown npc:\n%s", buf.String())
	}
}

func TestLintMissingDir(t *testing.T) {
	res := lint(filepath.Join(t.TempDir(), "missing"))
	if !res.failed(false) {
		t.Fatal("expected a missing directory to fail")
	}
}
