package content

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/behavior"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/npc"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/quest"
)

// source is one parsed content file
type source struct {
	path string
	file File
}

// LoadDir loads every .yaml and .yml file under dir, in lexical path order,
// into a new Set. The returned ValidationError carries warnings even when
// loading succeeds; when it has errors the Set is nil.
func LoadDir(dir string) (*Set, *behavior.ValidationError, error) {
	paths, err := contentFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	sources := make([]source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read content file: %w", err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		sources = append(sources, source{path: p, file: f})
	}

	set, ve := build(sources)
	if ve.HasErrors() {
		return nil, ve, ve
	}
	digest, err := Digest(dir)
	if err != nil {
		return nil, ve, err
	}
	set.Digest = digest
	return set, ve, nil
}

// Parse builds a Set from in-memory YAML documents, used by tests and tools
func Parse(docs ...[]byte) (*Set, *behavior.ValidationError, error) {
	sources := make([]source, 0, len(docs))
	for i, data := range docs {
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, nil, fmt.Errorf("failed to parse document %d: %w", i, err)
		}
		sources = append(sources, source{path: fmt.Sprintf("doc%d", i), file: f})
	}
	set, ve := build(sources)
	if ve.HasErrors() {
		return nil, ve, ve
	}
	return set, ve, nil
}

func contentFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan content directory: %w", err)
	}
	return paths, nil
}

// Digest hashes the names and contents of every content file under dir with
// BLAKE2b, so a reloader can tell whether anything changed.
func Digest(dir string) (string, error) {
	paths, err := contentFiles(dir)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("failed to read content file: %w", err)
		}
		rel, _ := filepath.Rel(dir, p)
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.ToSlash(rel), len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// build assembles and cross-checks the sources
func build(sources []source) (*Set, *behavior.ValidationError) {
	ve := &behavior.ValidationError{}
	errorf := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}
	warnf := func(format string, args ...any) {
		ve.Warnings = append(ve.Warnings, fmt.Sprintf(format, args...))
	}

	quests := quest.NewRegistry()
	npcs := npc.NewDirectory()
	vars := make(map[string]string)
	var rules []behavior.Rule

	for _, src := range sources {
		for _, id := range sortedKeys(src.file.NPCs) {
			if err := npcs.Add(npc.CreateNPCFromDefinition(id, src.file.NPCs[id])); err != nil {
				errorf("%s: %v", src.path, err)
			}
		}
		for k, v := range src.file.Vars {
			if old, dup := vars[k]; dup && old != v {
				warnf("%s: var %q redefined", src.path, k)
			}
			vars[k] = v
		}
	}

	for _, src := range sources {
		for _, id := range sortedKeys(src.file.Quests) {
			qy := src.file.Quests[id]
			def, err := qy.Build(id)
			if err != nil {
				errorf("%s: %v", src.path, err)
				continue
			}
			if err := quests.Register(def); err != nil {
				errorf("%s: %v", src.path, err)
				continue
			}
			for i, ry := range qy.Rules {
				if ry.Quest == "" {
					ry.Quest = id
				}
				if ry.Owner == "" {
					ry.Owner = def.GiverNPC
				}
				if ry.ID == "" {
					ry.ID = fmt.Sprintf("%s.%d", id, i+1)
				}
				r, err := ry.Build()
				if err != nil {
					errorf("%s: %v", src.path, err)
					continue
				}
				rules = append(rules, r)
			}
		}
		for i, ry := range src.file.Rules {
			if ry.ID == "" {
				ry.ID = fmt.Sprintf("%s.global.%d", strings.TrimSuffix(filepath.Base(src.path), filepath.Ext(src.path)), i+1)
			}
			r, err := ry.Build()
			if err != nil {
				errorf("%s: %v", src.path, err)
				continue
			}
			rules = append(rules, r)
		}
	}

	checkReferences(quests, npcs, rules, errorf, warnf)

	knownQuest := func(id string) bool {
		_, ok := quests.Get(id)
		return ok
	}
	registry := behavior.NewRegistry()
	for _, r := range rules {
		before := len(ve.Errors)
		behavior.Validate(r, knownQuest, ve)
		if len(ve.Errors) > before {
			continue
		}
		if err := registry.Register(r); err != nil {
			errorf("%s: %v", r.ID, err)
		}
	}

	return NewSet(quests, registry, npcs, vars), ve
}

// checkReferences verifies links between quests, NPCs and rules
func checkReferences(quests *quest.Registry, npcs *npc.Directory, rules []behavior.Rule,
	errorf, warnf func(string, ...any)) {
	knownNPC := func(id string) bool {
		if npcs.Len() == 0 {
			return true
		}
		_, ok := npcs.Get(id)
		return ok
	}

	finishers := make(map[string]bool)
	for _, r := range rules {
		if r.Owner != "" && !knownNPC(r.Owner) {
			errorf("%s: owner %q is not a known npc", r.ID, r.Owner)
		}
		for _, a := range r.Actions {
			if a.Kind == behavior.ActFinishQuest {
				qt := a.QuestType
				if qt == "" {
					qt = r.QuestType
				}
				finishers[qt] = true
			}
		}
	}

	for _, id := range quests.IDs() {
		def, _ := quests.Get(id)
		if def.GiverNPC != "" && !knownNPC(def.GiverNPC) {
			errorf("quest %s: giver %q is not a known npc", id, def.GiverNPC)
		}
		if def.TurnInNPC != "" && !knownNPC(def.TurnInNPC) {
			errorf("quest %s: turn-in npc %q is not a known npc", id, def.TurnInNPC)
		}
		for _, p := range def.Prereqs {
			if _, ok := quests.Get(p); !ok {
				errorf("quest %s: prerequisite %q is not defined", id, p)
			}
		}
		if len(def.Goals) > 0 && !finishers[id] {
			warnf("quest %s: no rule finishes it", id)
		}
	}

	for _, id := range npcs.IDs() {
		n, _ := npcs.Get(id)
		for _, qt := range append(append([]string(nil), n.GivesQuests...), n.TurnInQuests...) {
			if _, ok := quests.Get(qt); !ok {
				errorf("npc %s: quest %q is not defined", id, qt)
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
