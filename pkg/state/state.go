// Package state persists consumer view state (expanded and selected
// tree paths) across sessions. Paths are stored as opaque tokens and
// re-resolved through the visit API on restore; the engine itself never
// persists anything. Corrupted or missing state degrades to defaults.
package state

import (
	"log"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/espalier/pkg/model"
)

// Version is the current schema version.
const Version = 1

// fileName is the state file name inside the state directory.
const fileName = "view-state.json"

// ViewState is the persisted form.
//
// File format (JSON):
//
//	{
//	  "version": 1,
//	  "expanded": [["root","a"],["root","b","b1"]],
//	  "selected": ["root","a","a2"]
//	}
type ViewState struct {
	Version  int              `json:"version"`
	Expanded []model.TreePath `json:"expanded,omitempty"`
	Selected model.TreePath   `json:"selected,omitempty"`
}

// Default returns an empty state.
func Default() *ViewState {
	return &ViewState{Version: Version}
}

// Path returns the state file location under dir.
func Path(dir string) string {
	return filepath.Join(dir, fileName)
}

// Load reads the state from dir. A missing or invalid file yields the
// defaults silently; persistence is best-effort by design.
func Load(dir string) *ViewState {
	if dir == "" {
		return Default()
	}
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return Default()
	}
	var state ViewState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("warning: invalid view state file, using defaults: %v", err)
		return Default()
	}
	if state.Version != Version {
		log.Printf("warning: view state version %d not supported, using defaults", state.Version)
		return Default()
	}
	return &state
}

// Save writes the state to dir, creating it if needed. Errors are
// logged but never interrupt the caller.
func Save(dir string, state *ViewState) {
	if dir == "" || state == nil {
		return
	}
	state.Version = Version
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("warning: failed to marshal view state: %v", err)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("warning: failed to create state directory %s: %v", dir, err)
		return
	}
	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		log.Printf("warning: failed to write view state: %v", err)
	}
}

// MarkExpanded records path as expanded, deduplicating.
func (s *ViewState) MarkExpanded(path model.TreePath) {
	for _, p := range s.Expanded {
		if p.Equal(path) {
			return
		}
	}
	dup := make(model.TreePath, len(path))
	copy(dup, path)
	s.Expanded = append(s.Expanded, dup)
}

// MarkCollapsed removes path from the expanded set.
func (s *ViewState) MarkCollapsed(path model.TreePath) {
	kept := s.Expanded[:0]
	for _, p := range s.Expanded {
		if !p.Equal(path) {
			kept = append(kept, p)
		}
	}
	s.Expanded = kept
}

// IsExpanded reports whether path was recorded as expanded.
func (s *ViewState) IsExpanded(path model.TreePath) bool {
	for _, p := range s.Expanded {
		if p.Equal(path) {
			return true
		}
	}
	return false
}
