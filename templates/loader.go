// Package templates provides the character type catalogue that drives
// the dashboard's creation form: per-type default traits and the prefix
// suggested for token unit names.
package templates

import (
	"encoding/json"
	"fmt"
	"os"
)

// Template describes one character type.
type Template struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	DefaultTraits []string `json:"default_traits"`
	TokenPrefix   string   `json:"token_prefix"`
}

// builtin is the default catalogue, matching the dashboard's type cards.
var builtin = []Template{
	{
		Type:          "ai_character",
		Title:         "AI Character",
		Description:   "A general-purpose AI character profile.",
		DefaultTraits: []string{"curious", "adaptive"},
		TokenPrefix:   "CHAR",
	},
	{
		Type:          "ai_companion",
		Title:         "AI Companion",
		Description:   "A conversational companion with persistent memory.",
		DefaultTraits: []string{"empathetic", "supportive", "attentive"},
		TokenPrefix:   "COMP",
	},
	{
		Type:          "influencer",
		Title:         "Influencer",
		Description:   "A social-media persona with an on-chain fan token.",
		DefaultTraits: []string{"charismatic", "trend-aware", "outspoken"},
		TokenPrefix:   "INFL",
	},
	{
		Type:          "game_character",
		Title:         "Game Character",
		Description:   "A playable character tied to in-game assets.",
		DefaultTraits: []string{"brave", "competitive"},
		TokenPrefix:   "GAME",
	},
}

// Loader holds the loaded catalogue.
type Loader struct {
	path   string
	byType map[string]*Template
	order  []*Template
}

// NewLoader creates a Loader. path may be empty; the built-in catalogue
// is used then.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads the catalogue from the configured JSON file, or installs
// the built-in templates when no path is set.
func (l *Loader) Load() error {
	list := builtin
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return fmt.Errorf("templates: read %s: %w", l.path, err)
		}
		var fromFile []Template
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("templates: parse %s: %w", l.path, err)
		}
		if len(fromFile) == 0 {
			return fmt.Errorf("templates: %s contains no templates", l.path)
		}
		list = fromFile
	}

	l.byType = make(map[string]*Template, len(list))
	l.order = make([]*Template, 0, len(list))
	for i := range list {
		t := &list[i]
		l.byType[t.Type] = t
		l.order = append(l.order, t)
	}
	return nil
}

// Valid reports whether the given character type is in the catalogue.
func (l *Loader) Valid(characterType string) bool {
	_, ok := l.byType[characterType]
	return ok
}

// Get returns the template for a type, or nil.
func (l *Loader) Get(characterType string) *Template {
	return l.byType[characterType]
}

// All returns the catalogue in load order.
func (l *Loader) All() []*Template {
	return l.order
}
