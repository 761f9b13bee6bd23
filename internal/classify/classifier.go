package classify

import (
	"strings"

	"github.com/BTreeMap/Skopos/internal/models"
)

// Classifier answers substring-membership questions against immutable keyword tables.
// It is safe for concurrent use.
type Classifier struct {
	tables Tables
}

// New creates a classifier over a private copy of the given tables.
// A nil table set selects the built-in defaults.
func New(tables Tables) *Classifier {
	if tables == nil {
		tables = defaultTables
	}
	lowered := make(Tables, len(tables))
	for cat, words := range tables {
		cp := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.ToLower(w); w != "" {
				cp = append(cp, w)
			}
		}
		lowered[cat] = cp
	}
	return &Classifier{tables: lowered}
}

// NewDefault creates a classifier over the built-in tables.
func NewDefault() *Classifier {
	return New(nil)
}

// Matches reports whether any trigger string of the category occurs in text, ignoring case.
// Empty text and unknown categories never match.
func (c *Classifier) Matches(text string, category models.Category) bool {
	if text == "" {
		return false
	}
	return c.matchLowered(strings.ToLower(text), category)
}

// MatchAll returns the subset of categories that match text, preserving argument order.
func (c *Classifier) MatchAll(text string, categories ...models.Category) []models.Category {
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)
	var out []models.Category
	for _, cat := range categories {
		if c.matchLowered(lowered, cat) {
			out = append(out, cat)
		}
	}
	return out
}

// Keywords returns a copy of the trigger strings of a category.
func (c *Classifier) Keywords(category models.Category) []string {
	words := c.tables[category]
	out := make([]string, len(words))
	copy(out, words)
	return out
}

func (c *Classifier) matchLowered(lowered string, category models.Category) bool {
	for _, w := range c.tables[category] {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}
