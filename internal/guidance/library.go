// Package guidance holds the canned follow-up phrases used to coach a user toward
// self-awareness, indexed by phase and technique, and the selection rules over them.
package guidance

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/BTreeMap/Skopos/internal/models"
)

// Entry is one technique category of a phase with its candidate phrases.
type Entry struct {
	Phase     models.Phase
	Technique models.Technique
	Phrases   []string
}

// Rand is the random source used for uniform draws.
type Rand interface {
	IntN(n int) int
}

// globalRand draws from the math/rand/v2 top-level source, which is safe for concurrent use.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// lockedRand serializes access to a caller-supplied source.
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Option configures a Library.
type Option func(*Library)

// WithRand injects the random source used for technique and phrase selection.
func WithRand(r Rand) Option {
	return func(l *Library) {
		if r != nil {
			l.rng = &lockedRand{r: r}
		}
	}
}

// WithEntries replaces the built-in guidance entries.
func WithEntries(entries []Entry) Option {
	return func(l *Library) {
		l.entries = entries
	}
}

// WithDeepenPhrases replaces the static loop-breaking phrases.
func WithDeepenPhrases(pools map[models.Phase][]string) Option {
	return func(l *Library) {
		l.deepen = pools
	}
}

// Library is a read-only catalog of guidance phrases. It is safe for concurrent use.
type Library struct {
	entries []Entry
	deepen  map[models.Phase][]string
	rng     Rand

	// index is built once from entries; techniques keep their declaration order per phase.
	index map[models.Phase]map[models.Technique][]string
	order map[models.Phase][]models.Technique
}

// NewLibrary builds a library over the built-in phrases unless overridden by options.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		entries: defaultEntries,
		deepen:  deepenPhrases,
		rng:     globalRand{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.index = make(map[models.Phase]map[models.Technique][]string)
	l.order = make(map[models.Phase][]models.Technique)
	for _, e := range l.entries {
		if len(e.Phrases) == 0 {
			continue
		}
		if l.index[e.Phase] == nil {
			l.index[e.Phase] = make(map[models.Technique][]string)
		}
		if _, seen := l.index[e.Phase][e.Technique]; !seen {
			l.order[e.Phase] = append(l.order[e.Phase], e.Technique)
		}
		phrases := make([]string, len(e.Phrases))
		copy(phrases, e.Phrases)
		l.index[e.Phase][e.Technique] = append(l.index[e.Phase][e.Technique], phrases...)
	}
	slog.Debug("guidance.NewLibrary: library built", "entries", len(l.entries), "phases", len(l.index))
	return l
}

// Techniques returns the technique categories defined for a phase in declaration order.
func (l *Library) Techniques(phase models.Phase) []models.Technique {
	out := make([]models.Technique, len(l.order[phase]))
	copy(out, l.order[phase])
	return out
}

// Phrases returns the candidate phrases of a technique in a phase.
func (l *Library) Phrases(phase models.Phase, technique models.Technique) []string {
	src := l.index[phase][technique]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Has reports whether the phase defines a non-empty technique.
func (l *Library) Has(phase models.Phase, technique models.Technique) bool {
	return len(l.index[phase][technique]) > 0
}

// NextStageGuidance describes how to lead the user from phase toward the next layer.
// Unknown phases get the initial-phase guidance.
func (l *Library) NextStageGuidance(phase models.Phase) string {
	if g, ok := nextStageGuidance[phase]; ok {
		return g
	}
	return nextStageGuidance[models.PhaseInitial]
}

// DeepenPhrase draws a static loop-breaking phrase for the phase.
// Unknown phases use the initial pool; an empty library yields MinimalPhrase.
func (l *Library) DeepenPhrase(phase models.Phase) string {
	pool := l.deepen[phase]
	if len(pool) == 0 {
		pool = l.deepen[models.PhaseInitial]
	}
	if len(pool) == 0 {
		return MinimalPhrase
	}
	return pool[l.rng.IntN(len(pool))]
}

// DeepenPool returns a copy of the static loop-breaking phrases for a phase.
func (l *Library) DeepenPool(phase models.Phase) []string {
	pool := l.deepen[phase]
	if len(pool) == 0 {
		pool = l.deepen[models.PhaseInitial]
	}
	out := make([]string, len(pool))
	copy(out, pool)
	return out
}
