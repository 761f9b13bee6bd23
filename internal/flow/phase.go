package flow

import (
	"github.com/BTreeMap/Skopos/internal/classify"
	"github.com/BTreeMap/Skopos/internal/models"
)

// phaseTransitions maps each phase to the keyword category that advances it one layer deeper.
var phaseTransitions = map[models.Phase]struct {
	trigger models.Category
	next    models.Phase
}{
	models.PhaseInitial:   {models.CategoryEmotions, models.PhaseExploring},
	models.PhaseExploring: {models.CategoryChildhood, models.PhaseChildhood},
	models.PhaseChildhood: {models.CategoryHealing, models.PhaseHealing},
}

// NextPhase returns the phase after a user message. Only the current phase's transition is
// evaluated, so a turn moves at most one step and never backwards. Healing is terminal.
// Unknown or empty phases are treated as initial.
func NextPhase(c *classify.Classifier, current models.Phase, text string) models.Phase {
	current = current.Normalize()
	t, ok := phaseTransitions[current]
	if !ok {
		return current
	}
	if c.Matches(text, t.trigger) {
		return t.next
	}
	return current
}
