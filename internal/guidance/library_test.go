package guidance

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/BTreeMap/Skopos/internal/models"
)

// fixedRand always returns the same index, clamped to the range.
type fixedRand struct{ n int }

func (f fixedRand) IntN(n int) int {
	if f.n >= n {
		return n - 1
	}
	return f.n
}

func TestSelectHabitualReactionUsesPatternInterruption(t *testing.T) {
	lib := NewLibrary(WithRand(rand.New(rand.NewPCG(1, 2))))
	d := &models.AutomaticReactionDetection{HasAutomaticReactions: true, StuckInLoop: true}
	allowed := lib.Phrases(models.PhaseInitial, models.TechniquePatternInterruption)
	for i := 0; i < 50; i++ {
		sel := lib.Select(models.PhaseInitial, "", d)
		if sel.Technique != models.TechniquePatternInterruption {
			t.Fatalf("expected pattern_interruption, got %s", sel.Technique)
		}
		if !slices.Contains(allowed, sel.Phrase) {
			t.Fatalf("phrase %q not from pattern_interruption", sel.Phrase)
		}
	}
}

func TestSelectHabitualOutranksRequestedCategory(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}))
	d := &models.AutomaticReactionDetection{HasAutomaticReactions: true, HasBehaviorPatterns: true, StuckInLoop: true}
	sel := lib.Select(models.PhaseInitial, models.TechniqueBreathing, d)
	if sel.Technique != models.TechniquePatternInterruption {
		t.Errorf("expected reaction branch to win, got %s", sel.Technique)
	}
}

func TestSelectEmotionalTriggerInExploring(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}))
	d := &models.AutomaticReactionDetection{HasEmotionalTriggers: true, StuckInLoop: true}
	if sel := lib.Select(models.PhaseExploring, "", d); sel.Technique != models.TechniqueTriggerAwareness {
		t.Errorf("expected trigger_awareness, got %s", sel.Technique)
	}
}

func TestSelectBehaviorPatternInChildhood(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}))
	d := &models.AutomaticReactionDetection{HasBehaviorPatterns: true, StuckInLoop: true}
	if sel := lib.Select(models.PhaseChildhood, "", d); sel.Technique != models.TechniqueEarlyPatterns {
		t.Errorf("expected early_patterns, got %s", sel.Technique)
	}
}

func TestSelectHabitualFallsThroughToLowerPrioritySubtype(t *testing.T) {
	// exploring defines no habitual-specific technique but does define trigger_awareness
	lib := NewLibrary(WithRand(fixedRand{}))
	d := &models.AutomaticReactionDetection{HasAutomaticReactions: true, HasEmotionalTriggers: true, StuckInLoop: true}
	if sel := lib.Select(models.PhaseExploring, "", d); sel.Technique != models.TechniqueTriggerAwareness {
		t.Errorf("expected trigger_awareness, got %s", sel.Technique)
	}
}

func TestSelectReactionGenericFallback(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}), WithEntries([]Entry{
		{models.PhaseInitial, models.TechniqueBodyFocus, []string{"body"}},
		{models.PhaseInitial, models.TechniqueBreathing, []string{"breath"}},
	}))
	d := &models.AutomaticReactionDetection{HasAutomaticReactions: true, StuckInLoop: true}
	sel := lib.Select(models.PhaseInitial, "", d)
	if sel.Technique != models.TechniqueBodyFocus || !sel.Fallback {
		t.Errorf("expected generic body_focus fallback, got %+v", sel)
	}
}

func TestSelectRequestedCategory(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{n: 1}))
	sel := lib.Select(models.PhaseHealing, models.TechniqueIntegration, nil)
	if sel.Technique != models.TechniqueIntegration {
		t.Errorf("expected integration, got %s", sel.Technique)
	}
	if sel.Phrase != lib.Phrases(models.PhaseHealing, models.TechniqueIntegration)[1] {
		t.Errorf("expected phrase at injected index 1, got %q", sel.Phrase)
	}
}

func TestSelectRequestedCategoryMissingForPhaseIsRandom(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}))
	sel := lib.Select(models.PhaseHealing, models.TechniqueBreathing, nil)
	if sel.Technique != lib.Techniques(models.PhaseHealing)[0] {
		t.Errorf("expected first healing technique from fixed draw, got %s", sel.Technique)
	}
}

func TestSelectRandomCoversPhaseTechniques(t *testing.T) {
	lib := NewLibrary(WithRand(rand.New(rand.NewPCG(7, 11))))
	seen := map[models.Technique]bool{}
	for i := 0; i < 400; i++ {
		seen[lib.Select(models.PhaseInitial, "", nil).Technique] = true
	}
	for _, tech := range lib.Techniques(models.PhaseInitial) {
		if !seen[tech] {
			t.Errorf("technique %s never drawn", tech)
		}
	}
}

func TestSelectUnknownPhaseUsesInitial(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}))
	sel := lib.Select(models.Phase("mystery"), models.TechniqueBreathing, nil)
	if sel.Technique != models.TechniqueBreathing {
		t.Errorf("expected unknown phase to resolve as initial, got %s", sel.Technique)
	}
}

func TestSelectEmptyLibraryNeverFails(t *testing.T) {
	lib := NewLibrary(WithEntries(nil), WithDeepenPhrases(nil))
	sel := lib.Select(models.PhaseChildhood, "", &models.AutomaticReactionDetection{HasAutomaticReactions: true, StuckInLoop: true})
	if sel.Phrase != MinimalPhrase || !sel.Fallback {
		t.Errorf("expected minimal phrase, got %+v", sel)
	}
	if got := lib.Select(models.PhaseHealing, "", nil).Phrase; got != MinimalPhrase {
		t.Errorf("expected minimal phrase, got %q", got)
	}
	if got := lib.DeepenPhrase(models.PhaseHealing); got != MinimalPhrase {
		t.Errorf("expected minimal deepen phrase, got %q", got)
	}
}

func TestSelectOtherPhaseWhenPhaseEmpty(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{}), WithEntries([]Entry{
		{models.PhaseHealing, models.TechniqueStrength, []string{"strength"}},
	}))
	if got := lib.Select(models.PhaseInitial, "", nil).Phrase; got != "strength" {
		t.Errorf("expected phrase from another phase, got %q", got)
	}
}

func TestDeepenPhrase(t *testing.T) {
	lib := NewLibrary(WithRand(fixedRand{n: 2}))
	for _, p := range models.Phases {
		pool := lib.DeepenPool(p)
		if got := lib.DeepenPhrase(p); got != pool[2] {
			t.Errorf("%s: expected %q, got %q", p, pool[2], got)
		}
	}
	if got := lib.DeepenPhrase(models.Phase("x")); !slices.Contains(lib.DeepenPool(models.PhaseInitial), got) {
		t.Errorf("unknown phase should use the initial pool, got %q", got)
	}
}

func TestNextStageGuidance(t *testing.T) {
	lib := NewLibrary()
	if lib.NextStageGuidance(models.Phase("x")) != lib.NextStageGuidance(models.PhaseInitial) {
		t.Errorf("unknown phase should fall back to initial guidance")
	}
	if lib.NextStageGuidance(models.PhaseChildhood) == lib.NextStageGuidance(models.PhaseHealing) {
		t.Errorf("expected distinct guidance per phase")
	}
}

func TestEveryPhaseHasTwoToThreePhrasesPerTechnique(t *testing.T) {
	lib := NewLibrary()
	for _, p := range models.Phases {
		techniques := lib.Techniques(p)
		if len(techniques) == 0 {
			t.Errorf("phase %s has no techniques", p)
		}
		for _, tech := range techniques {
			if n := len(lib.Phrases(p, tech)); n < 2 || n > 3 {
				t.Errorf("%s/%s has %d phrases", p, tech, n)
			}
		}
	}
}
