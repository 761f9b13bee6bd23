package guidance

import (
	"log/slog"

	"github.com/BTreeMap/Skopos/internal/models"
)

// Selection is the outcome of a guidance draw.
type Selection struct {
	Technique models.Technique `json:"technique,omitempty"`
	Phrase    string           `json:"phrase"`
	// Fallback is set when the draw had to leave the preferred techniques.
	Fallback bool `json:"fallback"`
}

// reactionPreferences lists, per automatic-reaction sub-type, the specific techniques to try
// first and the generic technique used when no fired sub-type has a specific one.
//
// Sub-types are resolved in the fixed order habitual > emotional trigger > behavior pattern
// when a message matches several of them. That order is a product policy, not a clinical rule.
var reactionPreferences = []struct {
	fired    func(models.AutomaticReactionDetection) bool
	specific []models.Technique
	generic  models.Technique
}{
	{
		fired:    func(d models.AutomaticReactionDetection) bool { return d.HasAutomaticReactions },
		specific: []models.Technique{models.TechniquePatternInterruption, models.TechniqueAutomaticAwareness},
		generic:  models.TechniqueBodyFocus,
	},
	{
		fired:    func(d models.AutomaticReactionDetection) bool { return d.HasEmotionalTriggers },
		specific: []models.Technique{models.TechniqueTriggerAwareness, models.TechniquePatternExploration},
		generic:  models.TechniqueEmotionBasic,
	},
	{
		fired:    func(d models.AutomaticReactionDetection) bool { return d.HasBehaviorPatterns },
		specific: []models.Technique{models.TechniquePatternExploration, models.TechniqueEarlyPatterns},
		generic:  models.TechniqueSensation,
	},
}

// genericTechniques are tried when nothing more specific resolves.
var genericTechniques = []models.Technique{models.TechniqueBodyFocus, models.TechniqueEmotionBasic}

// Select picks a guidance phrase for the phase.
//
// Priority: an automatic-reaction loop chooses the technique matching the sub-type that fired;
// otherwise a requested technique is used when the phase defines it; otherwise a technique is
// drawn uniformly. The phrase is drawn uniformly from the chosen technique. Select never fails:
// when nothing resolves it walks the generic techniques, then any phrase of the phase, then any
// phrase in the library, and finally returns MinimalPhrase.
func (l *Library) Select(phase models.Phase, requested models.Technique, reactions *models.AutomaticReactionDetection) Selection {
	phase = phase.Normalize()

	if reactions != nil && reactions.StuckInLoop {
		var generic models.Technique
		for _, pref := range reactionPreferences {
			if !pref.fired(*reactions) {
				continue
			}
			for _, t := range pref.specific {
				if l.Has(phase, t) {
					return l.draw(phase, t, false)
				}
			}
			if generic == "" {
				generic = pref.generic
			}
		}
		if generic != "" && l.Has(phase, generic) {
			return l.draw(phase, generic, true)
		}
		slog.Debug("guidance.Select: no reaction-specific technique for phase", "phase", phase)
		return l.fallback(phase)
	}

	if requested != "" && l.Has(phase, requested) {
		return l.draw(phase, requested, false)
	}

	if techniques := l.order[phase]; len(techniques) > 0 {
		return l.draw(phase, techniques[l.rng.IntN(len(techniques))], false)
	}
	return l.fallback(phase)
}

// SelectForQuality selects guidance using a quality assessment's automatic-reaction data.
func (l *Library) SelectForQuality(phase models.Phase, q models.QualityAssessment) Selection {
	d := q.AutomaticReactionDetection
	return l.Select(phase, "", &d)
}

func (l *Library) fallback(phase models.Phase) Selection {
	for _, t := range genericTechniques {
		if l.Has(phase, t) {
			return l.draw(phase, t, true)
		}
	}
	if techniques := l.order[phase]; len(techniques) > 0 {
		return l.draw(phase, techniques[l.rng.IntN(len(techniques))], true)
	}
	for _, p := range models.Phases {
		for _, t := range l.order[p] {
			return l.draw(p, t, true)
		}
	}
	slog.Warn("guidance.Select: library empty, using minimal phrase", "phase", phase)
	return Selection{Phrase: MinimalPhrase, Fallback: true}
}

func (l *Library) draw(phase models.Phase, technique models.Technique, fallback bool) Selection {
	phrases := l.index[phase][technique]
	if len(phrases) == 0 {
		return Selection{Phrase: MinimalPhrase, Fallback: true}
	}
	return Selection{
		Technique: technique,
		Phrase:    phrases[l.rng.IntN(len(phrases))],
		Fallback:  fallback,
	}
}
