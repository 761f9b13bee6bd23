// Package assess derives per-turn quality and relevance signals from classifier output.
package assess

import (
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/Skopos/internal/classify"
	"github.com/BTreeMap/Skopos/internal/models"
)

// MinMessageRunes is the trimmed length below which a message is flagged too short.
const MinMessageRunes = 8

// Analyzer computes quality and relevance assessments. It holds no mutable state.
type Analyzer struct {
	classifier *classify.Classifier
}

// NewAnalyzer creates an analyzer backed by the given classifier.
func NewAnalyzer(c *classify.Classifier) *Analyzer {
	if c == nil {
		c = classify.NewDefault()
	}
	return &Analyzer{classifier: c}
}

// CheckQuality inspects a user message. The phase is accepted for symmetry with the
// prompt assembler but does not influence the result.
func (a *Analyzer) CheckQuality(text string, phase models.Phase) models.QualityAssessment {
	issues := []models.QualityIssue{}
	if a.classifier.Matches(text, models.CategoryDetails) {
		issues = append(issues, models.IssueTooDetailed)
	}
	if a.classifier.Matches(text, models.CategoryAvoidance) {
		issues = append(issues, models.IssueAvoidingExperience)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinMessageRunes {
		issues = append(issues, models.IssueTooShort)
	}

	lacksAwareness := a.classifier.Matches(text, models.CategoryLackSelfAwareness)
	reactions := a.DetectAutomaticReactions(text)

	q := models.QualityAssessment{
		Issues:                     issues,
		LacksAwareness:             lacksAwareness,
		NeedsSelfAwarenessGuidance: lacksAwareness || reactions.StuckInLoop,
		AutomaticReactionDetection: reactions,
	}
	q.NeedsExperienceRedirect = q.HasIssue(models.IssueTooDetailed)
	q.IsAvoidingExperience = q.HasIssue(models.IssueAvoidingExperience)
	return q
}

// DetectAutomaticReactions runs the three automatic-reaction checks.
func (a *Analyzer) DetectAutomaticReactions(text string) models.AutomaticReactionDetection {
	d := models.AutomaticReactionDetection{
		HasAutomaticReactions: a.classifier.Matches(text, models.CategoryAutomaticReactions),
		HasEmotionalTriggers:  a.classifier.Matches(text, models.CategoryEmotionalTriggers),
		HasBehaviorPatterns:   a.classifier.Matches(text, models.CategoryBehaviorPatterns),
	}
	d.StuckInLoop = d.HasAutomaticReactions || d.HasEmotionalTriggers || d.HasBehaviorPatterns
	d.NeedsPatternInterruption = d.StuckInLoop
	return d
}

// CheckRelevance flags messages that drift to clearly unrelated topics.
func (a *Analyzer) CheckRelevance(text string) models.RelevanceAssessment {
	off := a.classifier.Matches(text, models.CategoryIrrelevant)
	return models.RelevanceAssessment{
		IsRelevant:       !off,
		NeedsRedirection: off,
	}
}
