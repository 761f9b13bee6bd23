// Package prompt assembles the instruction text sent to the remote generation service.
package prompt

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/Skopos/internal/assess"
	"github.com/BTreeMap/Skopos/internal/guidance"
	"github.com/BTreeMap/Skopos/internal/models"
)

// Assembly defaults.
const (
	DefaultHistoryTurns     = 4
	DefaultHistoryRunes     = 80
	DefaultAntiLoopMinTurns = 4
)

// Assembly is an instruction together with the assessments that shaped it.
type Assembly struct {
	Text      string
	Quality   models.QualityAssessment
	Relevance models.RelevanceAssessment
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithHistory sets how many recent turns are quoted and the rune budget per turn.
func WithHistory(turns, runes int) Option {
	return func(a *Assembler) {
		a.historyTurns = turns
		a.historyRunes = runes
	}
}

// WithAntiLoopMinTurns sets the session length from which the anti-loop directive is added.
func WithAntiLoopMinTurns(n int) Option {
	return func(a *Assembler) { a.antiLoopMinTurns = n }
}

// Assembler builds phase instructions. It is stateless and safe for concurrent use.
type Assembler struct {
	analyzer         *assess.Analyzer
	library          *guidance.Library
	historyTurns     int
	historyRunes     int
	antiLoopMinTurns int
}

// NewAssembler creates an assembler. Nil collaborators use the built-in defaults.
func NewAssembler(analyzer *assess.Analyzer, library *guidance.Library, opts ...Option) *Assembler {
	if analyzer == nil {
		analyzer = assess.NewAnalyzer(nil)
	}
	if library == nil {
		library = guidance.NewLibrary()
	}
	a := &Assembler{
		analyzer:         analyzer,
		library:          library,
		historyTurns:     DefaultHistoryTurns,
		historyRunes:     DefaultHistoryRunes,
		antiLoopMinTurns: DefaultAntiLoopMinTurns,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build returns the instruction for the user's latest message.
func (a *Assembler) Build(phase models.Phase, userText string, history []models.Turn) string {
	return a.Assemble(phase, userText, history).Text
}

// Assemble builds the instruction and returns the assessments used for its annotations.
// history is the session before the current user message.
func (a *Assembler) Assemble(phase models.Phase, userText string, history []models.Turn) Assembly {
	phase = phase.Normalize()
	quality := a.analyzer.CheckQuality(userText, phase)

	relevance := models.RelevanceAssessment{IsRelevant: true}
	if len(models.RecentAssistantReplies(history, 1)) > 0 {
		relevance = a.analyzer.CheckRelevance(userText)
	}

	var b strings.Builder
	b.WriteString(a.body(phase, userText, history))

	if !relevance.IsRelevant {
		b.WriteString(relevanceWarning)
	}
	if quality.NeedsExperienceRedirect {
		b.WriteString(detailWarning)
	}
	if quality.IsAvoidingExperience {
		b.WriteString(avoidanceWarning)
	}
	if quality.NeedsSelfAwarenessGuidance {
		b.WriteString(selfAwarenessBlock)
		writeReactionBlock(&b, quality.AutomaticReactionDetection)
	}
	if len(history) >= a.antiLoopMinTurns {
		fmt.Fprintf(&b, antiLoopDirective, a.library.NextStageGuidance(phase))
	}

	return Assembly{Text: b.String(), Quality: quality, Relevance: relevance}
}

func writeReactionBlock(b *strings.Builder, d models.AutomaticReactionDetection) {
	if !d.StuckInLoop {
		b.WriteString(chooseOneTechnique)
		return
	}
	b.WriteString(automaticReactionHeader)
	if d.HasAutomaticReactions {
		b.WriteString(habitualReactionNote)
	}
	if d.HasEmotionalTriggers {
		b.WriteString(emotionalTriggerNote)
	}
	if d.HasBehaviorPatterns {
		b.WriteString(behaviorPatternNote)
	}
	b.WriteString(automaticReactionPrinciples)
}

func (a *Assembler) body(phase models.Phase, userText string, history []models.Turn) string {
	tpl := templates[phase]

	var b strings.Builder
	b.WriteString(baseContext)
	fmt.Fprintf(&b, "\n\n目前階段：%s\n%s：\"%s\"\n", tpl.stage, tpl.inputLabel, userText)
	if tpl.withHistory {
		if h := a.FormatHistory(history); h != "" {
			fmt.Fprintf(&b, "\n最近對話：\n%s\n", h)
		}
	}
	b.WriteString("\n薩提爾冰山引導方向：\n")
	for _, d := range tpl.directions {
		fmt.Fprintf(&b, "□ %s\n", d)
	}
	b.WriteString("\n請你：\n")
	for i, ask := range tpl.asks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ask)
	}
	fmt.Fprintf(&b, "\n回應要求：%s", tpl.requirement)
	return b.String()
}

// FormatHistory renders the last turns as "speaker: text" lines, each text cut to the rune budget.
func (a *Assembler) FormatHistory(history []models.Turn) string {
	start := len(history) - a.historyTurns
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, len(history)-start)
	for _, t := range history[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Speaker, models.Truncate(t.Text, a.historyRunes)))
	}
	return strings.Join(lines, "\n")
}
