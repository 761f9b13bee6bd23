package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/Skopos/internal/assess"
	"github.com/BTreeMap/Skopos/internal/genai"
	"github.com/BTreeMap/Skopos/internal/guidance"
	"github.com/BTreeMap/Skopos/internal/models"
)

// Strategy names how a replacement reply was produced.
type Strategy string

const (
	StrategySelfAwareness Strategy = "self_awareness_guidance"
	StrategyRemote        Strategy = "remote_paraphrase"
	StrategyStatic        Strategy = "static_pool"
)

const paraphraseSystemPrompt = "你是專業的心理療癒師，專精薩提爾冰山理論。剛才的回應可能過於重複，請生成一個引導用戶深入下一層體驗的回應。"

const paraphraseTemplate = `原始回應：%s
用戶輸入：%s
當前階段：%s

根據薩提爾冰山理論，請：
%s

要求：
1. 完全不同於原始回應的措辭
2. 引導用戶進入更深層的體驗
3. 使用溫暖、邀請性的語調
4. 簡潔有力（不超過35字）

請生成一個能引導用戶深入內在探索的回應：`

// Replacement is a reply generated to break a loop.
type Replacement struct {
	Text     string
	Strategy Strategy
	// Technique is set when the text came from the guidance library.
	Technique models.Technique
}

// AntiLoop produces replacement replies when a loop is detected.
type AntiLoop struct {
	analyzer *assess.Analyzer
	library  *guidance.Library
}

// NewAntiLoop creates a generator over the given analyzer and guidance library.
func NewAntiLoop(analyzer *assess.Analyzer, library *guidance.Library) *AntiLoop {
	if analyzer == nil {
		analyzer = assess.NewAnalyzer(nil)
	}
	if library == nil {
		library = guidance.NewLibrary()
	}
	return &AntiLoop{analyzer: analyzer, library: library}
}

// Generate replaces original. A user message that needs self-awareness guidance always gets a
// guidance-library phrase. Otherwise gen, when non-nil, paraphrases toward the next layer; a
// missing generator or a failed call uses the static pool for the phase.
func (a *AntiLoop) Generate(ctx context.Context, original string, phase models.Phase, userText string, gen genai.Generator) Replacement {
	q := a.analyzer.CheckQuality(userText, phase)
	if q.NeedsSelfAwarenessGuidance {
		sel := a.library.SelectForQuality(phase, q)
		slog.Debug("loop.AntiLoop.Generate: using self-awareness guidance", "phase", phase, "technique", sel.Technique)
		return Replacement{Text: sel.Phrase, Strategy: StrategySelfAwareness, Technique: sel.Technique}
	}

	if gen != nil {
		prompt := fmt.Sprintf(paraphraseTemplate, original, userText, phase.DisplayName(), a.library.NextStageGuidance(phase))
		text, err := gen.GeneratePromptWithContext(ctx, paraphraseSystemPrompt, prompt)
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return Replacement{Text: text, Strategy: StrategyRemote}
		}
		slog.Warn("loop.AntiLoop.Generate: remote paraphrase failed, using static pool", "phase", phase, "error", err)
	}

	return Replacement{Text: a.library.DeepenPhrase(phase), Strategy: StrategyStatic}
}
