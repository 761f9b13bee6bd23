package loop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/Skopos/internal/genai"
	"github.com/BTreeMap/Skopos/internal/models"
)

// Detection defaults.
const (
	DefaultThreshold = 0.70
	DefaultMinTurns  = 4
	DefaultWindow    = 3
)

const analysisSystemPrompt = "你是一個專業的對話品質分析師。請分析以下對話是否出現了回應迴圈。"

const analysisTemplate = `最近的 AI 回應：
%s

新的 AI 回應：
%s

請分析：
1. 新回應與最近回應在語義上是否重複？
2. 是否出現了相同的問題模式？
3. 療癒師是否陷入重複的引導方式？

請只回答 "是" 或 "否"，並簡短說明原因（不超過20字）。
格式：是/否 - 原因`

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithThreshold sets the similarity above which a reply counts as repeated.
func WithThreshold(t float64) DetectorOption {
	return func(d *Detector) { d.threshold = t }
}

// WithMinTurns sets how many turns a session needs before detection runs.
func WithMinTurns(n int) DetectorOption {
	return func(d *Detector) { d.minTurns = n }
}

// WithWindow sets how many recent assistant replies are compared.
func WithWindow(n int) DetectorOption {
	return func(d *Detector) { d.window = n }
}

// Detector compares a candidate reply against the latest assistant replies.
type Detector struct {
	threshold float64
	minTurns  int
	window    int
}

// NewDetector creates a detector with the default threshold, minimum turns and window.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{threshold: DefaultThreshold, minTurns: DefaultMinTurns, window: DefaultWindow}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectLocal runs the edit-distance check only.
func (d *Detector) DetectLocal(turns []models.Turn, candidate string) models.LoopVerdict {
	verdict := models.LoopVerdict{Source: models.LoopSourceLocal}
	if len(turns) < d.minTurns {
		return verdict
	}
	recent := models.RecentAssistantReplies(turns, d.window)
	if len(recent) == 0 {
		return verdict
	}
	cand := Normalize(candidate)
	best := 0.0
	for _, prev := range recent {
		if s := CalculateSimilarity(cand, Normalize(prev)); s > best {
			best = s
		}
	}
	verdict.Similarity = best
	verdict.IsLoop = best > d.threshold
	return verdict
}

// Detect runs the local check and, when it flags a loop and gen is non-nil, asks the remote
// service to confirm. A failed or unparseable confirmation keeps the local verdict with
// FallbackUsed set. A nil gen means no credential is configured.
func (d *Detector) Detect(ctx context.Context, turns []models.Turn, candidate string, gen genai.Generator) models.LoopVerdict {
	local := d.DetectLocal(turns, candidate)
	if !local.IsLoop {
		return local
	}
	slog.Debug("loop.Detector.Detect: local similarity flagged loop", "similarity", local.Similarity)

	if gen == nil {
		local.FallbackUsed = true
		return local
	}

	recent := models.RecentAssistantReplies(turns, d.window)
	answer, err := gen.GeneratePromptWithContext(ctx, analysisSystemPrompt, buildAnalysisPrompt(recent, candidate))
	if err != nil {
		slog.Warn("loop.Detector.Detect: remote confirmation failed, using local verdict", "error", err)
		local.FallbackUsed = true
		return local
	}
	isLoop, ok := parseAnswer(answer)
	if !ok {
		slog.Warn("loop.Detector.Detect: unparseable remote answer, using local verdict", "answer", answer)
		local.FallbackUsed = true
		return local
	}
	slog.Debug("loop.Detector.Detect: remote confirmation", "isLoop", isLoop, "analysis", answer)
	return models.LoopVerdict{
		IsLoop:     isLoop,
		Similarity: local.Similarity,
		Analysis:   answer,
		Source:     models.LoopSourceSemantic,
	}
}

func buildAnalysisPrompt(recent []string, candidate string) string {
	lines := make([]string, len(recent))
	for i, r := range recent {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r)
	}
	return fmt.Sprintf(analysisTemplate, strings.Join(lines, "\n"), candidate)
}

// parseAnswer reads a "是/否 - 原因" answer. ok is false when neither form leads the text.
func parseAnswer(answer string) (isLoop bool, ok bool) {
	a := strings.ToLower(strings.TrimLeft(strings.TrimSpace(answer), "\"'「『*"))
	switch {
	case strings.HasPrefix(a, "是"), strings.HasPrefix(a, "yes"):
		return true, true
	case strings.HasPrefix(a, "否"), strings.HasPrefix(a, "不是"), strings.HasPrefix(a, "no"):
		return false, true
	default:
		return false, false
	}
}
