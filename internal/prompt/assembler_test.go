package prompt

import (
	"strings"
	"testing"

	"github.com/BTreeMap/Skopos/internal/guidance"
	"github.com/BTreeMap/Skopos/internal/models"
)

func turns(pairs ...string) []models.Turn {
	var out []models.Turn
	for i, text := range pairs {
		speaker := models.SpeakerUser
		if i%2 == 1 {
			speaker = models.SpeakerAssistant
		}
		out = append(out, models.Turn{Speaker: speaker, Text: text})
	}
	return out
}

func TestBuildInitialHasPersonaAndUserText(t *testing.T) {
	a := NewAssembler(nil, nil)
	out := a.Build(models.PhaseInitial, "我今天跟同事吵架了，心裡很不舒服", nil)
	if !strings.HasPrefix(out, baseContext) {
		t.Errorf("expected persona preamble first")
	}
	if !strings.Contains(out, "目前階段：初始探索（表層→感受）") {
		t.Errorf("expected initial stage label")
	}
	if !strings.Contains(out, "\"我今天跟同事吵架了，心裡很不舒服\"") {
		t.Errorf("expected quoted user text")
	}
	if strings.Contains(out, "防迴圈指引") {
		t.Errorf("anti-loop directive must not appear without history")
	}
}

func TestBuildUnknownPhaseUsesInitialTemplate(t *testing.T) {
	a := NewAssembler(nil, nil)
	if out := a.Build(models.Phase("void"), "我很難過也很委屈", nil); !strings.Contains(out, "初始探索") {
		t.Errorf("unknown phase should render the initial template")
	}
}

func TestRelevanceOnlyWithPriorAssistantReply(t *testing.T) {
	a := NewAssembler(nil, nil)
	text := "我在想明天要去看什麼電影比較好"
	if out := a.Build(models.PhaseExploring, text, nil); strings.Contains(out, relevanceWarning) {
		t.Errorf("relevance warning requires a previous assistant reply")
	}
	asm := a.Assemble(models.PhaseExploring, text, turns("我很難過", "這份難過在哪裡？"))
	if !strings.Contains(asm.Text, relevanceWarning) || asm.Relevance.IsRelevant {
		t.Errorf("expected relevance warning, got %+v", asm.Relevance)
	}
}

func TestAnnotationOrder(t *testing.T) {
	a := NewAssembler(nil, nil)
	// details ("然後"), avoidance ("算了"), irrelevant ("工作"), habitual reaction ("總是")
	text := "工作上然後又被罵，我總是算了"
	hist := turns("u1", "a1", "u2", "a2")
	out := a.Build(models.PhaseInitial, text, hist)

	markers := []string{relevanceWarning, detailWarning, avoidanceWarning, "🧭 自我覺察引導", "慣性反應模式", "🎯 核心原則：\n1. 先了解具體情況", "⚠️ 防迴圈指引"}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		if idx < 0 {
			t.Fatalf("missing annotation %q in:\n%s", m, out)
		}
		if idx <= last {
			t.Errorf("annotation %q out of order", m)
		}
		last = idx
	}
	if strings.Contains(out, "情緒觸發循環") || strings.Contains(out, "行為模式循環") {
		t.Errorf("only the fired sub-type should be listed")
	}
	if strings.Contains(out, chooseOneTechnique) {
		t.Errorf("choose-one line is only for awareness without automatic reactions")
	}
}

func TestSelfAwarenessWithoutReactions(t *testing.T) {
	a := NewAssembler(nil, nil)
	out := a.Build(models.PhaseInitial, "我很茫然，說不出來是什麼", nil)
	if !strings.Contains(out, "🧭 自我覺察引導") || !strings.HasSuffix(out, chooseOneTechnique) {
		t.Errorf("expected awareness block closing with the choose-one line:\n%s", out)
	}
	if strings.Contains(out, automaticReactionHeader) {
		t.Errorf("no automatic-reaction sub-block expected")
	}
}

func TestAntiLoopDirectiveUsesNextStageGuidance(t *testing.T) {
	lib := guidance.NewLibrary()
	a := NewAssembler(nil, lib)
	out := a.Build(models.PhaseChildhood, "我想起小時候一個人在家", turns("u1", "a1", "u2", "a2"))
	if !strings.Contains(out, lib.NextStageGuidance(models.PhaseChildhood)) {
		t.Errorf("expected childhood next-stage guidance in directive")
	}
}

func TestHistoryWindowAndTruncation(t *testing.T) {
	a := NewAssembler(nil, nil)
	long := strings.Repeat("很", 100)
	hist := turns("第一句", "第二句", "第三句", long, "第五句")
	got := a.FormatHistory(hist)
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 history lines, got %d:\n%s", len(lines), got)
	}
	if lines[0] != "assistant: 第二句" {
		t.Errorf("expected oldest kept turn to be the second, got %q", lines[0])
	}
	if lines[2] != "assistant: "+strings.Repeat("很", 80) {
		t.Errorf("expected truncation to 80 runes, got %q", lines[2])
	}

	out := a.Build(models.PhaseHealing, "我感謝自己", hist)
	if !strings.Contains(out, "最近對話：\nassistant: 第二句") {
		t.Errorf("expected history in non-initial template")
	}
	if strings.Contains(a.Build(models.PhaseInitial, "我感謝自己", hist), "最近對話") {
		t.Errorf("initial template does not quote history")
	}
}

func TestWithHistoryOption(t *testing.T) {
	a := NewAssembler(nil, nil, WithHistory(2, 3), WithAntiLoopMinTurns(10))
	got := a.FormatHistory(turns("一二三四", "五六七八", "九十"))
	if got != "assistant: 五六七\nuser: 九十" {
		t.Errorf("unexpected history %q", got)
	}
	if strings.Contains(a.Build(models.PhaseInitial, "我很難過很難過", turns("1", "2", "3", "4")), "防迴圈指引") {
		t.Errorf("anti-loop threshold option ignored")
	}
}
