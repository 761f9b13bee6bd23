package assess

import (
	"testing"

	"github.com/BTreeMap/Skopos/internal/classify"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestCheckQualityShortAvoidance(t *testing.T) {
	a := NewAnalyzer(classify.NewDefault())
	q := a.CheckQuality("不知道", models.PhaseInitial)
	if !q.HasIssue(models.IssueTooShort) {
		t.Errorf("expected too_short, got %v", q.Issues)
	}
	if !q.HasIssue(models.IssueAvoidingExperience) || !q.IsAvoidingExperience {
		t.Errorf("expected avoiding_experience, got %v", q.Issues)
	}
	if q.HasIssue(models.IssueTooDetailed) {
		t.Errorf("did not expect too_detailed")
	}
}

func TestCheckQualityAutomaticReaction(t *testing.T) {
	a := NewAnalyzer(nil)
	q := a.CheckQuality("我每次都這樣反應", models.PhaseExploring)
	if !q.NeedsSelfAwarenessGuidance {
		t.Errorf("expected self-awareness guidance")
	}
	want := models.AutomaticReactionDetection{
		HasAutomaticReactions:    true,
		StuckInLoop:              true,
		NeedsPatternInterruption: true,
	}
	if diff := cmp.Diff(want, q.AutomaticReactionDetection); diff != "" {
		t.Errorf("detection mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckQualityLacksAwareness(t *testing.T) {
	a := NewAnalyzer(nil)
	q := a.CheckQuality("我現在腦袋一片空白，完全說不出來", models.PhaseInitial)
	if !q.LacksAwareness || !q.NeedsSelfAwarenessGuidance {
		t.Errorf("expected lack of awareness to gate guidance: %+v", q)
	}
	if q.AutomaticReactionDetection.StuckInLoop {
		t.Errorf("did not expect automatic reactions")
	}
}

func TestCheckQualityDetails(t *testing.T) {
	a := NewAnalyzer(nil)
	q := a.CheckQuality("我先去了公司，然後老闆叫我過去，接著開始罵人", models.PhaseInitial)
	if !q.NeedsExperienceRedirect || !q.HasIssue(models.IssueTooDetailed) {
		t.Errorf("expected too_detailed, got %v", q.Issues)
	}
	if q.HasIssue(models.IssueTooShort) {
		t.Errorf("long message flagged too short")
	}
}

func TestCheckQualityTrimmedLength(t *testing.T) {
	a := NewAnalyzer(nil)
	// seven runes padded with whitespace
	q := a.CheckQuality("   我心裡有點悶悶   ", models.PhaseInitial)
	if !q.HasIssue(models.IssueTooShort) {
		t.Errorf("expected too_short after trimming")
	}
	q = a.CheckQuality("我心裡有點悶悶的", models.PhaseInitial)
	if q.HasIssue(models.IssueTooShort) {
		t.Errorf("eight runes should not be too short")
	}
}

func TestDetectAutomaticReactionsAllTypes(t *testing.T) {
	a := NewAnalyzer(nil)
	d := a.DetectAutomaticReactions("我總是一生氣就重複同樣的模式")
	if !d.HasAutomaticReactions || !d.HasEmotionalTriggers || !d.HasBehaviorPatterns || !d.StuckInLoop {
		t.Errorf("expected all sub-types, got %+v", d)
	}
}

func TestCheckRelevance(t *testing.T) {
	a := NewAnalyzer(nil)
	if r := a.CheckRelevance("今天天氣真好，想去看電影"); r.IsRelevant || !r.NeedsRedirection {
		t.Errorf("expected irrelevant message, got %+v", r)
	}
	if r := a.CheckRelevance("我覺得很孤單"); !r.IsRelevant || r.NeedsRedirection {
		t.Errorf("expected relevant message, got %+v", r)
	}
}
