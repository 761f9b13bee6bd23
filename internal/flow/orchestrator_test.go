package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/Skopos/internal/genai"
	"github.com/BTreeMap/Skopos/internal/guidance"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/store"
)

// scriptedGenerator answers by the kind of request it receives.
type scriptedGenerator struct {
	mu         sync.Mutex
	reply      string
	replyErr   error
	analysis   string
	paraphrase string
	prompts    []string
}

func (g *scriptedGenerator) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, user)
	switch {
	case strings.Contains(system, "對話品質分析師"):
		return g.analysis, nil
	case strings.Contains(system, "薩提爾冰山理論"):
		return g.paraphrase, nil
	default:
		return g.reply, g.replyErr
	}
}

// staticResolver hands out gen for any credential, or nothing when gen is nil.
type staticResolver struct {
	gen         genai.Generator
	credentials []string
}

func (r *staticResolver) Resolve(ctx context.Context, credential string) (genai.Generator, bool) {
	r.credentials = append(r.credentials, credential)
	if r.gen == nil {
		return nil, false
	}
	return r.gen, true
}

func newTestOrchestrator(t *testing.T, limit int, opts ...Option) (*Orchestrator, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewOrchestrator(NewStoreBasedStateManager(st, limit), st, opts...), st
}

func TestProcessTurnRejectsEmptyMessage(t *testing.T) {
	o, _ := newTestOrchestrator(t, 0)
	if _, err := o.ProcessTurn(context.Background(), "s-1", "   \n", ""); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := o.ProcessTurn(context.Background(), "bad id", "我很難過", ""); !errors.Is(err, models.ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestProcessTurnWithoutCredentialReturnsInstruction(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, 0)

	res, err := o.ProcessTurn(ctx, "s-1", "我覺得很難過", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Enabled || res.Reply != "" || res.Instruction == "" {
		t.Fatalf("expected instruction-only result, got %+v", res)
	}
	if res.PreviousPhase != models.PhaseInitial || res.Phase != models.PhaseExploring || !res.PhaseChanged() {
		t.Errorf("expected transition to exploring, got %q -> %q", res.PreviousPhase, res.Phase)
	}
	if !strings.Contains(res.Instruction, "我覺得很難過") {
		t.Errorf("instruction should quote the user message")
	}
	if res.UsageCount != 1 {
		t.Errorf("expected usage 1, got %d", res.UsageCount)
	}

	done, err := o.CompleteTurn(ctx, "s-1", "這份難過在身體哪裡？", "")
	if err != nil {
		t.Fatal(err)
	}
	if done.Reply != "這份難過在身體哪裡？" || done.Loop == nil || done.Loop.IsLoop {
		t.Errorf("unexpected completion %+v", done)
	}

	s, err := o.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 || s.Turns[0].Speaker != models.SpeakerUser || s.Turns[1].Speaker != models.SpeakerAssistant {
		t.Errorf("unexpected turns %+v", s.Turns)
	}
	if _, err := o.CompleteTurn(ctx, "s-1", "又一個回覆", ""); !errors.Is(err, ErrNoPendingTurn) {
		t.Errorf("expected ErrNoPendingTurn, got %v", err)
	}
	if _, err := o.CompleteTurn(ctx, "missing", "回覆", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestProcessTurnDisabled(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, 0)
	if err := o.SetHealingMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	res, err := o.ProcessTurn(ctx, "s-1", "我覺得很難過", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Enabled || res.Instruction != "" || res.Reply != "" {
		t.Errorf("expected disabled result, got %+v", res)
	}
	if res.Phase != models.PhaseInitial {
		t.Errorf("phase must not change while disabled")
	}
	s, _ := o.GetSession(ctx, "s-1")
	if s.Len() != 1 || s.UsageCount != 0 {
		t.Errorf("expected stored user turn without usage, got %+v", s)
	}
}

func TestHealingModeDefaultsToEnabled(t *testing.T) {
	o, _ := newTestOrchestrator(t, 0)
	status, err := o.HealingMode(context.Background())
	if err != nil || !status.Enabled {
		t.Errorf("expected enabled by default, got %+v (%v)", status, err)
	}
}

func TestProcessTurnUsageLimit(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, 2)
	for i := 0; i < 2; i++ {
		if _, err := o.ProcessTurn(ctx, "s-1", "我很難過", ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := o.ProcessTurn(ctx, "s-1", "我很難過", ""); !errors.Is(err, ErrUsageLimitReached) {
		t.Errorf("expected ErrUsageLimitReached, got %v", err)
	}
	if _, err := o.ProcessTurn(ctx, "s-2", "我很難過", ""); err != nil {
		t.Errorf("limit is per session: %v", err)
	}
}

func TestProcessTurnGeneratesReply(t *testing.T) {
	gen := &scriptedGenerator{reply: "  你現在身體哪裡感覺最明顯？ "}
	resolver := &staticResolver{gen: gen}
	o, _ := newTestOrchestrator(t, 0, WithResolver(resolver))

	res, err := o.ProcessTurn(context.Background(), "s-1", "我覺得很難過", "user-key")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "你現在身體哪裡感覺最明顯？" || res.OriginalReply != "" {
		t.Errorf("unexpected reply %+v", res)
	}
	if len(gen.prompts) != 1 || gen.prompts[0] != res.Instruction {
		t.Errorf("expected the instruction to be sent to the generator")
	}
	if len(resolver.credentials) != 1 || resolver.credentials[0] != "user-key" {
		t.Errorf("expected per-call credential to reach the resolver, got %v", resolver.credentials)
	}
}

func TestProcessTurnRemoteFailureUsesGuidance(t *testing.T) {
	gen := &scriptedGenerator{replyErr: errors.New("503 service unavailable")}
	lib := guidance.NewLibrary()
	o, _ := newTestOrchestrator(t, 0, WithResolver(&staticResolver{gen: gen}), WithLibrary(lib))

	res, err := o.ProcessTurn(context.Background(), "s-1", "我覺得很難過", "")
	if err != nil {
		t.Fatalf("remote failure must not surface: %v", err)
	}
	if strings.TrimSpace(res.Reply) == "" {
		t.Fatalf("expected a local fallback reply")
	}
	found := false
	for _, tech := range lib.Techniques(res.Phase) {
		for _, p := range lib.Phrases(res.Phase, tech) {
			if p == res.Reply {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("fallback reply %q is not a guidance phrase for %q", res.Reply, res.Phase)
	}
}

func TestProcessTurnReplacesLoopingReply(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{reply: "感覺如何？", analysis: "是 - 重複詢問感受", paraphrase: "此刻胸口的悶，像在說些什麼？"}
	o, _ := newTestOrchestrator(t, 0, WithResolver(&staticResolver{gen: gen}))

	var res models.TurnResult
	for i := 0; i < 3; i++ {
		var err error
		res, err = o.ProcessTurn(ctx, "s-1", "我覺得胸口很悶很難受", "")
		if err != nil {
			t.Fatal(err)
		}
		if i < 2 && res.Loop.IsLoop {
			t.Fatalf("turn %d flagged as loop too early", i+1)
		}
	}
	if res.Loop == nil || !res.Loop.IsLoop || res.Loop.Source != models.LoopSourceSemantic {
		t.Fatalf("expected confirmed loop, got %+v", res.Loop)
	}
	if res.OriginalReply != "感覺如何？" || res.Reply != "此刻胸口的悶，像在說些什麼？" {
		t.Errorf("expected paraphrased replacement, got %+v", res)
	}
	s, _ := o.GetSession(ctx, "s-1")
	if last := s.Turns[s.Len()-1]; last.Text != res.Reply {
		t.Errorf("stored reply %q does not match returned reply", last.Text)
	}
}

func TestCompleteTurnLoopWithoutCredentialUsesStaticPool(t *testing.T) {
	ctx := context.Background()
	lib := guidance.NewLibrary()
	o, _ := newTestOrchestrator(t, 0, WithLibrary(lib))

	var res models.TurnResult
	for i := 0; i < 3; i++ {
		if _, err := o.ProcessTurn(ctx, "s-1", "我覺得胸口很悶很難受", ""); err != nil {
			t.Fatal(err)
		}
		var err error
		if res, err = o.CompleteTurn(ctx, "s-1", "感覺如何？", ""); err != nil {
			t.Fatal(err)
		}
	}
	if !res.Loop.IsLoop || !res.Loop.FallbackUsed || res.Loop.Similarity < 0.70 {
		t.Fatalf("expected local loop verdict with fallback, got %+v", res.Loop)
	}
	pool := lib.DeepenPool(res.Phase)
	found := false
	for _, p := range pool {
		if p == res.Reply {
			found = true
		}
	}
	if !found {
		t.Errorf("replacement %q not drawn from the static pool", res.Reply)
	}
}

func TestProcessTurnSerializesSession(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.ProcessTurn(ctx, "s-1", "我覺得很難過", ""); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	s, err := o.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 20 || s.UsageCount != 20 {
		t.Errorf("expected 20 serialized turns, got %d turns and usage %d", s.Len(), s.UsageCount)
	}
	if n := o.locks.len(); n != 0 {
		t.Errorf("expected lock entries to be released, %d left", n)
	}
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, 0)
	if _, err := o.ProcessTurn(ctx, "s-1", "我很難過", ""); err != nil {
		t.Fatal(err)
	}
	if err := o.ResetSession(ctx, "s-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.GetSession(ctx, "s-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after reset, got %v", err)
	}
}

func TestGreeting(t *testing.T) {
	o, _ := newTestOrchestrator(t, 0)
	if o.Greeting() != "最近有什麼讓您感到困擾的事件或行為嗎？" {
		t.Errorf("unexpected greeting %q", o.Greeting())
	}
}
