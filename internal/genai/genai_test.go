package genai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	gemini "google.golang.org/genai"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}}}
}

func TestGeneratePromptSuccess(t *testing.T) {
	mock := &mockChatService{resp: completion("  您現在身體哪裡有感覺？ ")}
	c := &Client{chat: mock, model: DefaultOpenAIModel, temperature: 0.7, maxTokens: 100}

	out, err := c.GeneratePrompt("system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "您現在身體哪裡有感覺？" {
		t.Errorf("expected trimmed content, got %q", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
}

func TestGeneratePromptSkipsEmptySystemPrompt(t *testing.T) {
	mock := &mockChatService{resp: completion("ok")}
	c := &Client{chat: mock, model: DefaultOpenAIModel}
	if _, err := c.GeneratePromptWithContext(context.Background(), "", "user"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.params.Messages) != 1 {
		t.Errorf("expected only the user message, got %d", len(mock.params.Messages))
	}
}

func TestGeneratePromptNoChoices(t *testing.T) {
	c := &Client{chat: &mockChatService{}, model: DefaultOpenAIModel}
	if _, err := c.GeneratePrompt("s", "u"); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGeneratePromptEmptyContent(t *testing.T) {
	c := &Client{chat: &mockChatService{resp: completion("   ")}, model: DefaultOpenAIModel}
	if _, err := c.GeneratePrompt("s", "u"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeneratePromptWrapsServiceError(t *testing.T) {
	boom := errors.New("boom")
	c := &Client{chat: &mockChatService{err: boom}, model: DefaultOpenAIModel}
	if _, err := c.GeneratePrompt("s", "u"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped service error, got %v", err)
	}
}

func TestDebugLogWritten(t *testing.T) {
	dir := t.TempDir()
	c := &Client{chat: &mockChatService{resp: completion("reply")}, model: DefaultOpenAIModel, debugMode: true, stateDir: dir}
	if _, err := c.GeneratePrompt("s", "u"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	files, err := os.ReadDir(filepath.Join(dir, DefaultDebugDirName))
	if err != nil {
		t.Fatalf("expected debug dir: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected one debug file, got %d", len(files))
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
	c, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-test"), WithMaxTokens(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != "gpt-test" || c.maxTokens != 50 {
		t.Errorf("options not applied: %+v", c)
	}
}

// mockContentService implements contentService for testing.
type mockContentService struct {
	resp   *gemini.GenerateContentResponse
	err    error
	config *gemini.GenerateContentConfig
}

func (m *mockContentService) GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error) {
	m.config = config
	return m.resp, m.err
}

func geminiResponse(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{Candidates: []*gemini.Candidate{{
		Content: gemini.NewContentFromText(text, gemini.RoleModel),
	}}}
}

func TestGeminiGenerate(t *testing.T) {
	mock := &mockContentService{resp: geminiResponse("是 - 問題重複")}
	c := &GeminiClient{models: mock, model: DefaultGeminiModel, temperature: 0.5}
	out, err := c.GeneratePromptWithContext(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "是 - 問題重複" {
		t.Errorf("unexpected output %q", out)
	}
	if mock.config.SystemInstruction == nil {
		t.Errorf("expected system instruction to be set")
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	c := &GeminiClient{models: &mockContentService{resp: &gemini.GenerateContentResponse{}}, model: DefaultGeminiModel}
	if _, err := c.GeneratePromptWithContext(context.Background(), "", "u"); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiClient(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}

func TestParseProvider(t *testing.T) {
	if p, err := ParseProvider(""); err != nil || p != ProviderOpenAI {
		t.Errorf("expected openai default, got %q (%v)", p, err)
	}
	if p, err := ParseProvider(" Gemini "); err != nil || p != ProviderGemini {
		t.Errorf("expected gemini, got %q (%v)", p, err)
	}
	if _, err := ParseProvider("claude"); err == nil {
		t.Errorf("expected error for unknown provider")
	}
}

// stubGenerator returns a fixed answer, optionally after a delay.
// A stubborn stub ignores cancellation while delaying.
type stubGenerator struct {
	text     string
	err      error
	delay    time.Duration
	stubborn bool
	calls    atomic.Int32
}

func (s *stubGenerator) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 && s.stubborn {
		time.Sleep(s.delay)
	} else if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestFactoryResolve(t *testing.T) {
	var builds atomic.Int32
	keys := make(chan string, 4)
	f := NewFactory(ProviderOpenAI, nil, withConstructor(func(_ context.Context, key string) (Generator, error) {
		builds.Add(1)
		keys <- key
		return &stubGenerator{text: key}, nil
	}))

	if _, ok := f.Resolve(context.Background(), ""); ok {
		t.Fatalf("expected no generator without any credential")
	}

	g1, ok := f.Resolve(context.Background(), "k1")
	if !ok {
		t.Fatalf("expected generator for explicit credential")
	}
	g2, _ := f.Resolve(context.Background(), "k1")
	if g1 != g2 || builds.Load() != 1 {
		t.Errorf("expected cached client, builds=%d", builds.Load())
	}
	if <-keys != "k1" {
		t.Errorf("expected constructor to receive the call credential")
	}
}

func TestFactoryDefaultKeyAndDecorator(t *testing.T) {
	wrapped := 0
	f := NewFactory(ProviderGemini, nil,
		WithDefaultKey("configured"),
		WithDecorator(func(g Generator) Generator { wrapped++; return g }),
		withConstructor(func(_ context.Context, key string) (Generator, error) {
			return &stubGenerator{text: key}, nil
		}))
	g, ok := f.Resolve(context.Background(), "  ")
	if !ok {
		t.Fatalf("expected default key to resolve")
	}
	out, _ := g.GeneratePromptWithContext(context.Background(), "", "")
	if out != "configured" || wrapped != 1 {
		t.Errorf("expected configured key and one decoration, got %q/%d", out, wrapped)
	}
	if !f.HasDefault() || f.Provider() != ProviderGemini {
		t.Errorf("unexpected factory state")
	}
}

func TestFactoryBoundsPerCallClients(t *testing.T) {
	var builds atomic.Int32
	f := NewFactory(ProviderOpenAI, nil,
		WithDefaultKey("configured"),
		WithClientCache(8, time.Minute),
		withConstructor(func(_ context.Context, key string) (Generator, error) {
			builds.Add(1)
			return &stubGenerator{text: key}, nil
		}))

	for i := 0; i < 1000; i++ {
		if _, ok := f.Resolve(context.Background(), fmt.Sprintf("header-key-%d", i)); !ok {
			t.Fatalf("expected generator for key %d", i)
		}
	}
	if n := f.cachedCallers(); n != 8 {
		t.Errorf("expected per-call cache capped at 8, got %d", n)
	}

	// The configured key is held outside the LRU and never rebuilt.
	before := builds.Load()
	for i := 0; i < 3; i++ {
		f.Resolve(context.Background(), "")
		f.Resolve(context.Background(), "configured")
	}
	if builds.Load() != before+1 {
		t.Errorf("expected one build for the configured key, got %d", builds.Load()-before)
	}
	if n := f.cachedCallers(); n != 8 {
		t.Errorf("configured key must not occupy the per-call cache, got %d", n)
	}
}

func TestCredentialDigestHidesKey(t *testing.T) {
	d := credentialDigest("sk-secret")
	if strings.Contains(d, "sk-secret") || len(d) != 64 {
		t.Errorf("unexpected digest %q", d)
	}
	if d != credentialDigest("sk-secret") || d == credentialDigest("sk-other") {
		t.Errorf("digest must be stable and distinct per key")
	}
}

func TestFactoryConstructorFailure(t *testing.T) {
	f := NewFactory(ProviderOpenAI, nil, withConstructor(func(context.Context, string) (Generator, error) {
		return nil, errors.New("bad key")
	}))
	if _, ok := f.Resolve(context.Background(), "k"); ok {
		t.Errorf("expected local path when the client cannot be built")
	}
}

func TestResilientPassesThrough(t *testing.T) {
	r := NewResilient(&stubGenerator{text: "hello"}, NewLimits(time.Second, 1, 100, 10))
	out, err := r.GeneratePromptWithContext(context.Background(), "s", "u")
	if err != nil || out != "hello" {
		t.Errorf("expected pass-through, got %q (%v)", out, err)
	}
}

func TestResilientTimeout(t *testing.T) {
	stub := &stubGenerator{text: "late", delay: time.Second}
	r := NewResilient(stub, NewLimits(20*time.Millisecond, 1, 100, 10))
	start := time.Now()
	out, err := r.GeneratePromptWithContext(context.Background(), "s", "u")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if out != "" {
		t.Errorf("abandoned call output must be discarded, got %q", out)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not enforced")
	}
}

func TestResilientConcurrencyCap(t *testing.T) {
	limits := NewLimits(30*time.Millisecond, 1, 100, 10)
	slow := NewResilient(&stubGenerator{text: "slow", delay: 200 * time.Millisecond, stubborn: true}, limits)
	fast := NewResilient(&stubGenerator{text: "fast"}, limits)

	go slow.GeneratePromptWithContext(context.Background(), "", "")
	time.Sleep(5 * time.Millisecond)
	if _, err := fast.GeneratePromptWithContext(context.Background(), "", ""); err == nil {
		t.Errorf("expected slot wait to fail while the only slot is held")
	}
}
