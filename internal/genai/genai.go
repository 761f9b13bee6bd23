// Package genai provides remote text generation for Skopos.
//
// Two backends are supported: OpenAI chat completions and Google Gemini. Callers depend on the
// Generator interface only; every caller keeps a local fallback, so nothing here is required
// for a turn to complete.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation settings.
const (
	DefaultOpenAIModel      = openai.ChatModelGPT4oMini
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 300
	DefaultDebugDirName     = "debug"
	debugFilePermissions    = 0644
	debugDirPermissions     = 0755
	debugTimestampFormat    = "20060102T150405.000000000"
	methodGeneratePromptCtx = "GeneratePromptWithContext"
)

// Errors returned by generators. All of them are recovered by callers through a local path.
var (
	ErrNoCredential      = errors.New("no generation credential configured")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyResponse     = errors.New("empty response from generation service")
)

// Generator produces text from a system prompt and a user prompt.
type Generator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	if resp == nil {
		return openai.ChatCompletion{}, ErrNoChoicesReturned
	}
	return *resp, nil
}

// Opts holds configuration for generation clients.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
}

// Option defines a configuration option for generation clients.
type Option func(*Opts)

// WithAPIKey sets the credential used by the client.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode writes every request and response under StateDir/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets the directory used for debug logs.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient creates an OpenAI-backed generator. An API key is required, either through
// WithAPIKey or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := buildOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	slog.Debug("genai.NewClient: creating OpenAI client", "apiKeySet", cfg.APIKey != "", "model", cfg.Model, "debug", cfg.DebugMode)
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:        completionsAdapter{svc: cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePrompt generates a response without a caller-supplied context.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext generates a response for the given prompts.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	slog.Debug("genai.Client.GeneratePromptWithContext: sending request", "model", c.model, "systemLength", len(systemPrompt), "userLength", len(userPrompt))
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Warn("genai.Client.GeneratePromptWithContext: request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.writeDebugLog(methodGeneratePromptCtx, map[string]string{"system": systemPrompt, "user": userPrompt}, content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// writeDebugLog records one exchange as a JSON file when debug mode is on.
func (c *Client) writeDebugLog(method string, params interface{}, response string) {
	writeDebugLog(c.debugMode, c.stateDir, method, c.model, params, response)
}

func writeDebugLog(enabled bool, stateDir, method, model string, params interface{}, response string) {
	if !enabled || stateDir == "" {
		return
	}
	dir := filepath.Join(stateDir, DefaultDebugDirName)
	if err := os.MkdirAll(dir, debugDirPermissions); err != nil {
		slog.Warn("genai.writeDebugLog: failed to create debug directory", "dir", dir, "error", err)
		return
	}
	now := time.Now()
	entry := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     model,
		"params":    params,
		"response":  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.writeDebugLog: failed to marshal debug entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format(debugTimestampFormat), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, debugFilePermissions); err != nil {
		slog.Warn("genai.writeDebugLog: failed to write debug file", "file", name, "error", err)
	}
}
