package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gemini "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the Gemini backend.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentService is the subset of the Gemini models service used by GeminiClient.
type contentService interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

// GeminiClient generates text with Google Gemini.
type GeminiClient struct {
	models      contentService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewGeminiClient creates a Gemini-backed generator. An API key is required, either through
// WithAPIKey or the GEMINI_API_KEY environment variable.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := buildOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	slog.Debug("genai.NewGeminiClient: creating Gemini client", "apiKeySet", cfg.APIKey != "", "model", cfg.Model)
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	cli, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{
		models:      cli.Models,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePromptWithContext generates a response for the given prompts.
func (c *GeminiClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &gemini.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = gemini.NewContentFromText(systemPrompt, gemini.RoleUser)
	}
	if c.temperature > 0 {
		config.Temperature = gemini.Ptr(float32(c.temperature))
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = int32(c.maxTokens)
	}

	slog.Debug("genai.GeminiClient.GeneratePromptWithContext: sending request", "model", c.model, "systemLength", len(systemPrompt), "userLength", len(userPrompt))
	resp, err := c.models.GenerateContent(ctx, c.model, gemini.Text(userPrompt), config)
	if err != nil {
		slog.Warn("genai.GeminiClient.GeneratePromptWithContext: request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Text())
	writeDebugLog(c.debugMode, c.stateDir, methodGeneratePromptCtx, c.model, map[string]string{"system": systemPrompt, "user": userPrompt}, content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
