package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/Skopos/internal/api"
	"github.com/BTreeMap/Skopos/internal/classify"
	"github.com/BTreeMap/Skopos/internal/flow"
	"github.com/BTreeMap/Skopos/internal/genai"
	"github.com/BTreeMap/Skopos/internal/lockfile"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/store"
	"github.com/BTreeMap/Skopos/internal/twiliowhatsapp"
	"github.com/BTreeMap/Skopos/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Skopos state data
	DefaultStateDir = "/var/lib/skopos"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "skopos.db"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(os.Stdout, config.LogFormat)

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Skopos with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("Skopos failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Skopos exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	GeminiKey    string
	Provider     string
	Model        string
	Timeout      time.Duration
	APIAddr      string
	KeywordsFile string
	UsageLimit   int
	Debug        bool
	LogFormat    string
	TwilioURL    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     string
	dbDSN        string
	provider     string
	model        string
	apiKey       string
	timeout      time.Duration
	apiAddr      string
	keywordsFile string
	usageLimit   int
	debug        bool
	twilioURL    string
}

// initializeLogger sets up structured logging with debug level. format "json" selects the
// JSON handler; anything else uses text.
func initializeLogger(w io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("SKOPOS_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		Provider:     os.Getenv("GENAI_PROVIDER"),
		Model:        os.Getenv("GENAI_MODEL"),
		Timeout:      util.ParseDurationEnv("GENAI_TIMEOUT", genai.DefaultTimeout),
		APIAddr:      os.Getenv("API_ADDR"),
		KeywordsFile: os.Getenv("SKOPOS_KEYWORDS_FILE"),
		UsageLimit:   util.ParseIntEnv("SKOPOS_USAGE_LIMIT", models.DefaultUsageLimit),
		Debug:        util.ParseBoolEnv("GENAI_DEBUG", false),
		LogFormat:    os.Getenv("SKOPOS_LOG_FORMAT"),
		TwilioURL:    os.Getenv("TWILIO_WEBHOOK_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SKOPOS_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SKOPOS_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"GENAI_PROVIDER", config.Provider,
		"GENAI_TIMEOUT", config.Timeout,
		"API_ADDR", config.APIAddr,
		"SKOPOS_USAGE_LIMIT", config.UsageLimit)

	return config
}

// defaultKey picks the configured credential for the selected provider.
func (c Config) defaultKey(provider string) string {
	if p, err := genai.ParseProvider(provider); err == nil && p == genai.ProviderGemini {
		return c.GeminiKey
	}
	return c.OpenAIKey
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("skopos", flag.ContinueOnError)
	var flags Flags
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for Skopos data (overrides $SKOPOS_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "database DSN, postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&flags.provider, "provider", config.Provider, "generation provider: openai or gemini (overrides $GENAI_PROVIDER)")
	fs.StringVar(&flags.model, "model", config.Model, "generation model (overrides $GENAI_MODEL)")
	fs.StringVar(&flags.apiKey, "api-key", "", "generation API key (overrides $OPENAI_API_KEY / $GEMINI_API_KEY)")
	fs.DurationVar(&flags.timeout, "genai-timeout", config.Timeout, "per-call generation timeout (overrides $GENAI_TIMEOUT)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.keywordsFile, "keywords-file", config.KeywordsFile, "YAML keyword table overrides (overrides $SKOPOS_KEYWORDS_FILE)")
	fs.IntVar(&flags.usageLimit, "usage-limit", config.UsageLimit, "turns allowed per session (overrides $SKOPOS_USAGE_LIMIT)")
	fs.BoolVar(&flags.debug, "genai-debug", config.Debug, "write generation requests to the state directory (overrides $GENAI_DEBUG)")
	fs.StringVar(&flags.twilioURL, "twilio-webhook-url", config.TwilioURL, "public webhook URL used to verify Twilio signatures (overrides $TWILIO_WEBHOOK_URL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if flags.apiKey == "" {
		flags.apiKey = config.defaultKey(flags.provider)
	}

	// Default to SQLite in the state directory when no DSN is given
	if flags.dbDSN == "" {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", flags.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"provider", flags.provider,
		"model", flags.model,
		"apiKeySet", flags.apiKey != "",
		"timeout", flags.timeout,
		"apiAddr", flags.apiAddr,
		"usageLimit", flags.usageLimit)
	return flags, nil
}

// ensureDirectoriesExist creates the state directory used for debug logs and SQLite files.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{flags.stateDir}
	if store.DetectDSNType(flags.dbDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating state directory", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if flags.dbDSN != "" {
		slog.Debug("Configuring store", "dsn_type", store.DetectDSNType(flags.dbDSN))
		storeOpts = append(storeOpts, store.WithDSN(flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI client options shared by every credential
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{genai.WithStateDir(flags.stateDir)}
	if flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.model))
	}
	if flags.debug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true))
	}
	return genaiOpts
}

// buildGenAIFactory creates the credential resolver with process-wide call limits.
func buildGenAIFactory(flags Flags) (*genai.Factory, error) {
	provider, err := genai.ParseProvider(flags.provider)
	if err != nil {
		return nil, err
	}
	limits := genai.NewLimits(flags.timeout, genai.DefaultMaxConcurrent, genai.DefaultRatePerSecond, genai.DefaultRateBurst)
	factory := genai.NewFactory(provider, buildGenAIOptions(flags),
		genai.WithDefaultKey(flags.apiKey),
		genai.WithDecorator(limits.Decorator()))
	if !factory.HasDefault() {
		slog.Info("No generation credential configured; turns return instructions unless a per-call key is sent", "provider", provider)
	}
	return factory, nil
}

// buildClassifier loads keyword overrides when a file is configured.
func buildClassifier(flags Flags) (*classify.Classifier, error) {
	if flags.keywordsFile == "" {
		return classify.NewDefault(), nil
	}
	tables, err := classify.LoadTables(flags.keywordsFile)
	if err != nil {
		return nil, err
	}
	return classify.New(tables), nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, st store.Store, engine *flow.Orchestrator) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithHealthCheck(func(context.Context) error {
		if _, err := st.GetFlag(models.FlagHealingModeEnabled); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}))

	twilioCfg := twiliowhatsapp.ConfigFromEnv()
	if !twilioCfg.Configured() {
		slog.Debug("Twilio not configured, WhatsApp webhook disabled")
		return apiOpts
	}
	client, err := twiliowhatsapp.NewClient(
		twiliowhatsapp.WithAccountSID(twilioCfg.AccountSID),
		twiliowhatsapp.WithAuthToken(twilioCfg.AuthToken),
		twiliowhatsapp.WithFromWhats(twilioCfg.FromWhats))
	if err != nil {
		slog.Error("Failed to create Twilio client, WhatsApp webhook disabled", "error", err)
		return apiOpts
	}
	hookOpts := []twiliowhatsapp.WebhookOption{twiliowhatsapp.WithDedup(st)}
	if flags.twilioURL != "" {
		hookOpts = append(hookOpts, twiliowhatsapp.WithSignatureValidation(twilioCfg.AuthToken, flags.twilioURL))
	}
	return append(apiOpts, api.WithTwilioWebhook(twiliowhatsapp.NewWebhook(engine, client, hookOpts...)))
}

// run wires the modules and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if err := ensureDirectoriesExist(flags); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	// A SQLite file is single-writer; Postgres deployments may run several replicas.
	if store.DetectDSNType(flags.dbDSN) == "sqlite3" {
		lock, err := lockfile.AcquireLock(flags.stateDir, flags.dbDSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Warn("run: failed to release state directory lock", "error", err)
			}
		}()
	}

	st, err := store.Open(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	classifier, err := buildClassifier(flags)
	if err != nil {
		return err
	}
	factory, err := buildGenAIFactory(flags)
	if err != nil {
		return err
	}

	engine := flow.NewOrchestrator(
		flow.NewStoreBasedStateManager(st, flags.usageLimit),
		st,
		flow.WithClassifier(classifier),
		flow.WithResolver(factory))

	server := api.NewServer(engine, buildAPIOptions(flags, st, engine)...)
	return server.Run(ctx)
}
