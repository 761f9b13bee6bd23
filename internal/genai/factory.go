package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Per-call client cache bounds. Credentials arrive from request headers, so the cache must
// not grow with the number of distinct values callers send.
const (
	DefaultClientCacheSize = 32
	DefaultClientCacheTTL  = 10 * time.Minute
)

// Provider names a generation backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ParseProvider maps a configuration string to a provider. Empty selects OpenAI.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGemini:
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unknown generation provider %q", s)
	}
}

// constructor builds a generator for one credential.
type constructor func(ctx context.Context, key string) (Generator, error)

// Factory resolves a per-call credential into a Generator. The configured key's client lives
// for the life of the factory; per-call clients sit in a bounded, expiring LRU keyed by a
// digest of the credential.
type Factory struct {
	provider   Provider
	defaultKey string
	build      constructor
	wrap       func(Generator) Generator
	cacheSize  int
	cacheTTL   time.Duration

	mu         sync.Mutex
	defaultGen Generator
	callers    *expirable.LRU[string, Generator]
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDefaultKey sets the credential used when a call supplies none.
func WithDefaultKey(key string) FactoryOption {
	return func(f *Factory) { f.defaultKey = key }
}

// WithDecorator wraps every generator the factory creates.
func WithDecorator(wrap func(Generator) Generator) FactoryOption {
	return func(f *Factory) { f.wrap = wrap }
}

// WithClientCache bounds the per-call client cache. size <= 0 or ttl <= 0 keep the defaults.
func WithClientCache(size int, ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		if size > 0 {
			f.cacheSize = size
		}
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

// withConstructor replaces the client constructor; used by tests.
func withConstructor(c constructor) FactoryOption {
	return func(f *Factory) { f.build = c }
}

// NewFactory creates a factory for the given provider. clientOpts apply to every client built.
func NewFactory(provider Provider, clientOpts []Option, opts ...FactoryOption) *Factory {
	f := &Factory{provider: provider, cacheSize: DefaultClientCacheSize, cacheTTL: DefaultClientCacheTTL}
	switch provider {
	case ProviderGemini:
		f.build = func(ctx context.Context, key string) (Generator, error) {
			return NewGeminiClient(ctx, append(clientOpts, WithAPIKey(key))...)
		}
	default:
		f.build = func(_ context.Context, key string) (Generator, error) {
			return NewClient(append(clientOpts, WithAPIKey(key))...)
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	f.callers = expirable.NewLRU[string, Generator](f.cacheSize, nil, f.cacheTTL)
	return f
}

// Provider reports the configured backend.
func (f *Factory) Provider() Provider {
	return f.provider
}

// HasDefault reports whether a configured credential exists.
func (f *Factory) HasDefault() bool {
	return f.defaultKey != ""
}

// Resolve returns the generator for credential, or for the configured key when credential is
// empty. ok is false when no credential is available or the client cannot be built; callers
// then take the local path.
func (f *Factory) Resolve(ctx context.Context, credential string) (Generator, bool) {
	key := strings.TrimSpace(credential)
	if key == "" || key == f.defaultKey {
		return f.resolveDefault(ctx)
	}
	digest := credentialDigest(key)
	if g, ok := f.callers.Get(digest); ok {
		return g, true
	}
	g, ok := f.newGenerator(ctx, key)
	if !ok {
		return nil, false
	}
	f.callers.Add(digest, g)
	return g, true
}

func (f *Factory) resolveDefault(ctx context.Context) (Generator, bool) {
	if f.defaultKey == "" {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.defaultGen == nil {
		g, ok := f.newGenerator(ctx, f.defaultKey)
		if !ok {
			return nil, false
		}
		f.defaultGen = g
	}
	return f.defaultGen, true
}

func (f *Factory) newGenerator(ctx context.Context, key string) (Generator, bool) {
	g, err := f.build(ctx, key)
	if err != nil {
		slog.Warn("genai.Factory.Resolve: failed to build client, using local path", "provider", f.provider, "error", err)
		return nil, false
	}
	if f.wrap != nil {
		g = f.wrap(g)
	}
	return g, true
}

// cachedCallers reports how many per-call clients are cached.
func (f *Factory) cachedCallers() int {
	return f.callers.Len()
}

func credentialDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
