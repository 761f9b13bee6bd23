// Package store provides storage backends for Skopos.
//
// Sessions are persisted as flow states, the healing-mode toggle as a flag, and inbound
// channel messages are recorded for deduplication. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/Skopos/internal/models"
)

// ErrNotFound is returned when a requested flag does not exist.
var ErrNotFound = errors.New("not found")

// FlowStateStore persists per-session flow state.
type FlowStateStore interface {
	SaveFlowState(state models.FlowState) error
	// GetFlowState returns nil, nil when no state exists.
	GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(sessionID string, flowType models.FlowType) error
}

// FlagStore persists boolean toggles.
type FlagStore interface {
	// GetFlag returns ErrNotFound when the flag was never set.
	GetFlag(key string) (models.Flag, error)
	SetFlag(key string, value bool) error
}

// Store is the full storage surface used by the service.
type Store interface {
	FlowStateStore
	FlagStore
	DedupRepo
	Close() error
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the data source name. A postgres URL or key/value string selects PostgreSQL;
// anything else is treated as a SQLite file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// DetectDSNType returns the database/sql driver name for a DSN: "postgres" or "sqlite3".
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open creates the backend matching the configured DSN. An empty DSN yields an in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		s, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}

type flowKey struct {
	sessionID string
	flowType  models.FlowType
}

// InMemoryStore keeps everything in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[flowKey]models.FlowState
	flags  map[string]models.Flag
	dedup  map[string]*DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[flowKey]models.FlowState),
		flags:  make(map[string]models.Flag),
		dedup:  make(map[string]*DedupRecord),
	}
}

func copyStateData(in map[models.DataKey]string) map[models.DataKey]string {
	if in == nil {
		return nil
	}
	out := make(map[models.DataKey]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SaveFlowState stores or replaces a session's flow state.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.StateData = copyStateData(state.StateData)
	s.states[flowKey{state.SessionID, state.FlowType}] = state
	return nil
}

// GetFlowState returns a copy of the stored flow state, or nil when absent.
func (s *InMemoryStore) GetFlowState(sessionID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[flowKey{sessionID, flowType}]
	if !ok {
		return nil, nil
	}
	state.StateData = copyStateData(state.StateData)
	return &state, nil
}

// DeleteFlowState removes a session's flow state.
func (s *InMemoryStore) DeleteFlowState(sessionID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, flowKey{sessionID, flowType})
	return nil
}

// GetFlag returns a stored flag or ErrNotFound.
func (s *InMemoryStore) GetFlag(key string) (models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[key]
	if !ok {
		return models.Flag{}, ErrNotFound
	}
	return f, nil
}

// SetFlag stores a flag value.
func (s *InMemoryStore) SetFlag(key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = models.Flag{Key: key, Value: value, UpdatedAt: time.Now()}
	return nil
}

// RecordInbound records a message ID. It returns false for a duplicate.
func (s *InMemoryStore) RecordInbound(messageID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, SessionID: sessionID, ReceivedAt: time.Now()}
	return true, nil
}

// MarkProcessed sets the processed time of a recorded message.
func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := time.Now()
		r.ProcessedAt = &now
	}
	return nil
}

// ReleaseInbound forgets an unprocessed message so it can be claimed again.
func (s *InMemoryStore) ReleaseInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok && r.ProcessedAt == nil {
		delete(s.dedup, messageID)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
