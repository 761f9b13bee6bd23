package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/store"
)

// StoreBasedStateManager implements StateManager using a flow-state store.
// A session is kept as one iceberg flow state: the phase is the current state, and the
// history and usage counters live in the state data.
type StoreBasedStateManager struct {
	store      store.FlowStateStore
	usageLimit int
	now        func() time.Time
}

// NewStoreBasedStateManager creates a new StateManager backed by a store. New sessions get
// usageLimit; a non-positive value uses models.DefaultUsageLimit.
func NewStoreBasedStateManager(st store.FlowStateStore, usageLimit int) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager", "usageLimit", usageLimit)
	if usageLimit <= 0 {
		usageLimit = models.DefaultUsageLimit
	}
	return &StoreBasedStateManager{store: st, usageLimit: usageLimit, now: time.Now}
}

// LoadSession retrieves a session, creating an unsaved one when none is stored.
func (sm *StoreBasedStateManager) LoadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := sm.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		slog.Debug("StateManager LoadSession creating new session", "sessionID", sessionID)
		s = models.NewSession(sessionID, sm.now())
		s.UsageLimit = sm.usageLimit
	}
	return s, nil
}

// FindSession retrieves a stored session, or nil when there is none.
func (sm *StoreBasedStateManager) FindSession(ctx context.Context, sessionID string) (*models.Session, error) {
	slog.Debug("StateManager FindSession", "sessionID", sessionID)

	flowState, err := sm.store.GetFlowState(sessionID, models.FlowTypeIceberg)
	if err != nil {
		slog.Error("StateManager FindSession error", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if flowState == nil {
		slog.Debug("StateManager FindSession not found", "sessionID", sessionID)
		return nil, nil
	}
	return sm.decode(flowState), nil
}

func (sm *StoreBasedStateManager) decode(fs *models.FlowState) *models.Session {
	s := &models.Session{
		ID:         fs.SessionID,
		Phase:      models.Phase(fs.CurrentState).Normalize(),
		Turns:      []models.Turn{},
		UsageLimit: sm.usageLimit,
		CreatedAt:  fs.CreatedAt,
		UpdatedAt:  fs.UpdatedAt,
	}
	if raw := fs.StateData[models.DataKeyConversationHistory]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Turns); err != nil {
			// A corrupt history restarts the transcript but keeps the phase.
			slog.Error("StateManager decode history failed", "error", err, "sessionID", fs.SessionID)
			s.Turns = []models.Turn{}
		}
	}
	if n, err := strconv.Atoi(fs.StateData[models.DataKeyUsageCount]); err == nil {
		s.UsageCount = n
	}
	if n, err := strconv.Atoi(fs.StateData[models.DataKeyUsageLimit]); err == nil && n > 0 {
		s.UsageLimit = n
	}
	return s
}

// SaveSession persists a session.
func (sm *StoreBasedStateManager) SaveSession(ctx context.Context, s *models.Session) error {
	slog.Debug("StateManager SaveSession", "sessionID", s.ID, "phase", s.Phase, "turns", s.Len())

	history, err := json.Marshal(s.Turns)
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %w", s.ID, err)
	}
	now := sm.now()
	created := s.CreatedAt
	if created.IsZero() {
		created = now
	}
	state := models.FlowState{
		SessionID:    s.ID,
		FlowType:     models.FlowTypeIceberg,
		CurrentState: models.PhaseState(s.Phase.Normalize()),
		StateData: map[models.DataKey]string{
			models.DataKeyConversationHistory: string(history),
			models.DataKeyUsageCount:          strconv.Itoa(s.UsageCount),
			models.DataKeyUsageLimit:          strconv.Itoa(s.UsageLimit),
		},
		CreatedAt: created,
		UpdatedAt: now,
	}
	if err := sm.store.SaveFlowState(state); err != nil {
		slog.Error("StateManager SaveSession error", "error", err, "sessionID", s.ID)
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	s.CreatedAt = created
	s.UpdatedAt = now
	return nil
}

// ResetState removes all state data for a session.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, sessionID string) error {
	slog.Debug("StateManager ResetState", "sessionID", sessionID)

	err := sm.store.DeleteFlowState(sessionID, models.FlowTypeIceberg)
	if err != nil {
		slog.Error("StateManager ResetState error", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to reset session %s: %w", sessionID, err)
	}

	slog.Info("StateManager ResetState succeeded", "sessionID", sessionID)
	return nil
}
