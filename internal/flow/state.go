// Package flow runs the iceberg dialogue: session state, phase transitions and the
// per-turn orchestration that ties classification, prompting and loop handling together.
package flow

import (
	"context"

	"github.com/BTreeMap/Skopos/internal/models"
)

// StateManager defines the interface for managing session state.
type StateManager interface {
	// LoadSession returns the stored session, or a fresh one in the initial phase.
	LoadSession(ctx context.Context, sessionID string) (*models.Session, error)

	// FindSession returns the stored session, or nil when none exists.
	FindSession(ctx context.Context, sessionID string) (*models.Session, error)

	// SaveSession persists the session phase, history and usage counter.
	SaveSession(ctx context.Context, session *models.Session) error

	// ResetState removes all state for a session.
	ResetState(ctx context.Context, sessionID string) error
}
