package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/Skopos/internal/assess"
	"github.com/BTreeMap/Skopos/internal/classify"
	"github.com/BTreeMap/Skopos/internal/genai"
	"github.com/BTreeMap/Skopos/internal/guidance"
	"github.com/BTreeMap/Skopos/internal/loop"
	"github.com/BTreeMap/Skopos/internal/metrics"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/prompt"
	"github.com/BTreeMap/Skopos/internal/store"
)

// Greeting is the opening question shown before the first user turn.
const Greeting = "最近有什麼讓您感到困擾的事件或行為嗎？"

var (
	ErrUsageLimitReached = errors.New("session usage limit reached")
	ErrSessionNotFound   = errors.New("session not found")
	// ErrNoPendingTurn is returned by CompleteTurn when the session has no unanswered user turn.
	ErrNoPendingTurn = errors.New("no user turn awaiting a reply")
)

// Resolver hands out a generator for a per-call credential. genai.Factory implements it.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (genai.Generator, bool)
}

// Orchestrator runs user turns through classification, phase update, prompt assembly,
// generation and loop handling. Turns of one session are serialized; different sessions
// run in parallel.
type Orchestrator struct {
	state      StateManager
	flags      store.FlagStore
	classifier *classify.Classifier
	analyzer   *assess.Analyzer
	library    *guidance.Library
	assembler  *prompt.Assembler
	detector   *loop.Detector
	antiLoop   *loop.AntiLoop
	resolver   Resolver
	locks      *sessionLocks
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier replaces the built-in keyword tables.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithLibrary sets the guidance library.
func WithLibrary(l *guidance.Library) Option {
	return func(o *Orchestrator) { o.library = l }
}

// WithResolver sets the generator resolver. Without one every turn takes the local path.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithDetector sets the loop detector.
func WithDetector(d *loop.Detector) Option {
	return func(o *Orchestrator) { o.detector = d }
}

// WithClock sets the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the dialogue engine over a state manager and a flag store.
func NewOrchestrator(state StateManager, flags store.FlagStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state: state,
		flags: flags,
		locks: newSessionLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = classify.NewDefault()
	}
	if o.library == nil {
		o.library = guidance.NewLibrary()
	}
	if o.detector == nil {
		o.detector = loop.NewDetector()
	}
	o.analyzer = assess.NewAnalyzer(o.classifier)
	o.assembler = prompt.NewAssembler(o.analyzer, o.library)
	o.antiLoop = loop.NewAntiLoop(o.analyzer, o.library)
	return o
}

// Greeting returns the opening question.
func (o *Orchestrator) Greeting() string {
	return Greeting
}

// HealingMode reads the enablement flag. A flag that was never set reads as enabled.
func (o *Orchestrator) HealingMode(ctx context.Context) (models.HealingModeStatus, error) {
	f, err := o.flags.GetFlag(models.FlagHealingModeEnabled)
	if errors.Is(err, store.ErrNotFound) {
		return models.HealingModeStatus{Enabled: true}, nil
	}
	if err != nil {
		return models.HealingModeStatus{}, fmt.Errorf("failed to read healing mode: %w", err)
	}
	return models.HealingModeStatus{Enabled: f.Value, UpdatedAt: f.UpdatedAt}, nil
}

// SetHealingMode stores the enablement flag.
func (o *Orchestrator) SetHealingMode(ctx context.Context, enabled bool) error {
	slog.Info("Orchestrator.SetHealingMode", "enabled", enabled)
	if err := o.flags.SetFlag(models.FlagHealingModeEnabled, enabled); err != nil {
		return fmt.Errorf("failed to store healing mode: %w", err)
	}
	return nil
}

// ProcessTurn handles one user message.
//
// With a credential (per call, or the configured default) the reply is generated remotely,
// loop-checked and stored together with the user turn. Without one the result carries only
// the instruction, and the caller finishes the turn with CompleteTurn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, userText, credential string) (models.TurnResult, error) {
	start := o.now()
	text := strings.TrimSpace(userText)
	if text == "" {
		return models.TurnResult{}, models.ErrEmptyMessage
	}
	if len([]rune(text)) > models.MaxMessageLength {
		return models.TurnResult{}, models.ErrMessageTooLong
	}
	if err := models.ValidateSessionID(sessionID); err != nil {
		return models.TurnResult{}, err
	}

	status, err := o.HealingMode(ctx)
	if err != nil {
		metrics.ObserveTurn(metrics.OutcomeError, 0)
		return models.TurnResult{}, err
	}

	unlock := o.locks.lock(sessionID)
	defer unlock()

	res, outcome, err := o.processTurn(ctx, sessionID, text, credential, status.Enabled)
	if err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			outcome = metrics.OutcomeLimited
		} else {
			outcome = metrics.OutcomeError
		}
	}
	metrics.ObserveTurn(outcome, o.now().Sub(start).Seconds())
	return res, err
}

func (o *Orchestrator) processTurn(ctx context.Context, sessionID, text, credential string, enabled bool) (models.TurnResult, string, error) {
	s, err := o.state.LoadSession(ctx, sessionID)
	if err != nil {
		return models.TurnResult{}, "", err
	}

	if !enabled {
		slog.Debug("Orchestrator.ProcessTurn: healing mode disabled, storing user turn only", "sessionID", sessionID)
		s.Append(models.Turn{Speaker: models.SpeakerUser, Text: text, Timestamp: o.now()})
		if err := o.state.SaveSession(ctx, s); err != nil {
			return models.TurnResult{}, "", err
		}
		res := baseResult(s)
		res.Enabled = false
		res.PreviousPhase = s.Phase
		return res, metrics.OutcomeDisabled, nil
	}

	if s.LimitReached() {
		slog.Info("Orchestrator.ProcessTurn: usage limit reached", "sessionID", sessionID, "usage", s.UsageCount, "limit", s.UsageLimit)
		return models.TurnResult{}, "", ErrUsageLimitReached
	}

	prev := s.Phase.Normalize()
	s.Phase = NextPhase(o.classifier, prev, text)
	if s.Phase != prev {
		slog.Info("Orchestrator.ProcessTurn: phase advanced", "sessionID", sessionID, "from", prev, "to", s.Phase)
		metrics.ObservePhaseTransition(string(prev), string(s.Phase))
	}

	asm := o.assembler.Assemble(s.Phase, text, s.Turns)
	s.Append(models.Turn{Speaker: models.SpeakerUser, Text: text, Timestamp: o.now()})
	s.UsageCount++

	gen := o.resolve(ctx, credential)
	if gen == nil {
		slog.Debug("Orchestrator.ProcessTurn: no credential, returning instruction only", "sessionID", sessionID, "phase", s.Phase)
		if err := o.state.SaveSession(ctx, s); err != nil {
			return models.TurnResult{}, "", err
		}
		res := baseResult(s)
		res.PreviousPhase = prev
		res.Instruction = asm.Text
		res.Quality = asm.Quality
		res.Relevance = asm.Relevance
		return res, metrics.OutcomeInstruction, nil
	}

	outcome := metrics.OutcomeGenerated
	reply, err := gen.GeneratePromptWithContext(ctx, "", asm.Text)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = genai.ErrEmptyResponse
	}
	if err != nil {
		slog.Warn("Orchestrator.ProcessTurn: remote generation failed, using guidance library", "sessionID", sessionID, "error", err)
		metrics.ObserveRemoteFallback("reply")
		reply = o.library.SelectForQuality(s.Phase, asm.Quality).Phrase
		outcome = metrics.OutcomeFallback
		// Skip remote loop confirmation when the service just failed.
		gen = nil
	}

	res := o.finishTurn(ctx, s, text, reply, gen)
	res.PreviousPhase = prev
	res.Instruction = asm.Text
	res.Quality = asm.Quality
	res.Relevance = asm.Relevance
	if err := o.state.SaveSession(ctx, s); err != nil {
		return models.TurnResult{}, "", err
	}
	res.UsageCount = s.UsageCount
	return res, outcome, nil
}

// CompleteTurn takes a reply produced by the caller for the latest user turn, runs loop
// detection and anti-loop replacement on it, and stores the final reply.
func (o *Orchestrator) CompleteTurn(ctx context.Context, sessionID, reply, credential string) (models.TurnResult, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return models.TurnResult{}, models.ErrEmptyMessage
	}
	if err := models.ValidateSessionID(sessionID); err != nil {
		return models.TurnResult{}, err
	}

	unlock := o.locks.lock(sessionID)
	defer unlock()

	s, err := o.state.FindSession(ctx, sessionID)
	if err != nil {
		return models.TurnResult{}, err
	}
	if s == nil {
		return models.TurnResult{}, ErrSessionNotFound
	}
	if s.Len() == 0 || s.Turns[s.Len()-1].Speaker != models.SpeakerUser {
		return models.TurnResult{}, ErrNoPendingTurn
	}
	userText := s.Turns[s.Len()-1].Text

	res := o.finishTurn(ctx, s, userText, reply, o.resolve(ctx, credential))
	res.PreviousPhase = s.Phase
	if err := o.state.SaveSession(ctx, s); err != nil {
		return models.TurnResult{}, err
	}
	return res, nil
}

// finishTurn loop-checks reply against the session, replaces it when it repeats earlier
// replies, and appends the final assistant turn. s must already end with the user turn.
func (o *Orchestrator) finishTurn(ctx context.Context, s *models.Session, userText, reply string, gen genai.Generator) models.TurnResult {
	res := baseResult(s)
	verdict := o.detector.Detect(ctx, s.Turns, reply, gen)
	res.Loop = &verdict

	final := reply
	if verdict.IsLoop {
		antiGen := gen
		if verdict.FallbackUsed {
			antiGen = nil
		}
		rep := o.antiLoop.Generate(ctx, reply, s.Phase, userText, antiGen)
		slog.Info("Orchestrator.finishTurn: loop detected, reply replaced", "sessionID", s.ID, "source", verdict.Source, "similarity", verdict.Similarity, "strategy", rep.Strategy)
		metrics.ObserveLoop(string(verdict.Source), string(rep.Strategy))
		if verdict.FallbackUsed && gen != nil {
			metrics.ObserveRemoteFallback("loop_confirmation")
		}
		res.OriginalReply = reply
		final = rep.Text
	}

	s.Append(models.Turn{Speaker: models.SpeakerAssistant, Text: final, Timestamp: o.now()})
	res.Reply = final
	return res
}

func (o *Orchestrator) resolve(ctx context.Context, credential string) genai.Generator {
	if o.resolver == nil {
		return nil
	}
	gen, ok := o.resolver.Resolve(ctx, credential)
	if !ok {
		return nil
	}
	return gen
}

func baseResult(s *models.Session) models.TurnResult {
	return models.TurnResult{
		SessionID:  s.ID,
		Enabled:    true,
		Phase:      s.Phase,
		UsageCount: s.UsageCount,
		UsageLimit: s.UsageLimit,
	}
}

// GetSession returns a stored session.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	s, err := o.state.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ResetSession deletes all state of a session.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return err
	}
	unlock := o.locks.lock(sessionID)
	defer unlock()
	return o.state.ResetState(ctx, sessionID)
}
