package models

// Category names a static keyword table.
type Category string

// Keyword categories.
const (
	CategoryEmotions           Category = "emotions"
	CategoryChildhood          Category = "childhood"
	CategoryHealing            Category = "healing"
	CategoryDetails            Category = "details"
	CategoryAvoidance          Category = "avoidance"
	CategoryLackSelfAwareness  Category = "lack_self_awareness"
	CategoryAutomaticReactions Category = "automatic_reactions"
	CategoryEmotionalTriggers  Category = "emotional_triggers"
	CategoryBehaviorPatterns   Category = "behavior_patterns"
	CategoryIrrelevant         Category = "irrelevant"
)

// QualityIssue is a flag raised by the quality analyzer.
type QualityIssue string

const (
	IssueTooDetailed        QualityIssue = "too_detailed"
	IssueAvoidingExperience QualityIssue = "avoiding_experience"
	IssueTooShort           QualityIssue = "too_short"
)

// AutomaticReactionDetection reports which automatic-reaction sub-categories fired.
type AutomaticReactionDetection struct {
	HasAutomaticReactions    bool `json:"has_automatic_reactions"`
	HasEmotionalTriggers     bool `json:"has_emotional_triggers"`
	HasBehaviorPatterns      bool `json:"has_behavior_patterns"`
	StuckInLoop              bool `json:"stuck_in_loop"`
	NeedsPatternInterruption bool `json:"needs_pattern_interruption"`
}

// QualityAssessment is the per-turn analysis of a user message. It is never persisted.
type QualityAssessment struct {
	Issues                     []QualityIssue             `json:"issues"`
	NeedsExperienceRedirect    bool                       `json:"needs_experience_redirect"`
	IsAvoidingExperience       bool                       `json:"is_avoiding_experience"`
	LacksAwareness             bool                       `json:"lacks_awareness"`
	NeedsSelfAwarenessGuidance bool                       `json:"needs_self_awareness_guidance"`
	AutomaticReactionDetection AutomaticReactionDetection `json:"automatic_reaction_detection"`
}

// HasIssues reports whether any issue flag was raised.
func (q QualityAssessment) HasIssues() bool {
	return len(q.Issues) > 0
}

// HasIssue reports whether the given flag was raised.
func (q QualityAssessment) HasIssue(issue QualityIssue) bool {
	for _, i := range q.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// RelevanceAssessment reports whether a message stays on the session topic.
type RelevanceAssessment struct {
	IsRelevant       bool `json:"is_relevant"`
	NeedsRedirection bool `json:"needs_redirection"`
}

// Technique names a guidance category within a phase.
type Technique string

const (
	TechniqueBodyFocus             Technique = "body_focus"
	TechniqueEmotionBasic          Technique = "emotion_basic"
	TechniqueBreathing             Technique = "breathing"
	TechniquePatternInterruption   Technique = "pattern_interruption"
	TechniqueAutomaticAwareness    Technique = "automatic_awareness"
	TechniqueSensation             Technique = "sensation"
	TechniqueContrast              Technique = "contrast"
	TechniquePatternExploration    Technique = "pattern_exploration"
	TechniqueTriggerAwareness      Technique = "trigger_awareness"
	TechniqueGentle                Technique = "gentle"
	TechniqueSafe                  Technique = "safe"
	TechniqueEarlyPatterns         Technique = "early_patterns"
	TechniqueProtectivePatterns    Technique = "protective_patterns"
	TechniqueStrength              Technique = "strength"
	TechniqueIntegration           Technique = "integration"
	TechniquePatternTransformation Technique = "pattern_transformation"
	TechniqueConsciousChoice       Technique = "conscious_choice"
)

// LoopSource tells which path produced a loop verdict.
type LoopSource string

const (
	LoopSourceLocal    LoopSource = "local_similarity"
	LoopSourceSemantic LoopSource = "semantic_analysis"
)

// LoopVerdict is the outcome of checking a candidate reply for repetition.
type LoopVerdict struct {
	IsLoop       bool       `json:"is_loop"`
	Similarity   float64    `json:"similarity,omitempty"`
	Analysis     string     `json:"analysis,omitempty"`
	Source       LoopSource `json:"source,omitempty"`
	FallbackUsed bool       `json:"fallback_used"`
}

// TurnResult is what the orchestrator hands back to the caller for one user turn.
type TurnResult struct {
	SessionID     string              `json:"session_id"`
	Enabled       bool                `json:"enabled"`
	Reply         string              `json:"reply,omitempty"`
	OriginalReply string              `json:"original_reply,omitempty"`
	Instruction   string              `json:"instruction,omitempty"`
	Phase         Phase               `json:"phase"`
	PreviousPhase Phase               `json:"previous_phase"`
	Quality       QualityAssessment   `json:"quality"`
	Relevance     RelevanceAssessment `json:"relevance"`
	Loop          *LoopVerdict        `json:"loop,omitempty"`
	UsageCount    int                 `json:"usage_count"`
	UsageLimit    int                 `json:"usage_limit"`
}

// PhaseChanged reports whether the turn advanced the phase.
func (r TurnResult) PhaseChanged() bool {
	return r.Phase != r.PreviousPhase
}
