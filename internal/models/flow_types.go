// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific type of conversation flow
type FlowType string

// StateType represents a specific state within a flow
type StateType string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeIceberg FlowType = "iceberg"
)

// PhaseState converts a phase into the flow state stored for it.
func PhaseState(p Phase) StateType {
	return StateType(p)
}

// Data key constants for the iceberg flow.
const (
	DataKeyConversationHistory DataKey = "conversationHistory"
	DataKeyUsageCount          DataKey = "usageCount"
	DataKeyUsageLimit          DataKey = "usageLimit"
)

// Flag keys.
const (
	FlagHealingModeEnabled = "healing_mode_enabled"
)
