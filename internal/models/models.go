// Package models defines the core data structures for Skopos.
//
// It includes the session, turn and phase types shared by the orchestration packages,
// as well as the request and response envelopes used by the HTTP API.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length (in runes) for a single chat message
	MaxMessageLength = 4096
	// MaxSessionIDLength defines the maximum allowed length for a session identifier
	MaxSessionIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrInvalidSessionID = errors.New("invalid session id")
)

var requestValidate = validator.New()

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	Message string `json:"message" validate:"required,max=16384"`
}

// Validate checks that the request carries a usable user message.
func (r TurnRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		if strings.TrimSpace(r.Message) == "" {
			return ErrEmptyMessage
		}
		return err
	}
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len([]rune(r.Message)) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ReplyRequest is the body of POST /sessions/{id}/replies, used by callers that run the
// generation step themselves and hand the candidate reply back for loop checking.
type ReplyRequest struct {
	Reply string `json:"reply" validate:"required,max=16384"`
}

// Validate checks that the request carries a candidate reply.
func (r ReplyRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Reply) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// HealingModeRequest is the body of PUT /settings/healing-mode.
type HealingModeRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// Validate checks that the enabled field was provided.
func (r HealingModeRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ValidateSessionID checks a session identifier taken from a URL path.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLength || strings.ContainsAny(id, " \t\n/") {
		return ErrInvalidSessionID
	}
	return nil
}

// HealingModeStatus reports the enablement flag.
type HealingModeStatus struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response structure.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
