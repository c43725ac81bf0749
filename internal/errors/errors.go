// Package errors provides structured error types for draftsmith.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes for draftsmith operations.
const (
	// Config errors
	CodeConfigMissingField = "CONFIG_001" // Missing required field
	CodeConfigInvalidValue = "CONFIG_002" // Invalid value

	// Workflow definition errors
	CodeWorkflowParse    = "WF_001" // Parse error
	CodeWorkflowInvalid  = "WF_002" // Validation error
	CodeWorkflowNotFound = "WF_003" // Workflow not found

	// Provider errors
	CodeProviderTransient = "PROVIDER_001" // Retryable provider failure
	CodeProviderPermanent = "PROVIDER_002" // Non-retryable provider failure
	CodeProviderAuth      = "PROVIDER_003" // Authentication or key configuration

	// Step errors
	CodeStepFailed        = "STEP_001" // Capability returned an error
	CodeUnknownCapability = "STEP_002" // Descriptor names no registered capability

	// Checkpoint errors
	CodeCheckpointNotFound  = "CKPT_001" // No checkpoint for run id
	CodeCheckpointCorrupted = "CKPT_002" // Checkpoint exists but is unreadable
	CodeCheckpointIO        = "CKPT_003" // Underlying storage failure

	// Run errors
	CodeRunInvalidTransition = "RUN_001" // State machine violation
	CodeRunActive            = "RUN_002" // Another orchestrator holds the run
	CodeRunTerminal          = "RUN_003" // Run already finished

	// Review errors
	CodeReviewRejected    = "REVIEW_001" // Gate rejected by reviewer
	CodeReviewInvalidEdit = "REVIEW_002" // Edited artifact failed validation

	// Budget errors
	CodeBudgetExceeded = "BUDGET_001" // Cost ceiling crossed
)

// DraftsmithError is the structured error type for draftsmith operations.
type DraftsmithError struct {
	Code    string         `json:"code"`              // Error code (e.g., "CKPT_002")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (run_id, step, etc.)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *DraftsmithError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DraftsmithError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *DraftsmithError) WithDetail(key string, value any) *DraftsmithError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *DraftsmithError) WithCause(err error) *DraftsmithError {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *DraftsmithError) MarshalJSON() ([]byte, error) {
	type alias DraftsmithError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new DraftsmithError.
func New(code, message string) *DraftsmithError {
	return &DraftsmithError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new DraftsmithError with formatted message.
func Newf(code, format string, args ...any) *DraftsmithError {
	return &DraftsmithError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a DraftsmithError.
func Wrap(code, message string, err error) *DraftsmithError {
	return &DraftsmithError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted DraftsmithError.
func Wrapf(code string, err error, format string, args ...any) *DraftsmithError {
	return &DraftsmithError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// --- Config Errors ---

// ConfigMissingField creates an error for a missing config field.
func ConfigMissingField(field string) *DraftsmithError {
	return Newf(CodeConfigMissingField, "missing required config field: %s", field).
		WithDetail("field", field)
}

// ConfigInvalidValue creates an error for an invalid config value.
func ConfigInvalidValue(field string, value any, reason string) *DraftsmithError {
	return Newf(CodeConfigInvalidValue, "invalid config value for %s: %s", field, reason).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

// --- Workflow Errors ---

// WorkflowParseError creates an error for a workflow definition that failed to parse.
func WorkflowParseError(path string, err error) *DraftsmithError {
	return Wrap(CodeWorkflowParse, "failed to parse workflow definition", err).
		WithDetail("path", path)
}

// WorkflowInvalid creates an error for a workflow that failed validation.
func WorkflowInvalid(workflow, reason string) *DraftsmithError {
	return Newf(CodeWorkflowInvalid, "invalid workflow %s: %s", workflow, reason).
		WithDetail("workflow", workflow).
		WithDetail("reason", reason)
}

// WorkflowNotFound creates an error for a missing workflow.
func WorkflowNotFound(workflow string) *DraftsmithError {
	return Newf(CodeWorkflowNotFound, "workflow not found: %s", workflow).
		WithDetail("workflow", workflow)
}

// --- Provider Errors ---

// ProviderTransient creates a retryable provider error.
func ProviderTransient(provider string, err error) *DraftsmithError {
	return Wrap(CodeProviderTransient, "transient provider failure", err).
		WithDetail("provider", provider)
}

// ProviderPermanent creates a non-retryable provider error.
func ProviderPermanent(provider string, err error) *DraftsmithError {
	return Wrap(CodeProviderPermanent, "provider request failed", err).
		WithDetail("provider", provider)
}

// ProviderAuth creates an error for provider authentication failures.
func ProviderAuth(provider string, err error) *DraftsmithError {
	return Wrap(CodeProviderAuth, "provider authentication failed", err).
		WithDetail("provider", provider)
}

// --- Step Errors ---

// StepFailed creates an error for a capability that returned an error.
func StepFailed(step string, iteration int, err error) *DraftsmithError {
	return Wrapf(CodeStepFailed, err, "step %s failed on pass %d", step, iteration).
		WithDetail("step", step).
		WithDetail("iteration", iteration)
}

// UnknownCapability creates an error for an unregistered capability name.
func UnknownCapability(step, capability string) *DraftsmithError {
	return Newf(CodeUnknownCapability, "step %s names unknown capability: %s", step, capability).
		WithDetail("step", step).
		WithDetail("capability", capability)
}

// --- Checkpoint Errors ---

// CheckpointNotFound creates an error for a missing checkpoint.
func CheckpointNotFound(runID string) *DraftsmithError {
	return Newf(CodeCheckpointNotFound, "no checkpoint for run: %s", runID).
		WithDetail("run_id", runID)
}

// CheckpointCorrupted creates an error for an unreadable checkpoint.
// Deliberately distinct from not-found: a corrupt snapshot must never be
// mistaken for a fresh run.
func CheckpointCorrupted(runID string, err error) *DraftsmithError {
	return Wrapf(CodeCheckpointCorrupted, err, "checkpoint for run %s is corrupted", runID).
		WithDetail("run_id", runID)
}

// CheckpointIO creates an error for storage failures during save or load.
func CheckpointIO(runID string, err error) *DraftsmithError {
	return Wrap(CodeCheckpointIO, "checkpoint storage failure", err).
		WithDetail("run_id", runID)
}

// --- Run Errors ---

// RunInvalidTransition creates an error for a state machine violation.
func RunInvalidTransition(runID, from, to string) *DraftsmithError {
	return Newf(CodeRunInvalidTransition, "invalid run transition for %s: %s -> %s", runID, from, to).
		WithDetail("run_id", runID).
		WithDetail("from", from).
		WithDetail("to", to)
}

// RunActive creates an error for a run whose lock is held elsewhere.
func RunActive(runID string) *DraftsmithError {
	return Newf(CodeRunActive, "run %s is already being orchestrated (lock held)", runID).
		WithDetail("run_id", runID)
}

// RunTerminal creates an error for operating on a finished run.
func RunTerminal(runID, status string) *DraftsmithError {
	return Newf(CodeRunTerminal, "run %s already finished with status %s", runID, status).
		WithDetail("run_id", runID).
		WithDetail("status", status)
}

// --- Review Errors ---

// ReviewRejected creates an error for a rejected approval gate.
func ReviewRejected(step, reason string) *DraftsmithError {
	e := Newf(CodeReviewRejected, "step %s rejected at review", step).
		WithDetail("step", step)
	if reason != "" {
		e = e.WithDetail("reason", reason)
	}
	return e
}

// ReviewInvalidEdit creates an error for an edited artifact that failed validation.
func ReviewInvalidEdit(step string, err error) *DraftsmithError {
	return Wrapf(CodeReviewInvalidEdit, err, "edited artifact for step %s is invalid", step).
		WithDetail("step", step)
}

// --- Budget Errors ---

// BudgetExceeded creates an error for a crossed cost ceiling.
func BudgetExceeded(runID string, spent, budget float64) *DraftsmithError {
	return Newf(CodeBudgetExceeded, "run %s spent $%.4f, over budget $%.4f", runID, spent, budget).
		WithDetail("run_id", runID).
		WithDetail("spent_usd", spent).
		WithDetail("budget_usd", budget)
}

// HasCode checks if an error is a DraftsmithError with the given code.
// It handles wrapped errors by unwrapping to find a DraftsmithError.
func HasCode(err error, code string) bool {
	var derr *DraftsmithError
	if errors.As(err, &derr) {
		return derr.Code == code
	}
	return false
}

// Code returns the error code if err is a DraftsmithError, empty string otherwise.
// It handles wrapped errors by unwrapping to find a DraftsmithError.
func Code(err error) string {
	var derr *DraftsmithError
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}

// IsRetryable reports whether err represents a transient condition worth
// retrying. Only transient provider failures qualify.
func IsRetryable(err error) bool {
	return HasCode(err, CodeProviderTransient)
}
