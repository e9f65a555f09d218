package common

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError indicates invalid input data.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// SignatureError indicates a webhook payload failed its authenticity check.
// Handled as 401 and logged as a security event; no state is mutated.
type SignatureError struct {
	Source string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid webhook signature from %s", e.Source)
}

// NewSignatureError creates a new SignatureError.
func NewSignatureError(source string) *SignatureError {
	return &SignatureError{Source: source}
}

// RetryNotAllowedError indicates a retry was requested for a log that is not
// retryable (not failed, or attempt budget exhausted).
type RetryNotAllowedError struct {
	Reason string
}

func (e *RetryNotAllowedError) Error() string {
	return e.Reason
}

// NewRetryNotAllowedError creates a new RetryNotAllowedError.
func NewRetryNotAllowedError(reason string) *RetryNotAllowedError {
	return &RetryNotAllowedError{Reason: reason}
}

// StateConflictError indicates an operation was attempted from an invalid
// lifecycle state (e.g. pausing a campaign that is not executing).
type StateConflictError struct {
	Message string
}

func (e *StateConflictError) Error() string {
	return e.Message
}

// NewStateConflictError creates a new StateConflictError.
func NewStateConflictError(message string) *StateConflictError {
	return &StateConflictError{Message: message}
}

// TransportError indicates a provider send failure. It is recovered into a
// failed log entry at the send site and never propagated to batch callers.
type TransportError struct {
	Provider string
	Message  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %s", e.Provider, e.Message)
}

// NewTransportError creates a new TransportError.
func NewTransportError(provider, message string) *TransportError {
	return &TransportError{Provider: provider, Message: message}
}

// ProviderError indicates an external provider failure outside the send path.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Message: message}
}
