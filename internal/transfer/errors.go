package transfer

import (
	"errors"
	"fmt"
)

// ErrorType classifies transfer failures
type ErrorType string

const (
	ErrorTypeDestinationUnavailable ErrorType = "DESTINATION_UNAVAILABLE"
	ErrorTypeTransfer               ErrorType = "TRANSFER_ERROR"
	ErrorTypeDirectory              ErrorType = "DIRECTORY_ERROR"
	ErrorTypeUnsupportedDestination ErrorType = "UNSUPPORTED_DESTINATION"
	ErrorTypeValidation             ErrorType = "VALIDATION_ERROR"
	ErrorTypeAlreadyRunning         ErrorType = "ALREADY_RUNNING"
)

var (
	// ErrAlreadyExists marks a directory that is already present at the destination.
	// Adapters wrap backend collision errors with it; the orchestrator suppresses it.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyRunning is returned when Run is called while another run is active
	ErrAlreadyRunning = NewTransferError(ErrorTypeAlreadyRunning, "a backup is already running on this manager", nil)
)

// TransferError is the error type returned by the transfer core and its adapters
type TransferError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
	Path        string    `json:"path,omitempty"`
	Cause       error     `json:"-"`
}

// Error implements the error interface
func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the message meant for the person running the backup
func (e *TransferError) UserMessage() string {
	if e.Remediation != "" {
		return e.Message + ". " + e.Remediation
	}
	return e.Message
}

// WithRemediation attaches a hint on how to fix the problem
func (e *TransferError) WithRemediation(hint string) *TransferError {
	e.Remediation = hint
	return e
}

// WithPath attaches the path the error refers to
func (e *TransferError) WithPath(path string) *TransferError {
	e.Path = path
	return e
}

// NewTransferError creates a new TransferError
func NewTransferError(errorType ErrorType, message string, cause error) *TransferError {
	return &TransferError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

func NewDestinationUnavailableError(message string, cause error) *TransferError {
	return NewTransferError(ErrorTypeDestinationUnavailable, message, cause)
}

func NewFileTransferError(path string, cause error) *TransferError {
	return NewTransferError(ErrorTypeTransfer, fmt.Sprintf("failed to transfer %s", path), cause).WithPath(path)
}

func NewDirectoryError(path string, cause error) *TransferError {
	return NewTransferError(ErrorTypeDirectory, fmt.Sprintf("failed to create directory %s", path), cause).WithPath(path)
}

func NewUnsupportedDestinationError(kind DestinationKind) *TransferError {
	return NewTransferError(ErrorTypeUnsupportedDestination, fmt.Sprintf("unsupported destination: %q", kind), nil)
}

func NewValidationError(message string, cause error) *TransferError {
	return NewTransferError(ErrorTypeValidation, message, cause)
}

// AlreadyExists wraps a backend collision so callers can match ErrAlreadyExists
func AlreadyExists(path string, cause error) error {
	return NewDirectoryError(path, fmt.Errorf("%w: %v", ErrAlreadyExists, cause))
}

// reason returns what went wrong beneath a TransferError so log lines that
// already name the path do not repeat it
func reason(err error) error {
	var te *TransferError
	if errors.As(err, &te) && te.Cause != nil {
		return te.Cause
	}
	return err
}

// IsType reports whether err (or anything it wraps) is a TransferError of the given type
func IsType(err error, errorType ErrorType) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Type == errorType
	}
	return false
}

func IsDestinationUnavailable(err error) bool {
	return IsType(err, ErrorTypeDestinationUnavailable)
}

func IsUnsupportedDestination(err error) bool {
	return IsType(err, ErrorTypeUnsupportedDestination)
}

// ValidationError represents a single invalid field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
