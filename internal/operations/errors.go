package operations

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies why a dataset job failed
type ErrorType string

const (
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeTransform  ErrorType = "transform"
	ErrorTypeLoad       ErrorType = "load"
	ErrorTypeUnexpected ErrorType = "unexpected"
	ErrorTypeValidation ErrorType = "validation"
)

// Step names used in PipelineError.Step
const (
	StepExtract   = "extract"
	StepTransform = "transform"
	StepLoad      = "load"
)

// PipelineError is the error carried by a failed job. Its Error text is what
// ends up in the run summary, so it stays short: a message plus the cause.
type PipelineError struct {
	Type    ErrorType `json:"type"`
	Dataset string    `json:"dataset,omitempty"`
	Step    string    `json:"step,omitempty"`
	// Path is the source or destination file, Transform the transform label.
	Path      string `json:"path,omitempty"`
	Transform string `json:"transform,omitempty"`
	Message   string `json:"message"`
	Cause     error  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}

	msg := e.Message
	// the path must appear once, whether or not the cause already names it
	if e.Path != "" && (e.Cause == nil || !strings.Contains(e.Cause.Error(), e.Path)) {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}

	switch {
	case e.Cause == nil:
		return msg
	case msg == "":
		return e.Cause.Error()
	default:
		return fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewExtractionError tags a read failure with the source path
func NewExtractionError(dataset, path string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeExtraction,
		Dataset: dataset,
		Step:    StepExtract,
		Path:    path,
		Message: "extraction failed",
		Cause:   cause,
	}
}

// NewTransformError tags a transform failure with the transform label
func NewTransformError(dataset, transform string, cause error) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeTransform,
		Dataset:   dataset,
		Step:      StepTransform,
		Transform: transform,
		Message:   fmt.Sprintf("transform %s failed", transform),
		Cause:     cause,
	}
}

// NewLoadError tags a write failure with the destination path
func NewLoadError(dataset, path string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeLoad,
		Dataset: dataset,
		Step:    StepLoad,
		Path:    path,
		Message: "load failed",
		Cause:   cause,
	}
}

// NewUnexpectedError wraps a failure that escaped the normal job flow,
// such as a panic in a collaborator.
func NewUnexpectedError(dataset, step string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeUnexpected,
		Dataset: dataset,
		Step:    step,
		Message: "unexpected error",
		Cause:   cause,
	}
}

// NewValidationError reports a bad dataset configuration
func NewValidationError(dataset, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeValidation,
		Dataset: dataset,
		Message: message,
	}
}

// GetErrorType returns the type of err, looking through wrapping.
// Errors that are not a *PipelineError count as unexpected.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ErrorTypeUnexpected
}

// IsValidationError reports whether err is a configuration error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}
