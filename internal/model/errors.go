package model

import "fmt"

// InputErrorKind classifies caller-facing input failures
type InputErrorKind string

const (
	// InputMissing means neither HTML nor URL was supplied
	InputMissing InputErrorKind = "missing_input"
	// InputFetch means the source page could not be fetched
	InputFetch InputErrorKind = "fetch"
)

// InputError is raised for a caller precondition violation or a failed
// fetch of the source page. It is never raised for missing content inside
// a parseable document.
type InputError struct {
	Kind       InputErrorKind
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.URL != "" {
		msg += fmt.Sprintf(" (url=%s)", e.URL)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// NewMissingInputError creates the error for a request carrying neither
// HTML nor URL
func NewMissingInputError() *InputError {
	return &InputError{
		Kind:    InputMissing,
		Message: `send either "html" or "url"`,
	}
}

// NewFetchError creates a fetch failure error
func NewFetchError(url string, statusCode int, message string, cause error) *InputError {
	return &InputError{
		Kind:       InputFetch,
		URL:        url,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// AcceptanceError reports a non-numeric artifact where a number was
// expected. It points at a normalizer defect, not at missing data, and
// carries the partial result for diagnosis.
type AcceptanceError struct {
	Field  string
	Value  interface{}
	Result *ParseResult
}

func (e *AcceptanceError) Error() string {
	return fmt.Sprintf("numeric conversion failed on %s (value=%v)", e.Field, e.Value)
}

// NewAcceptanceError creates a new acceptance error
func NewAcceptanceError(field string, value interface{}, result *ParseResult) *AcceptanceError {
	return &AcceptanceError{
		Field:  field,
		Value:  value,
		Result: result,
	}
}

// LayoutError reports an invalid layout table entry. It is raised when a
// layout is loaded or registered, never while parsing a document.
type LayoutError struct {
	Layout  string
	Field   string
	Message string
	Cause   error
}

func (e *LayoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("layout %s: %s: %s (%v)", e.Layout, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("layout %s: %s: %s", e.Layout, e.Field, e.Message)
}

func (e *LayoutError) Unwrap() error {
	return e.Cause
}

// NewLayoutError creates a new layout error
func NewLayoutError(layout, field, message string, cause error) *LayoutError {
	return &LayoutError{
		Layout:  layout,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
