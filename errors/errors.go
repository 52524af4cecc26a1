package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EngineError is the interface for all structured errors in agentplan.
// It extends the standard error interface with the context the scheduler
// and executor need for retry and propagation decisions.
type EngineError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// StatusCode returns the HTTP-style status code, or 0 if none applies.
	StatusCode() int

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of EngineError.
type Error struct {
	code       ErrorCode
	category   ErrorCategory
	message    string
	cause      error
	metadata   map[string]string
	retryable  *bool // nil means use default based on category
	statusCode int   // HTTP-style status code from a tool/transport, 0 if none
	timestamp  time.Time
	taskID     int    // related task, -1 if none
	tool       string // tool being invoked, if applicable
}

// Ensure Error implements EngineError and json.Marshaler/Unmarshaler.
var (
	_ EngineError      = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// StatusCode returns the HTTP-style status code, or 0 if none applies.
func (e *Error) StatusCode() int {
	return e.statusCode
}

// Metadata returns the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return make(map[string]string)
	}
	// Return a copy to prevent modification
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// TaskID returns the related task ID, or -1 if none.
func (e *Error) TaskID() int {
	return e.taskID
}

// Tool returns the tool being invoked when the error occurred, if any.
func (e *Error) Tool() string {
	return e.tool
}

// errorJSON is the JSON representation of an Error.
type errorJSON struct {
	Code       ErrorCode         `json:"code"`
	Category   ErrorCategory     `json:"category"`
	Message    string            `json:"message"`
	Cause      string            `json:"cause,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Retryable  bool              `json:"retryable"`
	StatusCode int               `json:"status_code,omitempty"`
	Timestamp  string            `json:"timestamp,omitempty"`
	TaskID     *int              `json:"task_id,omitempty"`
	Tool       string            `json:"tool,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:       e.code,
		Category:   e.category,
		Message:    e.message,
		Metadata:   e.metadata,
		Retryable:  e.Retryable(),
		StatusCode: e.statusCode,
		Tool:       e.tool,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if e.taskID >= 0 {
		id := e.taskID
		j.TaskID = &id
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.metadata = j.Metadata
	e.statusCode = j.StatusCode
	e.tool = j.Tool
	e.taskID = -1
	if j.TaskID != nil {
		e.taskID = *j.TaskID
	}
	r := j.Retryable
	e.retryable = &r
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithStatusCode sets the HTTP-style status code reported by a tool.
func WithStatusCode(code int) Option {
	return func(e *Error) {
		e.statusCode = code
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithMetadataMap adds multiple metadata key-value pairs.
func WithMetadataMap(m map[string]string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		for k, v := range m {
			e.metadata[k] = v
		}
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id int) Option {
	return func(e *Error) {
		e.taskID = id
	}
}

// WithTool sets the tool being invoked.
func WithTool(tool string) Option {
	return func(e *Error) {
		e.tool = tool
	}
}

// WithTimestamp sets a custom timestamp.
func WithTimestamp(t time.Time) Option {
	return func(e *Error) {
		e.timestamp = t
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
		taskID:    -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(ErrCodeTimeout, message, opts...)
}

// NotFound creates a not found error.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// Conflict creates a conflict error.
func Conflict(message string, opts ...Option) *Error {
	return New(ErrCodeConflict, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}

// InvalidTransition creates an illegal-transition error naming the
// currently valid target states.
func InvalidTransition(from, to string, valid []string, opts ...Option) *Error {
	msg := fmt.Sprintf("invalid transition from %s to %s (valid: %s)",
		from, to, strings.Join(valid, ", "))
	return New(ErrCodeInvalidTransition, msg, opts...)
}

// DependencyViolation creates a fatal dependency-reference error.
func DependencyViolation(taskID, dep int, opts ...Option) *Error {
	opts = append([]Option{WithTaskID(taskID)}, opts...)
	return New(ErrCodeDependency,
		fmt.Sprintf("task %d references invalid dependency %d", taskID, dep), opts...)
}

// ToolFailed creates a tool invocation failure error.
func ToolFailed(tool, reason string, opts ...Option) *Error {
	opts = append([]Option{WithTool(tool)}, opts...)
	return New(ErrCodeToolFailed, fmt.Sprintf("tool %s failed: %s", tool, reason), opts...)
}

// CheckpointIO creates a checkpoint I/O error.
func CheckpointIO(message string, opts ...Option) *Error {
	return New(ErrCodeCheckpointIO, message, opts...)
}
