package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Transport & service errors
// 12000-12999: Scoring & review errors
// 13000-13999: Batch job errors
// 14000-14999: Export errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10008

	// Storage errors (10200-10299)
	CacheError   ErrorCode = 10200
	StorageError ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Transport & Service Errors (11000-11999) ==========

	// TransientNetwork is a single failed request: timeout, 5xx or connectivity.
	TransientNetwork ErrorCode = 11000
	// ServiceRejection is a handled error payload returned by the backend.
	ServiceRejection ErrorCode = 11001
	DecodeFailed     ErrorCode = 11002

	// ========== Scoring & Review Errors (12000-12999) ==========

	AnswerTooLong   ErrorCode = 12000
	ScoreOutOfRange ErrorCode = 12001
	ResultNotScored ErrorCode = 12002
	NoEditOpen      ErrorCode = 12004

	// ========== Batch Job Errors (13000-13999) ==========

	// TerminalJobError is a job that reported status=error. It is data, not a transport failure.
	TerminalJobError  ErrorCode = 13000
	InvalidSnapshot   ErrorCode = 13001
	InvalidTransition ErrorCode = 13002
	JobImmutable      ErrorCode = 13003
	PollExhausted     ErrorCode = 13004
	PollCanceled      ErrorCode = 13005

	// ========== Export Errors (14000-14999) ==========

	ExportFailed      ErrorCode = 14000
	UnsupportedFormat ErrorCode = 14001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Timeout:             "Request timeout",

	// Storage
	CacheError:   "Cache operation failed",
	StorageError: "Storage operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Transport
	TransientNetwork: "Request failed, please try again",
	ServiceRejection: "Request rejected by grading service",
	DecodeFailed:     "Failed to decode service response",

	// Scoring
	AnswerTooLong:   "Answer exceeds the question's character limit",
	ScoreOutOfRange: "Final score is out of range",
	ResultNotScored: "Result has no AI score yet",
	NoEditOpen:      "No review edit is open",

	// Batch
	TerminalJobError:  "Batch job finished with an error",
	InvalidSnapshot:   "Batch status snapshot violates count invariants",
	InvalidTransition: "Invalid batch job state transition",
	JobImmutable:      "Batch job is finished and can no longer change",
	PollExhausted:     "Batch status polling gave up after repeated failures",
	PollCanceled:      "Batch status polling was canceled",

	// Export
	ExportFailed:      "Export failed",
	UnsupportedFormat: "Unsupported export format",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound:
		return 404
	case c == JobImmutable:
		return 409
	case c == TransientNetwork:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == AnswerTooLong, c == ScoreOutOfRange, c == UnsupportedFormat:
		return 400
	default:
		return 500
	}
}

// Transient reports whether an operation failing with this code may succeed when repeated.
func (c ErrorCode) Transient() bool {
	return c == TransientNetwork || c == Timeout
}

// Validation reports whether the code is a local precondition failure that is never sent to
// the backend.
func (c ErrorCode) Validation() bool {
	return (c >= 10300 && c < 10400) || c == AnswerTooLong || c == ScoreOutOfRange
}
