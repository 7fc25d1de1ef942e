package dto

import "net/http"

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal = "ERR_INTERNAL"
	ErrCodeNotFound = "ERR_NOT_FOUND"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"

	// ErrCodeRunInProgress is used when an automation run is already executing
	ErrCodeRunInProgress = "ERR_RUN_IN_PROGRESS"
	// ErrCodeNotConfigured is used when the notification transport has no credentials
	ErrCodeNotConfigured = "ERR_NOT_CONFIGURED"
	// ErrCodeTriggerDisabled is used when no trigger secret is configured
	ErrCodeTriggerDisabled = "ERR_TRIGGER_DISABLED"
	// ErrCodeRunFailed is used when a run could not load or process invoices
	ErrCodeRunFailed = "ERR_RUN_FAILED"

	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeNotFound: http.StatusNotFound,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeRunInProgress:   http.StatusConflict,
	ErrCodeNotConfigured:   http.StatusServiceUnavailable,
	ErrCodeTriggerDisabled: http.StatusNotFound,
	ErrCodeRunFailed:       http.StatusInternalServerError,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
