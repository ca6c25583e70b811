package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Callers compare codes, never message text.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidStage   ErrorCode = "validation_invalid_stage"
	ErrCodeValidationInvalidDate    ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidChannel ErrorCode = "validation_invalid_channel"
	ErrCodeValidationRecipient      ErrorCode = "validation_recipient_missing"

	// Auth (401)
	ErrCodeAuthTokenMissing  ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid  ErrorCode = "auth_token_invalid"
	ErrCodeAuthKeyNotEnabled ErrorCode = "auth_key_not_configured"

	// Configuration (tenant-level, reported in sweep summaries)
	ErrCodeConfigChannelUnavailable ErrorCode = "config_channel_unavailable"
	ErrCodeConfigChannelForbidden   ErrorCode = "config_channel_forbidden"
	ErrCodeConfigTemplateMissing    ErrorCode = "config_template_missing"

	// Not Found (404)
	ErrCodeNotFoundTenant ErrorCode = "not_found_tenant"
	ErrCodeNotFoundDevice ErrorCode = "not_found_device"
	ErrCodeNotFoundReport ErrorCode = "not_found_report"
	ErrCodeNotFoundRoute  ErrorCode = "not_found_route"

	// Conflict (409)
	ErrCodeConflictLedgerDuplicate ErrorCode = "conflict_ledger_duplicate"
	ErrCodeConflictSweepRunning    ErrorCode = "conflict_sweep_running"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamPortal      ErrorCode = "upstream_portal_unavailable"
	ErrCodeUpstreamSMSGateway  ErrorCode = "upstream_sms_gateway_unavailable"
	ErrCodeUpstreamChatBot     ErrorCode = "upstream_chatbot_unavailable"
	ErrCodeUpstreamMailServer  ErrorCode = "upstream_mail_server_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamBadResponse ErrorCode = "upstream_bad_response"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the ops API to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "config_"):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Repositories, transports
// and services express failures as AppError so callers can branch on Code
// and the ops API can map them to HTTP responses.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code. This lets
// callers match sentinel values such as ErrDuplicateLedgerEntry with
// errors.Is regardless of the wrapped cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrDuplicateLedgerEntry is returned by ledger stores when the
// (hardware id, expiry date, stage) triple was already recorded inside the
// lookback window. Match it with errors.Is.
var ErrDuplicateLedgerEntry = NewAppError(ErrCodeConflictLedgerDuplicate, "reminder already recorded for this expiry cycle", nil)
