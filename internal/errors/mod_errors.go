package errors

import (
	"errors"
	"net/http"
)

// Licensing and installation outcomes. Callers compare with errors.Is.
var (
	ErrCredentialInvalid   = errors.New("invalid credentials")
	ErrDeviceMismatch      = errors.New("account is bound to another device")
	ErrSerialKeyInvalid    = errors.New("invalid serial key")
	ErrLocatorUnrecognized = errors.New("unrecognized download link")
	ErrRetrievalFailed     = errors.New("download failed")
	ErrArtifactTooSmall    = errors.New("download failed or file too small")
	ErrProtectionFailed    = errors.New("file protection could not be applied")
	ErrAlreadyInProgress   = errors.New("operation already in progress")
	ErrNotFound            = errors.New("not found")
)

type mapping struct {
	sentinel error
	errType  ErrorType
	status   int
	code     string
	text     string
}

var mappings = []mapping{
	{ErrCredentialInvalid, ErrTypeCredential, http.StatusUnauthorized, "CREDENTIAL_INVALID", "Invalid credentials"},
	{ErrDeviceMismatch, ErrTypeDevice, http.StatusForbidden, "DEVICE_MISMATCH", "This account is registered to a different device"},
	{ErrSerialKeyInvalid, ErrTypeSerialKey, http.StatusUnprocessableEntity, "SERIAL_KEY_INVALID", "Invalid serial key"},
	{ErrLocatorUnrecognized, ErrTypeLocator, http.StatusUnprocessableEntity, "LOCATOR_UNRECOGNIZED", "Invalid download link"},
	{ErrArtifactTooSmall, ErrTypeNetwork, http.StatusBadGateway, "ARTIFACT_TOO_SMALL", "Download failed or file too small"},
	{ErrRetrievalFailed, ErrTypeNetwork, http.StatusBadGateway, "RETRIEVAL_FAILED", "Download failed"},
	{ErrProtectionFailed, ErrTypePermission, http.StatusInternalServerError, "PROTECTION_FAILED", "Installed (file protection could not be applied)"},
	{ErrAlreadyInProgress, ErrTypeConflict, http.StatusConflict, "ALREADY_IN_PROGRESS", "Operation already in progress"},
	{ErrNotFound, ErrTypeNotFound, http.StatusNotFound, "NOT_FOUND", "Mod not found"},
}

func lookup(err error) (mapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			return m, true
		}
	}
	return mapping{}, false
}

// Wrap attaches a message and the taxonomy type of sentinel to cause.
// errors.Is(result, sentinel) holds whether or not cause is nil.
func Wrap(sentinel error, message string, cause error) *AppError {
	errType := ErrTypeStorage
	if m, ok := lookup(sentinel); ok {
		errType = m.errType
	}
	if cause == nil {
		return NewAppError(errType, message, sentinel)
	}
	return NewAppError(errType, message, &joined{sentinel: sentinel, cause: cause})
}

// joined makes both the sentinel and the underlying cause reachable by errors.Is.
type joined struct {
	sentinel error
	cause    error
}

func (j *joined) Error() string   { return j.sentinel.Error() + ": " + j.cause.Error() }
func (j *joined) Unwrap() []error { return []error{j.sentinel, j.cause} }

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if m, ok := lookup(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// ToAPIError converts err to its API representation.
// Errors outside the taxonomy become a generic internal error.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if m, ok := lookup(err); ok {
		return New(m.status, m.code, m.text)
	}
	return ErrInternalServer
}

// StatusText returns the user-facing message for a terminal outcome.
func StatusText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrRetrievalFailed) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Message != "" {
			return "Download failed: " + appErr.Message
		}
	}
	if m, ok := lookup(err); ok {
		return m.text
	}
	return "Unexpected error: " + err.Error()
}
