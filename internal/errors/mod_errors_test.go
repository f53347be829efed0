package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(ErrRetrievalFailed, "connection reset", cause)

	assert.True(t, errors.Is(err, ErrRetrievalFailed))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrArtifactTooSmall))
	assert.Equal(t, ErrTypeNetwork, err.Type)
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrDeviceMismatch, "bound elsewhere", nil)

	assert.True(t, errors.Is(err, ErrDeviceMismatch))
	assert.Equal(t, ErrTypeDevice, err.Type)
	assert.Contains(t, err.Error(), "bound elsewhere")
}

func TestHTTPStatusAndCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrCredentialInvalid, http.StatusUnauthorized, "CREDENTIAL_INVALID"},
		{ErrDeviceMismatch, http.StatusForbidden, "DEVICE_MISMATCH"},
		{ErrSerialKeyInvalid, http.StatusUnprocessableEntity, "SERIAL_KEY_INVALID"},
		{ErrLocatorUnrecognized, http.StatusUnprocessableEntity, "LOCATOR_UNRECOGNIZED"},
		{ErrRetrievalFailed, http.StatusBadGateway, "RETRIEVAL_FAILED"},
		{ErrArtifactTooSmall, http.StatusBadGateway, "ARTIFACT_TOO_SMALL"},
		{ErrProtectionFailed, http.StatusInternalServerError, "PROTECTION_FAILED"},
		{ErrAlreadyInProgress, http.StatusConflict, "ALREADY_IN_PROGRESS"},
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, ToAPIError(tt.err).ErrorCode)
		})
	}
}

func TestStatusTextDisambiguatesOutcomes(t *testing.T) {
	key := StatusText(ErrSerialKeyInvalid)
	small := StatusText(ErrArtifactTooSmall)
	busy := StatusText(ErrAlreadyInProgress)
	download := StatusText(Wrap(ErrRetrievalFailed, "deadline exceeded", nil))

	assert.Equal(t, "Invalid serial key", key)
	assert.Equal(t, "Download failed or file too small", small)
	assert.Equal(t, "Operation already in progress", busy)
	assert.Equal(t, "Download failed: deadline exceeded", download)
	assert.Empty(t, StatusText(nil))

	seen := map[string]bool{}
	for _, s := range []string{key, small, busy, download} {
		assert.False(t, seen[s], "duplicate status text %q", s)
		seen[s] = true
	}
}

func TestRenderError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RenderError(rec, req, Wrap(ErrAlreadyInProgress, "Mod A", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"ALREADY_IN_PROGRESS"`)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestAppErrorWithContext(t *testing.T) {
	err := NewStorageError("write failed", io.EOF).WithContext("row", 4)

	assert.Equal(t, 4, err.Context["row"])
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, "[STORAGE] write failed: EOF", err.Error())
}
