package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("VAL_002", "Invalid amount", http.StatusBadRequest),
			expected: "[VAL_002] Invalid amount",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", ErrNotConnected())

	assert.True(t, errors.Is(err, ErrNotConnected()))
	assert.False(t, errors.Is(err, ErrInvalidAmount()))
}

func TestErrWalletRejected_KeepsMessageVerbatim(t *testing.T) {
	err := ErrWalletRejected(errors.New("User rejected the request."))

	assert.Equal(t, "WAL_001", err.Code)
	assert.Equal(t, "User rejected the request.", err.Message)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not connected", ErrNotConnected(), "VAL_001", http.StatusBadRequest},
		{"invalid amount", ErrInvalidAmount(), "VAL_002", http.StatusBadRequest},
		{"confirmation", ErrConfirmationRequired(), "VAL_003", http.StatusBadRequest},
		{"busy", ErrActionBusy(), "VAL_004", http.StatusConflict},
		{"unsupported wallet", ErrUnsupportedWallet(), "WAL_002", http.StatusBadRequest},
		{"reverted", ErrReverted("0xabc"), "NET_003", http.StatusUnprocessableEntity},
		{"verification", ErrVerificationFailed("amount mismatch"), "VER_001", http.StatusUnprocessableEntity},
		{"not found", ErrNotFound("invoice"), "INV_001", http.StatusNotFound},
		{"already paid", ErrInvoiceAlreadyPaid(), "INV_002", http.StatusConflict},
		{"rate limit", ErrRateLimitExceeded(), "RATE_001", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{ErrNotConnected(), CategoryValidation},
		{&ParseError{Input: ".", Reason: "empty"}, CategoryValidation},
		{ErrWalletRejected(errors.New("denied")), CategoryWallet},
		{ErrReadFailed("balance", errors.New("rpc down")), CategoryNetworkRead},
		{ErrReverted("0x1"), CategoryNetworkWrite},
		{ErrReceiptTimeout("0x1", nil), CategoryNetworkWrite},
		{ErrVerificationFailed("nope"), CategoryVerification},
		{ErrNotFound("invoice"), CategoryInvoice},
		{errors.New("boom"), CategorySystem},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), tt.err.Error())
	}
}

func TestParseError_IsInvalidAmount(t *testing.T) {
	err := fmt.Errorf("convert: %w", &ParseError{Input: "1.2.3", Reason: "malformed"})

	assert.True(t, errors.Is(err, ErrInvalidAmount()))
	assert.Contains(t, err.Error(), `"1.2.3"`)
}
