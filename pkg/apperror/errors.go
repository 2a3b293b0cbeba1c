package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses and to the
// user-facing error taxonomy of the orchestrator.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches two AppErrors by code so callers can use errors.Is against a
// constructor result.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func ErrNotConnected() *AppError {
	return New("VAL_001", "Wallet not connected", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrConfirmationRequired() *AppError {
	return New("VAL_003", "Receiver confirmation required", http.StatusBadRequest)
}

func ErrActionBusy() *AppError {
	return New("VAL_004", "Another action is still in progress", http.StatusConflict)
}

func ErrInvalidAddress(field string) *AppError {
	return New("VAL_005", fmt.Sprintf("Invalid address: %s", field), http.StatusBadRequest)
}

func ErrMintPriceUnavailable() *AppError {
	return New("VAL_006", "Mint price not loaded", http.StatusBadRequest)
}

// Validation returns a VAL_002-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("VAL_002", message, http.StatusBadRequest)
}

// ---- Wallet (WAL) ----

// ErrWalletRejected keeps the wallet's message verbatim for display.
func ErrWalletRejected(err error) *AppError {
	msg := "Wallet rejected the request"
	if err != nil {
		msg = err.Error()
	}
	return Wrap("WAL_001", msg, http.StatusBadRequest, err)
}

func ErrUnsupportedWallet() *AppError {
	return New("WAL_002", "Your wallet does not support programmatic chain switching", http.StatusBadRequest)
}

// ---- Network (NET) ----

func ErrReadFailed(field string, err error) *AppError {
	return Wrap("NET_001", fmt.Sprintf("Read failed: %s", field), http.StatusBadGateway, err)
}

func ErrWriteFailed(err error) *AppError {
	msg := "Transaction submission failed"
	if err != nil {
		msg = err.Error()
	}
	return Wrap("NET_002", msg, http.StatusBadGateway, err)
}

func ErrReverted(txRef string) *AppError {
	return New("NET_003", fmt.Sprintf("Transaction %s reverted", txRef), http.StatusUnprocessableEntity)
}

func ErrReceiptTimeout(txRef string, err error) *AppError {
	return Wrap("NET_004", fmt.Sprintf("Timed out waiting for receipt of %s", txRef), http.StatusGatewayTimeout, err)
}

// ---- Verification (VER) ----

func ErrVerificationFailed(reason string) *AppError {
	return New("VER_001", reason, http.StatusUnprocessableEntity)
}

func ErrVerifierUnreachable(err error) *AppError {
	return Wrap("VER_002", "Verification endpoint unreachable", http.StatusBadGateway, err)
}

// ---- Invoices (INV) ----

func ErrNotFound(entity string) *AppError {
	return New("INV_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvoiceAlreadyPaid() *AppError {
	return New("INV_002", "Invoice already paid", http.StatusConflict)
}

func ErrTxAlreadyClaimed() *AppError {
	return New("INV_003", "Transaction already used to settle another invoice", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAccountSuspended() *AppError {
	return New("AUTH_004", "Account is suspended", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
