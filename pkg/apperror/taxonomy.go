package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups error codes into the classes a UI reacts to differently.
type Category string

const (
	CategoryValidation   Category = "VALIDATION"
	CategoryWallet       Category = "WALLET"
	CategoryNetworkRead  Category = "NETWORK_READ"
	CategoryNetworkWrite Category = "NETWORK_WRITE"
	CategoryVerification Category = "VERIFICATION"
	CategoryInvoice      Category = "INVOICE"
	CategoryAuth         Category = "AUTH"
	CategorySystem       Category = "SYSTEM"
)

// Kind classifies err. Unknown errors are CategorySystem.
func Kind(err error) Category {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CategoryValidation
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return CategorySystem
	}
	switch {
	case strings.HasPrefix(appErr.Code, "VAL_"):
		return CategoryValidation
	case strings.HasPrefix(appErr.Code, "WAL_"):
		return CategoryWallet
	case appErr.Code == "NET_001":
		return CategoryNetworkRead
	case strings.HasPrefix(appErr.Code, "NET_"):
		return CategoryNetworkWrite
	case strings.HasPrefix(appErr.Code, "VER_"):
		return CategoryVerification
	case strings.HasPrefix(appErr.Code, "INV_"):
		return CategoryInvoice
	case strings.HasPrefix(appErr.Code, "AUTH_"), strings.HasPrefix(appErr.Code, "RATE_"):
		return CategoryAuth
	default:
		return CategorySystem
	}
}

// ParseError reports a decimal string that cannot be converted to base units.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidAmount()) match parse failures.
func (e *ParseError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return appErr.Code == "VAL_002"
	}
	_, ok := target.(*ParseError)
	return ok
}
