package utils

import (
	"context"
	"errors"
	"fmt"
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code so predefined errors work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr create application error with original error
func NewErrorWithErr(code ResponseCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized    = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden       = NewError(CodeForbidden, "permission denied")
	ErrRateLimit       = NewError(CodeRateLimit, "rate limit exceeded")
	ErrAccountDisabled = NewError(CodeAccountDisabled, "account is not active")

	ErrUserNotFound      = NewError(CodeUserNotFound, "user not found")
	ErrProductNotFound   = NewError(CodeProductNotFound, "product not found")
	ErrOrderNotFound     = NewError(CodeOrderNotFound, "order not found")
	ErrPromoNotFound     = NewError(CodePromoNotFound, "promo code not found")
	ErrViolationNotFound = NewError(CodeViolationNotFound, "violation not found")
	ErrShopNotFound      = NewError(CodeShopNotFound, "shop not found")

	ErrStockNotEnough  = NewError(CodeStockNotEnough, "insufficient stock")
	ErrPointsNotEnough = NewError(CodePointsNotEnough, "insufficient loyalty points")
	ErrInvalidState    = NewError(CodeInvalidState, "operation not allowed in current state")
	ErrPromoInvalid    = NewError(CodePromoInvalid, "promo code is not valid")
	ErrConflict        = NewError(CodeConflict, "resource already exists")

	ErrInternalError = NewError(CodeInternalError, "internal server error")
	ErrDatabaseError = NewError(CodeDatabaseError, "database error")
	ErrRedisError    = NewError(CodeRedisError, "redis error")
	ErrGatewayError  = NewError(CodeGatewayError, "payment gateway error")
)

// IsAppError check if it's an application error, unwrapping as needed
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// DatabaseError wraps a datastore failure into the generic user-facing error.
func DatabaseError(err error) *AppError {
	return NewErrorWithErr(CodeDatabaseError, ErrDatabaseError.Message, err)
}

// IsRetriable reports whether err is a transient server-side failure worth
// another attempt. Business rejections are final.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	appErr, ok := IsAppError(err)
	if !ok {
		return true
	}
	return appErr.Code >= CodeInternalError
}
