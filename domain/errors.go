package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine-readable identifier carried by every
// failure returned from the ledger.
type ErrorCode string

const (
	CodeNotFound                   ErrorCode = "NOT_FOUND"
	CodeValidation                 ErrorCode = "VALIDATION"
	CodeCurrencyMismatch           ErrorCode = "CURRENCY_MISMATCH"
	CodeInsufficientFunds          ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInsufficientBalance        ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInsufficientForeignBalance ErrorCode = "INSUFFICIENT_FOREIGN_BALANCE"
	CodeInvalidAmount              ErrorCode = "INVALID_AMOUNT"
	CodeSameAccountTransfer        ErrorCode = "SAME_ACCOUNT_TRANSFER"
	CodeUnauthorized               ErrorCode = "UNAUTHORIZED"
	CodeRateNotFound               ErrorCode = "RATE_NOT_FOUND"
	CodeRateExpired                ErrorCode = "RATE_EXPIRED"
	CodeNoPosition                 ErrorCode = "NO_POSITION"
	CodePositionInsufficient       ErrorCode = "POSITION_INSUFFICIENT"
	CodeInvalidOperation           ErrorCode = "INVALID_OPERATION"
	CodeInvalidCurrency            ErrorCode = "INVALID_CURRENCY"
	CodeMinAmount                  ErrorCode = "MIN_AMOUNT"
	CodeAccountInactive            ErrorCode = "ACCOUNT_INACTIVE"
	CodeInfrastructure             ErrorCode = "INFRASTRUCTURE"
)

// DomainError is an expected business-rule failure. Two DomainErrors are
// considered equal by errors.Is when their codes match, so callers can test
// against the sentinels below regardless of the message.
type DomainError struct {
	Code    ErrorCode
	message string
}

func NewDomainError(code ErrorCode, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: code, message: fmt.Sprintf(format, args...)}
}

func (e *DomainError) Error() string {
	return e.message
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound                   = NewDomainError(CodeNotFound, "not found")
	ErrAccountNotFound            = NewDomainError(CodeNotFound, "account not found")
	ErrValidation                 = NewDomainError(CodeValidation, "validation failed")
	ErrCurrencyMismatch           = NewDomainError(CodeCurrencyMismatch, "currency mismatch")
	ErrInsufficientFunds          = NewDomainError(CodeInsufficientFunds, "insufficient funds")
	ErrInsufficientBalance        = NewDomainError(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientForeignBalance = NewDomainError(CodeInsufficientForeignBalance, "insufficient foreign currency balance")
	ErrInvalidAmount              = NewDomainError(CodeInvalidAmount, "invalid amount")
	ErrSameAccountTransfer        = NewDomainError(CodeSameAccountTransfer, "cannot transfer to the same account")
	ErrUnauthorized               = NewDomainError(CodeUnauthorized, "unauthorized")
	ErrRateNotFound               = NewDomainError(CodeRateNotFound, "exchange rate not found")
	ErrRateExpired                = NewDomainError(CodeRateExpired, "exchange rate expired")
	ErrNoPosition                 = NewDomainError(CodeNoPosition, "no currency position")
	ErrPositionInsufficient       = NewDomainError(CodePositionInsufficient, "position insufficient")
	ErrInvalidOperation           = NewDomainError(CodeInvalidOperation, "invalid operation")
	ErrInvalidCurrency            = NewDomainError(CodeInvalidCurrency, "invalid currency")
	ErrMinAmount                  = NewDomainError(CodeMinAmount, "amount below minimum")
	ErrAccountInactive            = NewDomainError(CodeAccountInactive, "account is not active")
	ErrInfrastructure             = NewDomainError(CodeInfrastructure, "infrastructure failure")
)

// CodeOf returns the code of the first DomainError in err's chain. Anything
// else (storage, lock, context errors) is reported as an infrastructure fault.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInfrastructure
}

// IsDomainError reports whether err is an expected business-rule failure
// rather than an infrastructure fault.
func IsDomainError(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code != CodeInfrastructure
}
