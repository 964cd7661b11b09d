package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine readable failure reason.
type ErrorCode string

// ErrorClass groups error codes by who has to act on them.
type ErrorClass string

const (
	ClassTrust        ErrorClass = "trust"
	ClassMalformed    ErrorClass = "malformed_input"
	ClassConfig       ErrorClass = "configuration"
	ClassResource     ErrorClass = "resource"
	ClassCollaborator ErrorClass = "collaborator"
	ClassAccess       ErrorClass = "access"
)

// Common error codes
const (
	// trust
	CodeUntrustedSourceChain ErrorCode = "UNTRUSTED_SOURCE_CHAIN"
	CodeUntrustedSender      ErrorCode = "UNTRUSTED_SENDER"
	CodeInvalidRouter        ErrorCode = "INVALID_ROUTER"

	// malformed input
	CodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	CodeNoFundsDelivered ErrorCode = "NO_FUNDS_DELIVERED"
	CodeTokenMismatch    ErrorCode = "TOKEN_MISMATCH"
	CodeInvalidMessage   ErrorCode = "INVALID_MESSAGE"
	CodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"

	// configuration
	CodeSwapNotConfigured    ErrorCode = "SWAP_NOT_CONFIGURED"
	CodeGatewayNotConfigured ErrorCode = "GATEWAY_NOT_CONFIGURED"
	CodeConfigError          ErrorCode = "CONFIG_ERROR"

	// resource
	CodeInsufficientBalance   ErrorCode = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance ErrorCode = "INSUFFICIENT_ALLOWANCE"
	CodeReentrantCall         ErrorCode = "REENTRANT_CALL"

	// collaborator
	CodeSwapFailed         ErrorCode = "SWAP_FAILED"
	CodeSlippageExceeded   ErrorCode = "SLIPPAGE_EXCEEDED"
	CodeInsufficientOutput ErrorCode = "INSUFFICIENT_OUTPUT"
	CodeGatewayFailed      ErrorCode = "GATEWAY_FAILED"
	CodeDuplicatePayment   ErrorCode = "DUPLICATE_PAYMENT"

	// access
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Class reports the failure class of the code.
func (c ErrorCode) Class() ErrorClass {
	switch c {
	case CodeUntrustedSourceChain, CodeUntrustedSender, CodeInvalidRouter:
		return ClassTrust
	case CodeMalformedPayload, CodeNoFundsDelivered, CodeTokenMismatch, CodeInvalidMessage, CodeInvalidAmount:
		return ClassMalformed
	case CodeSwapNotConfigured, CodeGatewayNotConfigured, CodeConfigError:
		return ClassConfig
	case CodeInsufficientBalance, CodeInsufficientAllowance, CodeReentrantCall:
		return ClassResource
	case CodeUnauthorized:
		return ClassAccess
	default:
		return ClassCollaborator
	}
}

// Error is the error type returned by every component. Two errors are
// considered equal by errors.Is when their codes match, so the sentinel
// values below can be used as targets.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code of err, or "" when err does not carry one.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrUntrustedSourceChain  = &Error{Code: CodeUntrustedSourceChain, Message: "untrusted source chain"}
	ErrUntrustedSender       = &Error{Code: CodeUntrustedSender, Message: "untrusted sender"}
	ErrInvalidRouter         = &Error{Code: CodeInvalidRouter, Message: "caller is not the router"}
	ErrMalformedPayload      = &Error{Code: CodeMalformedPayload, Message: "malformed payload"}
	ErrNoFundsDelivered      = &Error{Code: CodeNoFundsDelivered, Message: "no funds delivered"}
	ErrTokenMismatch         = &Error{Code: CodeTokenMismatch, Message: "delivered token does not match source token"}
	ErrInvalidMessage        = &Error{Code: CodeInvalidMessage, Message: "invalid message"}
	ErrInvalidAmount         = &Error{Code: CodeInvalidAmount, Message: "invalid amount"}
	ErrSwapNotConfigured     = &Error{Code: CodeSwapNotConfigured, Message: "swap collaborator not configured"}
	ErrGatewayNotConfigured  = &Error{Code: CodeGatewayNotConfigured, Message: "gateway not configured"}
	ErrConfig                = &Error{Code: CodeConfigError, Message: "configuration error"}
	ErrInsufficientBalance   = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrInsufficientAllowance = &Error{Code: CodeInsufficientAllowance, Message: "insufficient allowance"}
	ErrReentrantCall         = &Error{Code: CodeReentrantCall, Message: "reentrant call"}
	ErrSwapFailed            = &Error{Code: CodeSwapFailed, Message: "swap failed"}
	ErrSlippageExceeded      = &Error{Code: CodeSlippageExceeded, Message: "swap output below minimum"}
	ErrInsufficientOutput    = &Error{Code: CodeInsufficientOutput, Message: "insufficient output amount"}
	ErrGatewayFailed         = &Error{Code: CodeGatewayFailed, Message: "gateway notification failed"}
	ErrDuplicatePayment      = &Error{Code: CodeDuplicatePayment, Message: "payment already finalized"}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)
