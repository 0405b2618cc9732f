package domain

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrAmountMismatch   = errors.New("amount mismatch")
	ErrTransferFailed   = errors.New("transfer failed")
)
