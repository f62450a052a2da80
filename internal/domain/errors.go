package domain

import "errors"

var (
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrUnknownRowID         = errors.New("unknown row id")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrAlreadyStored        = errors.New("cart already stored")
	ErrStoredCartNotFound   = errors.New("stored cart not found")
	ErrInvalidCalculator    = errors.New("invalid calculator")
	ErrUnknownModel         = errors.New("unknown model")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidWeight        = errors.New("weight must not be negative")
	ErrUnserializableOption = errors.New("option value is not serializable")
	ErrDivisionByZero       = errors.New("division by zero")
)
