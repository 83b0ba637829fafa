package domain

import "errors"

// Expected business outcomes, checked by callers with errors.Is. These
// are results a caller must handle, not faults: a rejected trade leaves
// portfolio state untouched.
var (
	ErrPortfolioNotFound    = errors.New("portfolio not found")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidAction        = errors.New("invalid trade action")
	ErrInvalidTicker        = errors.New("ticker is required")
	ErrInvalidCash          = errors.New("initial cash must not be negative")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)
