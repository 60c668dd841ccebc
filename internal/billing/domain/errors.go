package domain

import "errors"

var (
	ErrRecordNotFound   = errors.New("record_not_found")
	ErrTerminalStatus   = errors.New("terminal_status")
	ErrInvalidRecord    = errors.New("invalid_record")
	ErrInvalidPayment   = errors.New("invalid_payment")
	ErrMissingInvoiceID = errors.New("missing_invoice_id")

	ErrUnknownDiscountCode   = errors.New("unknown_discount_code")
	ErrDuplicateDiscountCode = errors.New("duplicate_discount_code")
	ErrDiscountInactive      = errors.New("discount_inactive")
	ErrDiscountNotStarted    = errors.New("discount_not_started")
	ErrDiscountExpired       = errors.New("discount_expired")
	ErrDiscountUsageExceeded = errors.New("discount_usage_exceeded")
)
