// Package services defines the business logic for the gift ledger, payment
// reconciliation, catalogue, and user queries. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into wire-level error codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrGiftNotFound indicates that the requested gift does not exist.
	ErrGiftNotFound = errors.New("gift not found")

	// ErrUserNotFound indicates that the requested user is unknown.
	ErrUserNotFound = errors.New("user not found")

	// ErrActionNotFound indicates that the referenced ledger entry does not
	// exist.
	ErrActionNotFound = errors.New("action not found")

	// ErrOutOfStock is returned when a purchase intent arrives for a gift
	// whose supply is exhausted. No side effect is produced.
	ErrOutOfStock = errors.New("gift is out of stock")

	// ErrAlreadyClaimed is returned when a transfer races on a purchase that
	// is already linked. The gift changed hands exactly once; callers treat
	// this as "already done", not as data loss.
	ErrAlreadyClaimed = errors.New("gift already claimed")

	// ErrInvoiceUnavailable is returned when the payment provider refuses or
	// fails to create an invoice.
	ErrInvoiceUnavailable = errors.New("cannot create invoice")

	// ErrBadPayload is returned when a payment confirmation carries a payload
	// this system did not produce. The event is reported, not retried.
	ErrBadPayload = errors.New("malformed invoice payload")
)
