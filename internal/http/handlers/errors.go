// Package handlers defines the wire-level error codes used across the API.
//
// The Mini App client branches on `error_description`, so these strings are a
// stable contract: lowercase snake_case, unchanged across releases.
package handlers

const (
	ErrCodeJSONExpected      = "json_expected"
	ErrCodeUserDataRequired  = "user_data_required"
	ErrCodeAuthFailed        = "auth_failed"
	ErrCodeServerError       = "server_error"
	ErrCodeNotFound          = "not_found"
	ErrCodeCantCreateInvoice = "cant_create_invoice"
	ErrCodeOutOfGift         = "out_of_gift"
	ErrCodeAlreadyActivated  = "already_activated"
)
