// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response envelope shared by all API methods.
// The Mini App client always receives HTTP 200 with a JSON body carrying an
// explicit ok flag; transport-level statuses are reserved for routing
// failures and the webhook endpoint.
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "ok": true, "data": { ... } }
//
// Example error response:
//
//	HTTP/1.1 200 OK
//	{ "ok": false, "error_description": "out_of_gift" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1thousandframework/go-gift-backend/internal/http/middleware"
)

// APIResponse is the uniform envelope for every API method.
type APIResponse struct {
	Ok               bool   `json:"ok"`
	Data             any    `json:"data,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ok writes a success envelope.
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Ok: true, Data: data})
}

// fail writes an error envelope with a stable code. Server-side codes are
// logged with the request-scoped logger for correlation.
func fail(c *gin.Context, code string) {
	if code == ErrCodeServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().Str("code", code).Msg("api error")
	}
	c.JSON(http.StatusOK, APIResponse{Ok: false, ErrorDescription: code})
}

// Fail is the exported variant of fail(), used by router fallbacks.
func Fail(c *gin.Context, code string) { fail(c, code) }
