/*
Copyright 2025 NSLNV.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error codes returned in APIError.Code
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError represents a standardized error response.
// Every error leaving the API has this shape.
type APIError struct {
	OK      bool        `json:"ok"`
	Code    string      `json:"code"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// RespondError sends an error response with an explicit status and code.
func RespondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIError{
		OK:    false,
		Code:  code,
		Error: message,
	})
}

// RespondErrorWithDetails sends an error response carrying structured details.
func RespondErrorWithDetails(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, APIError{
		OK:      false,
		Code:    code,
		Error:   message,
		Details: details,
	})
}

// RespondNotFound sends a 404 Not Found response with a standardized message.
// Use this when a requested resource does not exist.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	RespondError(c, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceName))
}

// RespondUnauthorized sends a 401 Unauthorized response.
func RespondUnauthorized(c *gin.Context) {
	RespondError(c, http.StatusUnauthorized, CodeUnauthorized, "Admin authentication required")
}

// RespondUnauthorizedWithCode sends a 401 with a specific code and message.
func RespondUnauthorizedWithCode(c *gin.Context, code, message string) {
	if code == "" {
		code = CodeUnauthorized
	}
	if message == "" {
		message = "Admin authentication required"
	}
	RespondError(c, http.StatusUnauthorized, code, message)
}

// RespondBadRequest sends a 400 Bad Request response.
// Use this for client errors like malformed JSON or invalid parameters.
func RespondBadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, CodeBadRequest, message)
}

// IsBodyTooLarge reports whether err comes from a request body cut off by
// http.MaxBytesReader.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// RespondPayloadTooLarge sends a 413 response.
func RespondPayloadTooLarge(c *gin.Context) {
	RespondError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
}

// RespondBindError maps an error from reading or decoding the request body:
// 413 when the body exceeded the server limit, 400 with message otherwise.
func RespondBindError(c *gin.Context, err error, message string) {
	if IsBodyTooLarge(err) {
		RespondPayloadTooLarge(c)
		return
	}
	RespondBadRequest(c, message)
}

// RespondValidationError sends a 400 with per-field validation details.
func RespondValidationError(c *gin.Context, details interface{}) {
	RespondErrorWithDetails(c, http.StatusBadRequest, CodeValidation, "Validation failed", details)
}

// RespondMethodNotAllowed sends a 405 response.
func RespondMethodNotAllowed(c *gin.Context) {
	RespondError(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

// RespondTooManyRequests sends a 429 response. Rate limit headers are set by the caller.
func RespondTooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "Too many requests. Please try again later."
	}
	RespondError(c, http.StatusTooManyRequests, CodeRateLimited, message)
}

// RespondInternalError sends a 500 Internal Server Error response.
// It logs the error with full details but returns a generic message to the client.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	RespondError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

// RespondServiceUnavailable sends a 503 Service Unavailable response.
// Use this when a required backend service is not available.
func RespondServiceUnavailable(c *gin.Context, service string) {
	RespondError(c, http.StatusServiceUnavailable, CodeServiceUnavailable, fmt.Sprintf("service unavailable: %s", service))
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with the given data.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
