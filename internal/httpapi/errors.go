// Package httpapi is the inbound HTTP surface spec.md §6.3 describes:
// webhook ingress, manual trigger dispatch, and execution status/cancel/
// resume endpoints. It deliberately does not expose workflow/node/edge
// CRUD, accounts, or credentials — those are the "end-user CRUD APIs for
// editing graphs" and identity/SSO surfaces spec.md §1 names as explicit
// Non-goals, left to an external collaborator service. Grounded on the
// teacher's internal/infrastructure/api/rest package (gin.Engine, one
// handler struct per concern, a shared respondError/APIError shape),
// narrowed to the routes the orchestration core itself must own.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/core/internal/domain"
	"github.com/flowforge/core/internal/errorcode"
)

// APIError is the JSON body every non-2xx response carries.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func newAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: status}
}

// translateError maps a core error into the HTTP status/code pair the
// teacher's rest.TranslateError plays for its own error taxonomy, built
// over this project's own errorcode.CodedError and domain.ValidationError
// instead of the teacher's pkg/models sentinel errors.
func translateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var coded *errorcode.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case errorcode.ValidationError:
			return newAPIError(string(coded.Code), coded.Error(), http.StatusBadRequest)
		case errorcode.TriggerNotMatched:
			return newAPIError(string(coded.Code), coded.Error(), http.StatusNotFound)
		case errorcode.SecurityViolation:
			return newAPIError(string(coded.Code), coded.Error(), http.StatusForbidden)
		default:
			return newAPIError(string(coded.Code), coded.Error(), http.StatusInternalServerError)
		}
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return newAPIError("VALIDATION_ERROR", valErr.Error(), http.StatusBadRequest)
	}

	return newAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}

func respondError(c *gin.Context, err error) {
	apiErr := translateError(err)
	c.JSON(apiErr.HTTPStatus, gin.H{"error": apiErr})
}
