package app

import (
	"errors"
	"fmt"
	"net/http"

	"canvasvault/api/internal/auth"
	"canvasvault/api/internal/authpw"
	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errNotFound         = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	errUnauthorized     = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
	errCloudUnavailable = domainError(http.StatusServiceUnavailable, "CLOUD_UNAVAILABLE", "Cloud backend is not configured", nil)
	errAuthUnavailable  = domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
)

func invalidBody(message string) *DomainError {
	if message == "" {
		message = "Invalid body"
	}
	return domainError(http.StatusBadRequest, "INVALID_BODY", message, nil)
}

func invalidQuery(message string) *DomainError {
	if message == "" {
		message = "Invalid query"
	}
	return domainError(http.StatusBadRequest, "INVALID_QUERY", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var revErr *store.RevisionConflictError
	if errors.As(err, &revErr) {
		return http.StatusConflict, "REVISION_CONFLICT", "Conflict", map[string]any{"rev": revErr.Rev, "updatedAt": revErr.UpdatedAt}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	case errors.Is(err, store.ErrNotAuthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, settings.ErrInvalidMode):
		return http.StatusBadRequest, "INVALID_BODY", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login credentials", nil
	case errors.Is(err, authpw.ErrEmailNotVerified):
		return http.StatusUnauthorized, "EMAIL_NOT_CONFIRMED", "Email not confirmed", nil
	case errors.Is(err, authpw.ErrInvalidVerification):
		return http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired verification token", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", err.Error(), nil
}
