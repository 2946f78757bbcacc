package app

import (
	"fmt"
	"net/http"

	"workreport/api/internal/notion"
	"workreport/api/internal/store"
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

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// notFoundError covers both missing records and records owned by someone
// else.
func notFoundError() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", store.ErrNotFound.Error(), nil)
}

func notionNotConfiguredError() *DomainError {
	return domainError(http.StatusServiceUnavailable, "NOTION_NOT_CONFIGURED", notion.ErrMissingToken.Error(), nil)
}

func unavailableError(feature string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "FEATURE_UNAVAILABLE", feature+" is not configured", nil)
}
