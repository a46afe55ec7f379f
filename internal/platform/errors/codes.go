package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound indicates an unknown quest, player, or device reference.
	CodeNotFound Code = "NOT_FOUND"

	// CodeQuestNoStages indicates a catalog quest with zero stages.
	CodeQuestNoStages Code = "QUEST_NO_STAGES"

	// CodeStaleState indicates a delayed transition whose freshness check
	// failed. Logged and dropped, never surfaced to callers.
	CodeStaleState Code = "STALE_STATE"

	// CodeProviderError indicates a catalog or state-store I/O failure.
	CodeProviderError Code = "PROVIDER_ERROR"

	// CodeInvalidArgument indicates a malformed request payload.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// HTTPStatus maps domain codes to HTTP status codes for the ingest API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeQuestNoStages, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
