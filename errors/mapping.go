package errors

import (
	"context"
	"errors"
	"net/http"
)

// Code is the machine readable error code sent to WebSocket clients.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeRoomBusy           Code = "room_busy"
	CodeUnauthorized       Code = "unauthorized"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal"
)

// CodeOf maps an error onto the code reported in error frames.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, ErrRoomBusy):
		return CodeRoomBusy
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrShuttingDown),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error onto the status code of the read endpoints.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRoomBusy:
		return http.StatusTooManyRequests
	case CodeStorageUnavailable, CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
