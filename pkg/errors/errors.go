package errors

import (
	"errors"
	"net/http"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrTargetNotFound = errors.New("target member not found")
	ErrCallNotFound   = errors.New("call not found")
	ErrNotAMember     = errors.New("connection is not a room member")
	ErrBackpressure   = errors.New("backpressure")
	ErrBadRequest     = errors.New("bad request")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
