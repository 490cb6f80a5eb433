package client

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/scribbo-backend/internal/apperror"
)

var (
	ErrTimeout    = errors.New("timed out waiting for response")
	ErrClosed     = errors.New("client closed")
	ErrNotPending = errors.New("no pending request with this id")
)

// ServerError is a failure reported by the server in an error message.
type ServerError struct {
	RequestID string
	Code      string
	Message   string
}

func (that *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", that.Code, that.Message)
}

// Unwrap - exposes the apperror sentinel for the code so callers can use errors.Is.
func (that *ServerError) Unwrap() error {
	return apperror.FromCode(that.Code)
}
