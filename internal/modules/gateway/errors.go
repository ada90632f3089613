// README: Request Gateway error taxonomy.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrOperationInProgress = errors.New("operation already in progress")

// ValidationError is returned before any network call when required input is missing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ServiceError is a non-2xx response. Status is 0 when the request never got a response.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return "service unreachable: " + e.Message
	}
	return fmt.Sprintf("service error %d: %s", e.Status, e.Message)
}

// PaymentError is a failed pay call, kept distinct so callers can offer a retry.
type PaymentError struct {
	Err *ServiceError
}

func (e *PaymentError) Error() string {
	return "payment failed: " + e.Err.Error()
}

func (e *PaymentError) Unwrap() error { return e.Err }

func statusMessage(status int, body errorBody) string {
	switch {
	case body.Error != "":
		return body.Error
	case body.Message != "":
		return body.Message
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
