package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MCT-Salman/invocca/pkg/types"
)

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Problem    types.ProblemDetail
}

// newAPIError parses body as a problem document. Bodies that are not one,
// such as a proxy's HTML error page, are dropped so they never reach users.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &e.Problem); err != nil || e.Problem.Status == 0 {
		e.Problem = types.ProblemDetail{Type: "about:blank", Status: status}
	}
	return e
}

func (e *APIError) Error() string {
	msg := e.ServerMessage()
	if msg == "" {
		msg = strings.ToLower(http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// ServerMessage is the most specific human-readable message the server
// sent, or "" when the response carried no problem document.
func (e *APIError) ServerMessage() string {
	if e.Problem.Detail != "" {
		return e.Problem.Detail
	}
	return e.Problem.Title
}

// FieldErrors returns field-level validation failures.
func (e *APIError) FieldErrors() []types.ValidationError {
	return e.Problem.Errors
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

// IsConflict reports whether err is a 409 or 412 from the API.
func IsConflict(err error) bool {
	s := StatusCode(err)
	return s == http.StatusConflict || s == http.StatusPreconditionFailed
}
