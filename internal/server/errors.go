package server

import (
	"fmt"
	"net/http"

	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// problem is a rule failure that already knows its HTTP rendering.
type problem struct {
	status int
	detail string
	fields []types.ValidationError
}

func (p *problem) Error() string {
	return p.detail
}

func (p *problem) write(w http.ResponseWriter, r *http.Request) {
	if len(p.fields) > 0 {
		httputil.RespondValidationProblem(w, r, p.fields)
		return
	}
	httputil.RespondProblem(w, r, p.status, p.detail)
}

func forbidden(format string, args ...any) error {
	return &problem{status: http.StatusForbidden, detail: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &problem{status: http.StatusBadRequest, detail: fmt.Sprintf(format, args...)}
}

func invalidField(field, format string, args ...any) error {
	return validationError(types.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func validationError(errs ...types.ValidationError) error {
	detail := "request validation failed"
	if len(errs) > 0 {
		detail = errs[0].Message
	}
	return &problem{status: http.StatusUnprocessableEntity, detail: detail, fields: errs}
}
