// Package httputil holds the HTTP plumbing shared by the invocca API:
// JSON and problem-detail responses, request decoding, middleware, metrics
// and health checks.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
	problemTypeBlank   = "about:blank"
)

// RespondJSON writes v as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// RespondProblem writes an RFC 9457 problem document.
func RespondProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblem(w, r, types.ProblemDetail{
		Type:   problemTypeBlank,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// RespondProblemf is RespondProblem with a formatted detail.
func RespondProblemf(w http.ResponseWriter, r *http.Request, status int, format string, args ...any) {
	RespondProblem(w, r, status, fmt.Sprintf(format, args...))
}

// RespondValidationProblem writes a 422 problem listing field errors. The
// detail is the first field message so clients without field support still
// have something to show.
func RespondValidationProblem(w http.ResponseWriter, r *http.Request, errs []types.ValidationError) {
	detail := "request validation failed"
	if len(errs) > 0 {
		detail = errs[0].Message
	}
	writeProblem(w, r, types.ProblemDetail{
		Type:   problemTypeBlank,
		Title:  http.StatusText(http.StatusUnprocessableEntity),
		Status: http.StatusUnprocessableEntity,
		Detail: detail,
		Errors: errs,
	})
}

func writeProblem(w http.ResponseWriter, r *http.Request, p types.ProblemDetail) {
	if r != nil && r.URL != nil {
		p.Instance = r.URL.Path
	}
	if p.Status >= http.StatusInternalServerError && r != nil {
		zerolog.Ctx(r.Context()).Warn().Int("status", p.Status).Str("detail", p.Detail).Msg("problem response")
	}
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// IsJSON reports whether the content type names a JSON media type.
func IsJSON(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}
