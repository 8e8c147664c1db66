// Package audit provides structured audit logging for API mutations.
package audit

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"
)

// Results recorded for a mutation.
const (
	ResultSuccess  = "success"
	ResultDenied   = "denied"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern    = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
	phonePattern       = regexp.MustCompile(`\+?\d[\d\s-]{7,}\d`)
)

// Mutation captures one finished create, update or delete call.
type Mutation struct {
	RequestID   string
	Resource    string
	Action      string
	TargetID    string
	CallerSub   string
	CallerRole  string
	StatusCode  int
	ErrorDetail string
	Duration    time.Duration
}

// Logger emits structured audit entries.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record writes a single entry for one mutation. A nil Logger is a no-op.
func (l *Logger) Record(m Mutation) {
	if l == nil {
		return
	}

	duration := m.Duration
	if duration < 0 {
		duration = 0
	}
	caller := strings.TrimSpace(m.CallerSub)
	if caller == "" {
		caller = "anonymous"
	}

	entry := l.logger.Info().
		Str("event", "invocca."+m.Resource+"."+m.Action).
		Str("request_id", strings.TrimSpace(m.RequestID)).
		Str("resource", m.Resource).
		Str("action", m.Action).
		Str("caller_subject", caller).
		Str("caller_role", m.CallerRole).
		Str("result", Result(m.StatusCode)).
		Int64("duration_ms", duration.Milliseconds())

	if id := strings.TrimSpace(m.TargetID); id != "" {
		entry = entry.Str("target_id", id)
	}
	if m.StatusCode > 0 {
		entry = entry.Int("response_code", m.StatusCode)
	}
	if redacted := RedactSensitiveText(m.ErrorDetail); redacted != "" {
		entry = entry.Str("error_detail", redacted)
	}

	entry.Msg("mutation completed")
}

// Result classifies a response status.
func Result(status int) string {
	switch {
	case status == 0 || status < http.StatusBadRequest:
		return ResultSuccess
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ResultDenied
	case status < http.StatusInternalServerError:
		return ResultRejected
	default:
		return ResultError
	}
}

// ProblemDetail extracts the detail of an RFC 9457 problem body, or "" when
// body is not one.
func ProblemDetail(body []byte) string {
	detail, err := jsonparser.GetString(body, "detail")
	if err != nil {
		return ""
	}
	return detail
}

// RedactSensitiveText removes obvious secrets and phone numbers from
// free-text error details.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	redacted := bearerTokenPattern.ReplaceAllString(trimmed, "Bearer [REDACTED]")
	redacted = keyValuePattern.ReplaceAllStringFunc(redacted, func(match string) string {
		parts := strings.SplitN(match, ":", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s: [REDACTED]", strings.TrimSpace(parts[0]))
		}
		parts = strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s=[REDACTED]", strings.TrimSpace(parts[0]))
		}
		return "[REDACTED]"
	})
	return phonePattern.ReplaceAllString(redacted, "[PHONE]")
}
