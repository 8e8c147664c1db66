package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerRecord_EmitsOneStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewLogger(zerolog.New(&buf))

	auditLogger.Record(Mutation{
		RequestID:   "req-1",
		Resource:    "invitations",
		Action:      "created",
		TargetID:    "inv-1",
		CallerSub:   "client-1",
		CallerRole:  "client",
		StatusCode:  http.StatusUnprocessableEntity,
		ErrorDetail: "guest phone +963 944 123 456 rejected",
		Duration:    250 * time.Millisecond,
	})

	lines := splitJSONLines(t, buf.String())
	require.Len(t, lines, 1)

	entry := lines[0]
	require.Equal(t, "audit", entry["component"])
	require.Equal(t, "invocca.invitations.created", entry["event"])
	require.Equal(t, "req-1", entry["request_id"])
	require.Equal(t, "inv-1", entry["target_id"])
	require.Equal(t, "client-1", entry["caller_subject"])
	require.Equal(t, "client", entry["caller_role"])
	require.Equal(t, ResultRejected, entry["result"])
	require.EqualValues(t, 250, entry["duration_ms"])
	require.EqualValues(t, 422, entry["response_code"])
	require.Equal(t, "guest phone [PHONE] rejected", entry["error_detail"])
}

func TestLoggerRecord_Defaults(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(zerolog.New(&buf)).Record(Mutation{Resource: "halls", Action: "deleted", Duration: -time.Second})

	entry := splitJSONLines(t, buf.String())[0]
	require.Equal(t, "anonymous", entry["caller_subject"])
	require.Equal(t, ResultSuccess, entry["result"])
	require.EqualValues(t, 0, entry["duration_ms"])
	_, hasCode := entry["response_code"]
	require.False(t, hasCode)
	_, hasTarget := entry["target_id"]
	require.False(t, hasTarget)
}

func TestLoggerRecord_NilIsNoop(t *testing.T) {
	var l *Logger
	require.NotPanics(t, func() { l.Record(Mutation{Resource: "halls"}) })
}

func TestResult(t *testing.T) {
	cases := map[int]string{
		0:                              ResultSuccess,
		http.StatusCreated:             ResultSuccess,
		http.StatusNoContent:           ResultSuccess,
		http.StatusUnauthorized:        ResultDenied,
		http.StatusForbidden:           ResultDenied,
		http.StatusConflict:            ResultRejected,
		http.StatusPreconditionFailed:  ResultRejected,
		http.StatusInternalServerError: ResultError,
	}
	for status, want := range cases {
		require.Equal(t, want, Result(status), "status %d", status)
	}
}

func TestProblemDetail(t *testing.T) {
	body := []byte(`{"type":"about:blank","title":"Conflict","status":409,"detail":"hall \"h1\" is in use"}`)
	require.Equal(t, `hall "h1" is in use`, ProblemDetail(body))
	require.Empty(t, ProblemDetail([]byte(`{"title":"x"}`)))
	require.Empty(t, ProblemDetail([]byte("not json")))
}

func TestRedactSensitiveText_RedactsTokenLikeSegments(t *testing.T) {
	raw := "request failed: Authorization: Bearer abc.def.ghi token=xyz123 password=hunter2"
	redacted := RedactSensitiveText(raw)

	require.NotContains(t, redacted, "abc.def.ghi")
	require.NotContains(t, redacted, "xyz123")
	require.NotContains(t, redacted, "hunter2")
	require.Contains(t, redacted, "Authorization: [REDACTED]")
	require.Contains(t, redacted, "token=[REDACTED]")
	require.Contains(t, redacted, "password=[REDACTED]")
	require.Empty(t, RedactSensitiveText("   "))
}

func splitJSONLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}
